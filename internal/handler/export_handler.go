package handler

import (
	"errors"
	"net/http"

	"graceway-go/internal/service"
	"graceway-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ExportHandler exposes transcript export to object storage.
type ExportHandler struct {
	exportService service.ExportService
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(exportService service.ExportService) *ExportHandler {
	return &ExportHandler{exportService: exportService}
}

// Export writes the conversation transcript to object storage and returns a
// time-limited download URL.
func (h *ExportHandler) Export(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	url, err := h.exportService.ExportConversation(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrConversationNotOwned) {
			c.JSON(http.StatusForbidden, gin.H{"error": "conversation does not belong to the authenticated user"})
			return
		}
		log.Error("transcript export failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"downloadUrl": url})
}
