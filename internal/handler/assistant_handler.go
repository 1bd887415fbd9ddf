package handler

import (
	"net/http"

	"graceway-go/internal/service"
	"graceway-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AssistantHandler exposes the companion persona catalogue.
type AssistantHandler struct {
	assistantService service.AssistantService
}

// NewAssistantHandler creates a new AssistantHandler.
func NewAssistantHandler(assistantService service.AssistantService) *AssistantHandler {
	return &AssistantHandler{assistantService: assistantService}
}

// List returns the personas visible to the authenticated user: global ones
// plus any scoped to the user's organization.
func (h *AssistantHandler) List(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	assistants, err := h.assistantService.ListEffective(user)
	if err != nil {
		log.Error("failed to list assistants", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list assistants"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"assistants": assistants})
}
