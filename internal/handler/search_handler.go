package handler

import (
	"net/http"
	"strconv"

	"graceway-go/internal/service"
	"graceway-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler exposes full-text search over the user's transcripts.
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search runs a transcript search scoped to the authenticated user.
func (h *SearchHandler) Search(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "0"))

	results, err := h.searchService.SearchTranscripts(c.Request.Context(), user.ID, query, size)
	if err != nil {
		log.Error("transcript search failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}
