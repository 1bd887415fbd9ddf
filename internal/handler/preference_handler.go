package handler

import (
	"net/http"

	"graceway-go/internal/service"
	"graceway-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// PreferenceHandler exposes the per-user context toggles.
type PreferenceHandler struct {
	prefService service.PreferenceService
}

// NewPreferenceHandler creates a new PreferenceHandler.
func NewPreferenceHandler(prefService service.PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{prefService: prefService}
}

// Get returns the user's preferences, creating defaults on first access.
func (h *PreferenceHandler) Get(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	pref, err := h.prefService.Get(user.ID)
	if err != nil {
		log.Error("failed to load preferences", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load preferences"})
		return
	}
	c.JSON(http.StatusOK, pref)
}

// UpdatePreferenceRequest carries the optional fields to change.
type UpdatePreferenceRequest struct {
	PreferredRole    *string `json:"preferredRole"`
	IncludeDevotions *bool   `json:"includeDevotions"`
	IncludeJournal   *bool   `json:"includeJournal"`
	IncludeFitness   *bool   `json:"includeFitness"`
}

// Update applies a partial preference update.
func (h *PreferenceHandler) Update(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	var req UpdatePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	pref, err := h.prefService.Update(user.ID, service.PreferenceUpdate{
		PreferredRole:    req.PreferredRole,
		IncludeDevotions: req.IncludeDevotions,
		IncludeJournal:   req.IncludeJournal,
		IncludeFitness:   req.IncludeFitness,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pref)
}
