package handler

import (
	"net/http"

	"graceway-go/internal/service"
	"graceway-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// EntitlementHandler exposes premium-feature entitlement checks.
type EntitlementHandler struct {
	entitlementService service.EntitlementService
}

// NewEntitlementHandler creates a new EntitlementHandler.
func NewEntitlementHandler(entitlementService service.EntitlementService) *EntitlementHandler {
	return &EntitlementHandler{entitlementService: entitlementService}
}

// Check reports whether the authenticated user holds the entitlement.
func (h *EntitlementHandler) Check(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
		return
	}

	entitlementID := c.Param("id")
	unlocked, err := h.entitlementService.IsUnlocked(c.Request.Context(), user.ID, entitlementID)
	if err != nil {
		log.Error("entitlement check failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "entitlement check failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entitlementId": entitlementID, "unlocked": unlocked})
}
