package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sazardev/hrauth/internal/middleware"
	"github.com/sazardev/hrauth/internal/models"
)

type setStatusRequest struct {
	Status models.UserStatus `json:"status" binding:"required,oneof=active suspended pending"`
}

// AdminSetUserStatus suspends, reactivates or holds an account. Suspension
// takes effect immediately: tokens are revoked and sessions force-closed.
func (h HandlerSet) AdminSetUserStatus(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	userID := c.Param("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId required"})
		return
	}

	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authService.SetUserStatus(c.Request.Context(), actor, userID, req.Status); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(req.Status)})
}
