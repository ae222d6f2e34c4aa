package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sazardev/hrauth/internal/middleware"
	"github.com/sazardev/hrauth/internal/models"
)

type sessionResponse struct {
	ID             string     `json:"id"`
	UserID         *string    `json:"userId,omitempty"`
	IPAddress      string     `json:"ipAddress"`
	UserAgent      string     `json:"userAgent"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	IsActive       bool       `json:"isActive"`
	LogoutType     string     `json:"logoutType,omitempty"`
	Current        bool       `json:"current"`
}

func toSessionResponse(session models.Session, currentSessionID string) sessionResponse {
	return sessionResponse{
		ID:             session.ID,
		UserID:         session.UserID,
		IPAddress:      session.IPAddress,
		UserAgent:      session.UserAgent,
		CreatedAt:      session.CreatedAt,
		LastActivityAt: session.LastActivityAt,
		EndedAt:        session.EndedAt,
		IsActive:       session.IsActive,
		LogoutType:     string(session.LogoutType),
		Current:        session.ID == currentSessionID,
	}
}

func toSessionResponses(sessions []models.Session, currentSessionID string) []sessionResponse {
	resp := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		resp = append(resp, toSessionResponse(session, currentSessionID))
	}
	return resp
}

// ListSessions returns the caller's own sessions, newest first. Pass
// ?include_ended=true to see terminated ones as well.
func (h HandlerSet) ListSessions(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	current, _ := middleware.CurrentSession(c)

	includeEnded := c.Query("include_ended") == "true"

	sessions, err := h.sessions.ListFor(c.Request.Context(), user.ID, includeEnded)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": toSessionResponses(sessions, current.ID)})
}

// AdminListSessions pages through every session and includes aggregate stats.
func (h HandlerSet) AdminListSessions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}

	sessions, err := h.sessions.ListAll(c.Request.Context(), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}

	stats, err := h.sessions.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	current, _ := middleware.CurrentSession(c)
	c.JSON(http.StatusOK, gin.H{
		"sessions": toSessionResponses(sessions, current.ID),
		"stats": gin.H{
			"total":         stats.Total,
			"active":        stats.Active,
			"inactive":      stats.Inactive,
			"distinctUsers": stats.DistinctUsers,
		},
	})
}

type forceLogoutRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// AdminForceLogout terminates another user's session and revokes its token.
func (h HandlerSet) AdminForceLogout(c *gin.Context) {
	actor, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req forceLogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authService.ForceLogout(c.Request.Context(), actor, req.SessionID); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "session_terminated"})
}

// AdminUserSessions returns the full session history of one user, ended
// sessions included.
func (h HandlerSet) AdminUserSessions(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId required"})
		return
	}

	sessions, err := h.sessions.ListFor(c.Request.Context(), userID, true)
	if err != nil {
		h.writeError(c, err)
		return
	}

	current, _ := middleware.CurrentSession(c)
	c.JSON(http.StatusOK, gin.H{"sessions": toSessionResponses(sessions, current.ID)})
}
