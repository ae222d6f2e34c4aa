package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sazardev/hrauth/internal/models"
	"github.com/sazardev/hrauth/internal/repository"
)

type loginAttemptResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	IPAddress     string    `json:"ipAddress"`
	UserAgent     string    `json:"userAgent"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failureReason,omitempty"`
	AttemptedAt   time.Time `json:"attemptedAt"`
}

// AdminListLoginAttempts serves the audit log with optional filters:
// ?email=, ?ip=, ?success=true|false, ?from=, ?to= (RFC 3339), ?limit=, ?offset=.
func (h HandlerSet) AdminListLoginAttempts(c *gin.Context) {
	filter := repository.AttemptFilter{
		Email: c.Query("email"),
		IP:    c.Query("ip"),
	}

	if raw := c.Query("success"); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid success"})
			return
		}
		filter.Success = &success
	}

	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
			return
		}
		filter.From = from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
			return
		}
		filter.To = to
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return
		}
		filter.Offset = offset
	}

	attempts, err := h.auditor.List(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"attempts": toAttemptResponses(attempts)})
}

func toAttemptResponses(attempts []models.LoginAttempt) []loginAttemptResponse {
	resp := make([]loginAttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		resp = append(resp, loginAttemptResponse{
			ID:            attempt.ID,
			Email:         attempt.Email,
			IPAddress:     attempt.IPAddress,
			UserAgent:     attempt.UserAgent,
			Success:       attempt.Success,
			FailureReason: attempt.FailureReason,
			AttemptedAt:   attempt.AttemptedAt,
		})
	}
	return resp
}
