package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sazardev/hrauth/internal/models"
)

type changeLogResponse struct {
	ID         int64           `json:"id"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	ChangeType string          `json:"changeType"`
	ActorID    *string         `json:"actorId,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Snapshot   json.RawMessage `json:"snapshot"`
	CreatedAt  time.Time       `json:"createdAt"`
}

var knownEntityTypes = map[string]struct{}{
	models.EntityTypeUser:         {},
	models.EntityTypeSession:      {},
	models.EntityTypeToken:        {},
	models.EntityTypeLoginAttempt: {},
}

// AdminEntityHistory returns the change-ledger trail of one entity, newest
// first. Snapshots are full post-mutation rows with secrets stripped at
// write time.
func (h HandlerSet) AdminEntityHistory(c *gin.Context) {
	entityType := c.Param("entityType")
	entityID := c.Param("entityId")
	if _, ok := knownEntityTypes[entityType]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity type"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	entries, err := h.changelog.ListForEntity(c.Request.Context(), entityType, entityID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]changeLogResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, changeLogResponse{
			ID:         entry.ID,
			EntityType: entry.EntityType,
			EntityID:   entry.EntityID,
			ChangeType: string(entry.ChangeType),
			ActorID:    entry.ActorID,
			Reason:     entry.Reason,
			Snapshot:   json.RawMessage(entry.Snapshot),
			CreatedAt:  entry.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"entries": resp})
}
