package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sazardev/hrauth/internal/models"
)

type ChangeLogRepository struct {
	pool *pgxpool.Pool
}

func NewChangeLogRepository(pool *pgxpool.Pool) *ChangeLogRepository {
	return &ChangeLogRepository{pool: pool}
}

// Append writes one ledger row. Runs inside the mutation's transaction when
// the context carries one, so a rolled-back mutation leaves no ledger row.
func (r *ChangeLogRepository) Append(ctx context.Context, entry models.ChangeLogEntry) error {
	const query = `
		INSERT INTO change_log (entity_type, entity_id, change_type, actor_id, reason, snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`

	_, err := queryable(ctx, r.pool).Exec(ctx, query,
		entry.EntityType,
		entry.EntityID,
		entry.ChangeType,
		entry.ActorID,
		entry.Reason,
		entry.Snapshot,
	)
	return err
}

func (r *ChangeLogRepository) ListForEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.ChangeLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	const query = `
		SELECT id, entity_type, entity_id, change_type, actor_id, reason, snapshot, created_at
		FROM change_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := queryable(ctx, r.pool).Query(ctx, query, entityType, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ChangeLogEntry
	for rows.Next() {
		var entry models.ChangeLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.EntityType,
			&entry.EntityID,
			&entry.ChangeType,
			&entry.ActorID,
			&entry.Reason,
			&entry.Snapshot,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
