package models

import "time"

type ChangeType string

const (
	ChangeTypeCreated ChangeType = "created"
	ChangeTypeChanged ChangeType = "changed"
	ChangeTypeDeleted ChangeType = "deleted"
)

// Entity types recorded in the change ledger.
const (
	EntityTypeUser         = "user"
	EntityTypeSession      = "session"
	EntityTypeToken        = "token"
	EntityTypeLoginAttempt = "login_attempt"
)

// ChangeLogEntry is one row of the append-only change ledger: a full JSON
// snapshot of the mutated row plus change metadata, written in the same
// transaction as the mutation it mirrors. The ledger itself is never
// mutated.
type ChangeLogEntry struct {
	ID         int64
	EntityType string
	EntityID   string
	ChangeType ChangeType
	ActorID    *string
	Reason     string
	Snapshot   []byte
	CreatedAt  time.Time
}
