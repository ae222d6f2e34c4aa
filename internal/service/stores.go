package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sazardev/hrauth/internal/models"
	"github.com/sazardev/hrauth/internal/repository"
)

// Persistence interfaces consumed by the services. The repository package
// provides the pgx implementations; tests substitute function stubs.

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash []byte) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time, ip string) error
	SetEmailVerified(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status models.UserStatus) error
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	GetByID(ctx context.Context, id string) (models.Session, error)
	ListByUser(ctx context.Context, userID string, includeEnded bool) ([]models.Session, error)
	ListAll(ctx context.Context, limit, offset int) ([]models.Session, error)
	Close(ctx context.Context, id string, endedAt time.Time, logoutType models.LogoutType) (models.Session, bool, error)
	CloseAllForUser(ctx context.Context, userID string, endedAt time.Time, logoutType models.LogoutType, exceptID string) ([]models.Session, error)
	CloseOldestOverCap(ctx context.Context, userID string, keep int, endedAt time.Time) ([]models.Session, error)
	CloseExpired(ctx context.Context, cutoff time.Time, endedAt time.Time) ([]models.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Stats(ctx context.Context) (repository.SessionStats, error)
}

type TokenStore interface {
	Create(ctx context.Context, token models.Token) error
	FindByHash(ctx context.Context, hash []byte) (models.Token, error)
	DeleteByHash(ctx context.Context, hash []byte) error
	DeleteBySession(ctx context.Context, sessionID string) ([]models.Token, error)
	DeleteAllForUser(ctx context.Context, userID string, exceptSessionID string) ([]models.Token, error)
}

type AttemptStore interface {
	Create(ctx context.Context, attempt models.LoginAttempt) error
	List(ctx context.Context, filter repository.AttemptFilter) ([]models.LoginAttempt, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type LedgerStore interface {
	Append(ctx context.Context, entry models.ChangeLogEntry) error
}

// TxRunner executes fn atomically. Store calls made with the callback's
// context join the transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type TokenCache interface {
	PutAuth(ctx context.Context, hash []byte, userID, sessionID string, ttl time.Duration) error
	GetAuth(ctx context.Context, hash []byte) (userID, sessionID string, ok bool)
	Forget(ctx context.Context, hashes ...[]byte) error
	StoreActionID(ctx context.Context, jti string, ttl time.Duration) error
	ConsumeActionID(ctx context.Context, jti string) (bool, error)
}

// snapshot serializes the post-mutation row for the change ledger. Marshal
// failures cannot happen for our model structs; an empty object is written
// rather than aborting the mutation.
func snapshot(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}
