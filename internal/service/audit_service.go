package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sazardev/hrauth/internal/ids"
	"github.com/sazardev/hrauth/internal/models"
	"github.com/sazardev/hrauth/internal/repository"
)

// LoginAuditor appends to the login-attempt audit log. Record never returns
// an error: an audit-store outage must not block the login path, so storage
// failures are logged and swallowed. The success leg of a login instead
// writes its attempt inside the login transaction (see AuthService.Login)
// to keep token, session and attempt atomic.
type LoginAuditor struct {
	attempts AttemptStore
	ledger   LedgerStore
	log      zerolog.Logger
}

func NewLoginAuditor(attempts AttemptStore, ledger LedgerStore, log zerolog.Logger) *LoginAuditor {
	return &LoginAuditor{
		attempts: attempts,
		ledger:   ledger,
		log:      log,
	}
}

// Record writes one attempt row, best effort.
func (a *LoginAuditor) Record(ctx context.Context, email, ip, userAgent string, success bool, failureReason string) {
	attempt := models.LoginAttempt{
		ID:            ids.New(),
		Email:         email,
		IPAddress:     ip,
		UserAgent:     userAgent,
		Success:       success,
		FailureReason: failureReason,
		AttemptedAt:   time.Now(),
	}

	if err := a.attempts.Create(ctx, attempt); err != nil {
		a.log.Error().Err(err).Str("email", email).Msg("login attempt audit write failed")
		return
	}

	if err := a.ledger.Append(ctx, models.ChangeLogEntry{
		EntityType: models.EntityTypeLoginAttempt,
		EntityID:   attempt.ID,
		ChangeType: models.ChangeTypeCreated,
		Reason:     "login attempt",
		Snapshot:   snapshot(attempt),
	}); err != nil {
		a.log.Error().Err(err).Str("attempt_id", attempt.ID).Msg("attempt ledger write failed")
	}
}

// List serves the admin attempt listing, newest first.
func (a *LoginAuditor) List(ctx context.Context, filter repository.AttemptFilter) ([]models.LoginAttempt, error) {
	return a.attempts.List(ctx, filter)
}

// Prune drops attempts past the retention window.
func (a *LoginAuditor) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return a.attempts.DeleteOlderThan(ctx, time.Now().Add(-retention))
}
