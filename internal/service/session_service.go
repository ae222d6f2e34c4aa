package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sazardev/hrauth/internal/ids"
	"github.com/sazardev/hrauth/internal/models"
	"github.com/sazardev/hrauth/internal/repository"
)

// SessionService tracks login sessions. Expiry is a derived state: a
// session idle past the inactivity window is closed lazily on the next read
// (Find, ListFor, ListAll, and through them the auth middleware), using one
// now per call so a single response never flaps between active and expired.
// The background sweeper closes idle sessions in bulk as well.
type SessionService struct {
	sessions   SessionStore
	ledger     LedgerStore
	inactivity time.Duration
	log        zerolog.Logger
}

func NewSessionService(sessions SessionStore, ledger LedgerStore, inactivity time.Duration, log zerolog.Logger) *SessionService {
	return &SessionService{
		sessions:   sessions,
		ledger:     ledger,
		inactivity: inactivity,
		log:        log,
	}
}

// Open creates an active session timestamped now.
func (s *SessionService) Open(ctx context.Context, userID, ip, userAgent string) (models.Session, error) {
	now := time.Now()
	session := models.Session{
		ID:             ids.New(),
		UserID:         &userID,
		IPAddress:      ip,
		UserAgent:      userAgent,
		CreatedAt:      now,
		LastActivityAt: now,
		IsActive:       true,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return models.Session{}, err
	}

	if err := s.ledger.Append(ctx, models.ChangeLogEntry{
		EntityType: models.EntityTypeSession,
		EntityID:   session.ID,
		ChangeType: models.ChangeTypeCreated,
		ActorID:    &userID,
		Reason:     "login",
		Snapshot:   snapshot(session),
	}); err != nil {
		return models.Session{}, err
	}

	return session, nil
}

// Touch bumps last activity. Best effort: failures are logged and never
// propagate into the request that triggered the touch.
func (s *SessionService) Touch(ctx context.Context, sessionID string) {
	if err := s.sessions.Touch(ctx, sessionID, time.Now()); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("session touch failed")
	}
}

// Close ends a session. Closing an already-ended session is a no-op, not an
// error. The returned bool reports whether this call performed the close.
func (s *SessionService) Close(ctx context.Context, sessionID string, logoutType models.LogoutType, actorID *string) (models.Session, bool, error) {
	closed, ok, err := s.sessions.Close(ctx, sessionID, time.Now(), logoutType)
	if err != nil {
		return models.Session{}, false, err
	}
	if !ok {
		return models.Session{}, false, nil
	}

	if err := s.ledger.Append(ctx, models.ChangeLogEntry{
		EntityType: models.EntityTypeSession,
		EntityID:   closed.ID,
		ChangeType: models.ChangeTypeChanged,
		ActorID:    actorID,
		Reason:     "session closed: " + string(logoutType),
		Snapshot:   snapshot(closed),
	}); err != nil {
		return models.Session{}, false, err
	}

	return closed, true, nil
}

// CloseAllFor ends every active session of a user except exceptSessionID
// (pass "" to close all). Used by forced logout and password-change flows.
func (s *SessionService) CloseAllFor(ctx context.Context, userID string, logoutType models.LogoutType, exceptSessionID string, actorID *string) ([]models.Session, error) {
	closed, err := s.sessions.CloseAllForUser(ctx, userID, time.Now(), logoutType, exceptSessionID)
	if err != nil {
		return nil, err
	}

	for _, session := range closed {
		if err := s.ledger.Append(ctx, models.ChangeLogEntry{
			EntityType: models.EntityTypeSession,
			EntityID:   session.ID,
			ChangeType: models.ChangeTypeChanged,
			ActorID:    actorID,
			Reason:     "session closed: " + string(logoutType),
			Snapshot:   snapshot(session),
		}); err != nil {
			return nil, err
		}
	}

	return closed, nil
}

// EnforceCap closes the oldest active sessions beyond the per-user limit.
func (s *SessionService) EnforceCap(ctx context.Context, userID string, maxSessions int) error {
	if maxSessions <= 0 {
		return nil
	}
	closed, err := s.sessions.CloseOldestOverCap(ctx, userID, maxSessions, time.Now())
	if err != nil {
		return err
	}
	for _, session := range closed {
		if err := s.ledger.Append(ctx, models.ChangeLogEntry{
			EntityType: models.EntityTypeSession,
			EntityID:   session.ID,
			ChangeType: models.ChangeTypeChanged,
			Reason:     "session cap exceeded",
			Snapshot:   snapshot(session),
		}); err != nil {
			return err
		}
	}
	return nil
}

// ListFor returns a user's sessions newest first by creation time, with
// lazy expiry applied.
func (s *SessionService) ListFor(ctx context.Context, userID string, includeEnded bool) ([]models.Session, error) {
	// Active-only listings still need the expiry pass, so fetch everything
	// the lazy check might close and filter afterwards.
	sessions, err := s.sessions.ListByUser(ctx, userID, includeEnded)
	if err != nil {
		return nil, err
	}

	sessions = s.expireIdle(ctx, sessions)

	if !includeEnded {
		active := sessions[:0]
		for _, session := range sessions {
			if session.IsActive {
				active = append(active, session)
			}
		}
		sessions = active
	}
	return sessions, nil
}

// ListAll returns a page of all sessions, newest first, for the admin view.
func (s *SessionService) ListAll(ctx context.Context, limit, offset int) ([]models.Session, error) {
	sessions, err := s.sessions.ListAll(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.expireIdle(ctx, sessions), nil
}

// Find returns a session by id, lazily closing it first if its inactivity
// window has elapsed.
func (s *SessionService) Find(ctx context.Context, sessionID string) (models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, err
	}

	if session.ExpiredAt(time.Now(), s.inactivity) {
		if closed, ok, err := s.Close(ctx, session.ID, models.LogoutTypeExpired, nil); err == nil && ok {
			return closed, nil
		}
	}
	return session, nil
}

func (s *SessionService) Stats(ctx context.Context) (repository.SessionStats, error) {
	return s.sessions.Stats(ctx)
}

// SweepExpired bulk-closes idle sessions; called by the cron sweeper.
func (s *SessionService) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now()
	closed, err := s.sessions.CloseExpired(ctx, now.Add(-s.inactivity), now)
	if err != nil {
		return 0, err
	}
	for _, session := range closed {
		if err := s.ledger.Append(ctx, models.ChangeLogEntry{
			EntityType: models.EntityTypeSession,
			EntityID:   session.ID,
			ChangeType: models.ChangeTypeChanged,
			Reason:     "session closed: expired",
			Snapshot:   snapshot(session),
		}); err != nil {
			s.log.Error().Err(err).Str("session_id", session.ID).Msg("expiry ledger write failed")
		}
	}
	return len(closed), nil
}

// expireIdle applies the lazy-expiry check to a listing with one shared now.
// Ledger failures during a read-path close are logged, not surfaced.
func (s *SessionService) expireIdle(ctx context.Context, sessions []models.Session) []models.Session {
	now := time.Now()
	for i, session := range sessions {
		if !session.ExpiredAt(now, s.inactivity) {
			continue
		}
		closed, ok, err := s.Close(ctx, session.ID, models.LogoutTypeExpired, nil)
		if err != nil {
			s.log.Warn().Err(err).Str("session_id", session.ID).Msg("lazy expiry close failed")
			continue
		}
		if ok {
			sessions[i] = closed
		}
	}
	return sessions
}
