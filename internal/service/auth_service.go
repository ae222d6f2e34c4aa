package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sazardev/hrauth/internal/config"
	"github.com/sazardev/hrauth/internal/ids"
	"github.com/sazardev/hrauth/internal/mail"
	"github.com/sazardev/hrauth/internal/models"
	"github.com/sazardev/hrauth/internal/repository"
	"github.com/sazardev/hrauth/internal/security"
)

// AuthService is the façade over credential verification, token issuance,
// session tracking and login auditing. Per-session transitions:
// anonymous -> authenticated (token issued, session open) -> terminated
// (manual | expired | forced | password_change). Every login call, success
// or failure, leaves exactly one login-attempt row.
type AuthService struct {
	users    UserStore
	tokens   TokenStore
	attempts AttemptStore
	sessions *SessionService
	auditor  *LoginAuditor
	ledger   LedgerStore
	tx       TxRunner
	cache    TokenCache
	mailer   mail.Sender
	cfg      config.SecurityConfig
	baseURL  string
	log      zerolog.Logger
}

func NewAuthService(
	users UserStore,
	tokens TokenStore,
	attempts AttemptStore,
	sessions *SessionService,
	auditor *LoginAuditor,
	ledger LedgerStore,
	tx TxRunner,
	cache TokenCache,
	mailer mail.Sender,
	cfg config.SecurityConfig,
	baseURL string,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		attempts: attempts,
		sessions: sessions,
		auditor:  auditor,
		ledger:   ledger,
		tx:       tx,
		cache:    cache,
		mailer:   mailer,
		cfg:      cfg,
		baseURL:  baseURL,
		log:      log,
	}
}

type RegisterInput struct {
	Email      string
	Username   string
	Password   string
	FullName   string
	Phone      string
	Department string
	Position   string
	Bio        string
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	email := normalizeEmail(input.Email)
	username := strings.TrimSpace(input.Username)
	if len(input.Password) < 8 {
		return models.User{}, ErrWeakPassword
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return models.User{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, err
	}
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return models.User{}, ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		FullName:     input.FullName,
		Phone:        input.Phone,
		Department:   input.Department,
		Position:     input.Position,
		Bio:          input.Bio,
		Role:         models.UserRoleEmployee,
		Status:       models.UserStatusActive,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		return s.ledger.Append(ctx, models.ChangeLogEntry{
			EntityType: models.EntityTypeUser,
			EntityID:   user.ID,
			ChangeType: models.ChangeTypeCreated,
			ActorID:    &user.ID,
			Reason:     "registration",
			Snapshot:   snapshot(user),
		})
	})
	if err != nil {
		return models.User{}, err
	}

	s.sendActionMail(ctx, user, security.ActionVerifyEmail)

	return user, nil
}

type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

type LoginResult struct {
	Token   string
	User    models.User
	Session models.Session
}

// Login verifies credentials and, on success, issues a token, opens a
// session and records the attempt in one transaction: no token can exist
// without its session and audit trail. On failure the attempt is recorded
// best effort with the true internal reason while the caller only ever
// sees ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	email := normalizeEmail(input.Email)

	user, reason, err := s.verifyCredentials(ctx, email, input.Password)
	if err != nil {
		s.auditor.Record(ctx, email, input.IP, input.UserAgent, false, reason)
		return LoginResult{}, ErrInvalidCredentials
	}

	secret, hash, err := security.GenerateBearerToken()
	if err != nil {
		return LoginResult{}, err
	}

	var result LoginResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		session, err := s.sessions.Open(ctx, user.ID, input.IP, input.UserAgent)
		if err != nil {
			return err
		}

		now := time.Now()
		token := models.Token{
			ID:        ids.New(),
			UserID:    user.ID,
			SessionID: session.ID,
			TokenHash: hash,
			CreatedAt: now,
			ExpiresAt: now.Add(s.cfg.TokenTTL),
		}
		if err := s.tokens.Create(ctx, token); err != nil {
			return err
		}
		if err := s.ledger.Append(ctx, models.ChangeLogEntry{
			EntityType: models.EntityTypeToken,
			EntityID:   token.ID,
			ChangeType: models.ChangeTypeCreated,
			ActorID:    &user.ID,
			Reason:     "login",
			Snapshot:   snapshot(token),
		}); err != nil {
			return err
		}

		attempt := models.LoginAttempt{
			ID:          ids.New(),
			Email:       email,
			IPAddress:   input.IP,
			UserAgent:   input.UserAgent,
			Success:     true,
			AttemptedAt: now,
		}
		if err := s.attempts.Create(ctx, attempt); err != nil {
			return err
		}
		if err := s.ledger.Append(ctx, models.ChangeLogEntry{
			EntityType: models.EntityTypeLoginAttempt,
			EntityID:   attempt.ID,
			ChangeType: models.ChangeTypeCreated,
			ActorID:    &user.ID,
			Reason:     "login attempt",
			Snapshot:   snapshot(attempt),
		}); err != nil {
			return err
		}

		if err := s.users.UpdateLastLogin(ctx, user.ID, now, input.IP); err != nil {
			return err
		}

		if err := s.sessions.EnforceCap(ctx, user.ID, s.cfg.MaxSessions); err != nil {
			return err
		}

		result = LoginResult{Token: secret, User: user, Session: session}
		return nil
	})
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.cache.PutAuth(ctx, hash, user.ID, result.Session.ID, s.cfg.SessionInactivity); err != nil {
		s.log.Warn().Err(err).Msg("token cache put failed")
	}

	return result, nil
}

// verifyCredentials returns the user on success, or the internal failure
// reason for the auditor. Unknown email, wrong password and non-active
// accounts are indistinguishable to the caller.
func (s *AuthService) verifyCredentials(ctx context.Context, email, password string) (models.User, string, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Burn a hash comparison anyway so the timing of unknown-email
			// failures matches wrong-password failures.
			_, _ = security.VerifyPassword(password, dummyHash)
			return models.User{}, models.FailureReasonUserNotFound, ErrInvalidCredentials
		}
		return models.User{}, "", err
	}

	switch user.Status {
	case models.UserStatusSuspended:
		return models.User{}, models.FailureReasonUserSuspended, ErrInvalidCredentials
	case models.UserStatusPending:
		return models.User{}, models.FailureReasonUserPending, ErrInvalidCredentials
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return models.User{}, models.FailureReasonWrongPassword, ErrInvalidCredentials
	}

	return user, "", nil
}

// Authenticate resolves a bearer token to its user and session, applying
// lazy session expiry and bumping session activity best effort. This is the
// single validation path used by the auth middleware.
func (s *AuthService) Authenticate(ctx context.Context, bearer string) (models.User, models.Session, error) {
	hash := security.HashBearerToken(bearer)

	// Cache entries are dropped on every revocation path and live at most
	// one inactivity window, so a hit may skip the token-row read.
	userID, sessionID, cached := s.cache.GetAuth(ctx, hash)
	if !cached {
		token, err := s.tokens.FindByHash(ctx, hash)
		if err != nil {
			return models.User{}, models.Session{}, ErrUnauthorized
		}
		if time.Now().After(token.ExpiresAt) {
			s.revokeTokenQuiet(ctx, hash)
			return models.User{}, models.Session{}, ErrUnauthorized
		}
		userID, sessionID = token.UserID, token.SessionID
	}

	session, err := s.sessions.Find(ctx, sessionID)
	if err != nil {
		return models.User{}, models.Session{}, ErrUnauthorized
	}
	if !session.IsActive {
		s.revokeTokenQuiet(ctx, hash)
		return models.User{}, models.Session{}, ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.User{}, models.Session{}, ErrUnauthorized
	}
	if user.Status != models.UserStatusActive {
		return models.User{}, models.Session{}, ErrUnauthorized
	}

	s.sessions.Touch(ctx, session.ID)
	if err := s.cache.PutAuth(ctx, hash, user.ID, session.ID, s.cfg.SessionInactivity); err != nil {
		s.log.Debug().Err(err).Msg("token cache refresh failed")
	}

	return user, session, nil
}

// Logout revokes the presented token and closes its session atomically.
// Logging out twice is a no-op, not an error.
func (s *AuthService) Logout(ctx context.Context, bearer string, session models.Session, userID string) error {
	hash := security.HashBearerToken(bearer)

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		deleted, err := s.tokens.DeleteBySession(ctx, session.ID)
		if err != nil {
			return err
		}
		for _, token := range deleted {
			if err := s.ledger.Append(ctx, models.ChangeLogEntry{
				EntityType: models.EntityTypeToken,
				EntityID:   token.ID,
				ChangeType: models.ChangeTypeDeleted,
				ActorID:    &userID,
				Reason:     "logout",
				Snapshot:   snapshot(token),
			}); err != nil {
				return err
			}
		}

		_, _, err = s.sessions.Close(ctx, session.ID, models.LogoutTypeManual, &userID)
		return err
	})
	if err != nil {
		return err
	}

	if err := s.cache.Forget(ctx, hash); err != nil {
		s.log.Warn().Err(err).Msg("token cache forget failed")
	}
	return nil
}

// ChangePassword swaps the hash and invalidates every other token and
// session for the user in one transaction, so no stale token survives the
// change. The requesting session stays alive.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword, currentSessionID string) error {
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := security.VerifyPassword(oldPassword, user.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}

	newHash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}

	var revoked []models.Token
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
			return err
		}
		if err := s.ledger.Append(ctx, models.ChangeLogEntry{
			EntityType: models.EntityTypeUser,
			EntityID:   userID,
			ChangeType: models.ChangeTypeChanged,
			ActorID:    &userID,
			Reason:     "password change",
			Snapshot:   snapshot(user),
		}); err != nil {
			return err
		}

		revoked, err = s.tokens.DeleteAllForUser(ctx, userID, currentSessionID)
		if err != nil {
			return err
		}
		for _, token := range revoked {
			if err := s.ledger.Append(ctx, models.ChangeLogEntry{
				EntityType: models.EntityTypeToken,
				EntityID:   token.ID,
				ChangeType: models.ChangeTypeDeleted,
				ActorID:    &userID,
				Reason:     "password change",
				Snapshot:   snapshot(token),
			}); err != nil {
				return err
			}
		}

		_, err = s.sessions.CloseAllFor(ctx, userID, models.LogoutTypePasswordChange, currentSessionID, &userID)
		return err
	})
	if err != nil {
		return err
	}

	s.forgetTokens(ctx, revoked)
	return nil
}

// ForceLogout lets an admin terminate another user's session. The session's
// token is revoked along with it.
func (s *AuthService) ForceLogout(ctx context.Context, actor models.User, sessionID string) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}

	if _, err := s.sessions.Find(ctx, sessionID); err != nil {
		return err
	}

	var revoked []models.Token
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		revoked, err = s.tokens.DeleteBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		for _, token := range revoked {
			if err := s.ledger.Append(ctx, models.ChangeLogEntry{
				EntityType: models.EntityTypeToken,
				EntityID:   token.ID,
				ChangeType: models.ChangeTypeDeleted,
				ActorID:    &actor.ID,
				Reason:     "forced logout",
				Snapshot:   snapshot(token),
			}); err != nil {
				return err
			}
		}

		_, _, err = s.sessions.Close(ctx, sessionID, models.LogoutTypeForced, &actor.ID)
		return err
	})
	if err != nil {
		return err
	}

	s.forgetTokens(ctx, revoked)
	return nil
}

// SetUserStatus lets an admin suspend, reactivate or hold a user. Suspending
// revokes every token and closes every session so the account is locked out
// immediately, not at next expiry.
func (s *AuthService) SetUserStatus(ctx context.Context, actor models.User, userID string, status models.UserStatus) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	var revoked []models.Token
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.UpdateStatus(ctx, userID, status); err != nil {
			return err
		}
		user.Status = status
		if err := s.ledger.Append(ctx, models.ChangeLogEntry{
			EntityType: models.EntityTypeUser,
			EntityID:   userID,
			ChangeType: models.ChangeTypeChanged,
			ActorID:    &actor.ID,
			Reason:     "status set: " + string(status),
			Snapshot:   snapshot(user),
		}); err != nil {
			return err
		}

		if status == models.UserStatusActive {
			return nil
		}

		revoked, err = s.tokens.DeleteAllForUser(ctx, userID, "")
		if err != nil {
			return err
		}
		for _, token := range revoked {
			if err := s.ledger.Append(ctx, models.ChangeLogEntry{
				EntityType: models.EntityTypeToken,
				EntityID:   token.ID,
				ChangeType: models.ChangeTypeDeleted,
				ActorID:    &actor.ID,
				Reason:     "account " + string(status),
				Snapshot:   snapshot(token),
			}); err != nil {
				return err
			}
		}
		_, err = s.sessions.CloseAllFor(ctx, userID, models.LogoutTypeForced, "", &actor.ID)
		return err
	})
	if err != nil {
		return err
	}

	s.forgetTokens(ctx, revoked)
	return nil
}

// RequestPasswordReset mints a one-time reset token and mails it. The
// response is identical whether or not the email exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}

	s.sendActionMail(ctx, user, security.ActionPasswordReset)
	return nil
}

// ConfirmPasswordReset consumes a reset token, swaps the hash, and
// terminates every session and token of the user.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, tokenStr, newPassword string) error {
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}

	claims, err := security.ParseActionToken(tokenStr, s.cfg.ActionTokenSecret, security.ActionPasswordReset)
	if err != nil {
		return ErrUnauthorized
	}
	used, err := s.cache.ConsumeActionID(ctx, claims.ID)
	if err != nil {
		return err
	}
	if !used {
		return ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return ErrUnauthorized
	}

	newHash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}

	var revoked []models.Token
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.UpdatePassword(ctx, user.ID, newHash); err != nil {
			return err
		}
		if err := s.ledger.Append(ctx, models.ChangeLogEntry{
			EntityType: models.EntityTypeUser,
			EntityID:   user.ID,
			ChangeType: models.ChangeTypeChanged,
			ActorID:    &user.ID,
			Reason:     "password reset",
			Snapshot:   snapshot(user),
		}); err != nil {
			return err
		}

		revoked, err = s.tokens.DeleteAllForUser(ctx, user.ID, "")
		if err != nil {
			return err
		}
		_, err = s.sessions.CloseAllFor(ctx, user.ID, models.LogoutTypePasswordChange, "", &user.ID)
		return err
	})
	if err != nil {
		return err
	}

	s.forgetTokens(ctx, revoked)
	return nil
}

// VerifyEmail consumes a verification token and flips the flag.
func (s *AuthService) VerifyEmail(ctx context.Context, tokenStr string) error {
	claims, err := security.ParseActionToken(tokenStr, s.cfg.ActionTokenSecret, security.ActionVerifyEmail)
	if err != nil {
		return ErrUnauthorized
	}
	used, err := s.cache.ConsumeActionID(ctx, claims.ID)
	if err != nil {
		return err
	}
	if !used {
		return ErrUnauthorized
	}

	if err := s.users.SetEmailVerified(ctx, claims.UserID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	return s.ledger.Append(ctx, models.ChangeLogEntry{
		EntityType: models.EntityTypeUser,
		EntityID:   claims.UserID,
		ChangeType: models.ChangeTypeChanged,
		ActorID:    &claims.UserID,
		Reason:     "email verified",
		Snapshot:   snapshot(map[string]any{"id": claims.UserID, "email_verified": true}),
	})
}

func (s *AuthService) sendActionMail(ctx context.Context, user models.User, action string) {
	jti := ids.New()

	var ttl time.Duration
	switch action {
	case security.ActionPasswordReset:
		ttl = s.cfg.ResetTokenTTL
	default:
		ttl = s.cfg.VerifyTokenTTL
	}

	token, err := security.GenerateActionToken(s.cfg.ActionTokenSecret, user.ID, action, jti, ttl)
	if err != nil {
		s.log.Error().Err(err).Str("action", action).Msg("action token mint failed")
		return
	}
	if err := s.cache.StoreActionID(ctx, jti, ttl); err != nil {
		s.log.Error().Err(err).Str("action", action).Msg("action token store failed")
		return
	}

	var subject, body string
	switch action {
	case security.ActionPasswordReset:
		subject, body = mail.PasswordResetSubject(), mail.PasswordResetBody(s.baseURL, token)
	default:
		subject, body = mail.VerifyEmailSubject(), mail.VerifyEmailBody(s.baseURL, token)
	}

	if err := s.mailer.Send(user.Email, subject, body); err != nil {
		s.log.Error().Err(err).Str("action", action).Msg("action mail send failed")
	}
}

func (s *AuthService) revokeTokenQuiet(ctx context.Context, hash []byte) {
	if err := s.tokens.DeleteByHash(ctx, hash); err != nil && !errors.Is(err, repository.ErrTokenNotFound) {
		s.log.Warn().Err(err).Msg("stale token delete failed")
	}
	if err := s.cache.Forget(ctx, hash); err != nil {
		s.log.Debug().Err(err).Msg("token cache forget failed")
	}
}

func (s *AuthService) forgetTokens(ctx context.Context, tokens []models.Token) {
	hashes := make([][]byte, 0, len(tokens))
	for _, token := range tokens {
		hashes = append(hashes, token.TokenHash)
	}
	if err := s.cache.Forget(ctx, hashes...); err != nil {
		s.log.Warn().Err(err).Msg("token cache forget failed")
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// dummyHash keeps unknown-email verification from returning faster than a
// real comparison. Hash of an unguessable random string.
var dummyHash = func() []byte {
	h, err := security.HashPassword(ids.New() + ids.New())
	if err != nil {
		return []byte("$argon2id$v=19$t=3,m=65536,p=2$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	}
	return h
}()
