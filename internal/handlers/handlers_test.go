package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sazardev/hrauth/internal/config"
	"github.com/sazardev/hrauth/internal/ids"
	"github.com/sazardev/hrauth/internal/models"
	"github.com/sazardev/hrauth/internal/repository"
	"github.com/sazardev/hrauth/internal/security"
	"github.com/sazardev/hrauth/internal/service"
)

// In-memory backing stores so the HTTP layer is tested over the real
// services, middleware included, without a database.

type fakeStores struct {
	users    map[string]models.User
	sessions map[string]models.Session
	tokens   map[string]models.Token
	attempts []models.LoginAttempt
	ledger   []models.ChangeLogEntry
}

func newFakeStores() *fakeStores {
	return &fakeStores{
		users:    make(map[string]models.User),
		sessions: make(map[string]models.Session),
		tokens:   make(map[string]models.Token),
	}
}

// UserStore

type fakeUsers struct{ s *fakeStores }

func (f fakeUsers) Create(_ context.Context, user models.User) error {
	f.s.users[user.ID] = user
	return nil
}
func (f fakeUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	for _, u := range f.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}
func (f fakeUsers) FindByUsername(_ context.Context, username string) (models.User, error) {
	for _, u := range f.s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}
func (f fakeUsers) GetByID(_ context.Context, id string) (models.User, error) {
	u, ok := f.s.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}
func (f fakeUsers) UpdatePassword(_ context.Context, id string, hash []byte) error {
	u := f.s.users[id]
	u.PasswordHash = hash
	f.s.users[id] = u
	return nil
}
func (f fakeUsers) UpdateLastLogin(_ context.Context, id string, at time.Time, ip string) error {
	u := f.s.users[id]
	u.LastLoginAt = &at
	u.LastLoginIP = ip
	f.s.users[id] = u
	return nil
}
func (f fakeUsers) UpdateStatus(_ context.Context, id string, status models.UserStatus) error {
	u, ok := f.s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Status = status
	f.s.users[id] = u
	return nil
}
func (f fakeUsers) SetEmailVerified(_ context.Context, id string) error {
	u := f.s.users[id]
	u.EmailVerified = true
	f.s.users[id] = u
	return nil
}

// SessionStore

type fakeSessions struct{ s *fakeStores }

func (f fakeSessions) Create(_ context.Context, session models.Session) error {
	f.s.sessions[session.ID] = session
	return nil
}
func (f fakeSessions) GetByID(_ context.Context, id string) (models.Session, error) {
	s, ok := f.s.sessions[id]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return s, nil
}
func (f fakeSessions) ListByUser(_ context.Context, userID string, includeEnded bool) ([]models.Session, error) {
	var out []models.Session
	for _, s := range f.s.sessions {
		if s.UserID != nil && *s.UserID == userID && (includeEnded || s.IsActive) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
func (f fakeSessions) ListAll(_ context.Context, limit, offset int) ([]models.Session, error) {
	var out []models.Session
	for _, s := range f.s.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
func (f fakeSessions) Close(_ context.Context, id string, endedAt time.Time, logoutType models.LogoutType) (models.Session, bool, error) {
	s, ok := f.s.sessions[id]
	if !ok || !s.IsActive {
		return models.Session{}, false, nil
	}
	s.IsActive = false
	s.EndedAt = &endedAt
	s.LogoutType = logoutType
	f.s.sessions[id] = s
	return s, true, nil
}
func (f fakeSessions) CloseAllForUser(ctx context.Context, userID string, endedAt time.Time, logoutType models.LogoutType, exceptID string) ([]models.Session, error) {
	var closed []models.Session
	for id, s := range f.s.sessions {
		if s.UserID != nil && *s.UserID == userID && s.IsActive && id != exceptID {
			c, _, _ := f.Close(ctx, id, endedAt, logoutType)
			closed = append(closed, c)
		}
	}
	return closed, nil
}
func (f fakeSessions) CloseOldestOverCap(_ context.Context, userID string, keep int, endedAt time.Time) ([]models.Session, error) {
	return nil, nil
}
func (f fakeSessions) CloseExpired(_ context.Context, cutoff, endedAt time.Time) ([]models.Session, error) {
	return nil, nil
}
func (f fakeSessions) Touch(_ context.Context, id string, at time.Time) error {
	s, ok := f.s.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.LastActivityAt = at
	f.s.sessions[id] = s
	return nil
}
func (f fakeSessions) Stats(_ context.Context) (repository.SessionStats, error) {
	var stats repository.SessionStats
	users := make(map[string]struct{})
	for _, s := range f.s.sessions {
		stats.Total++
		if s.IsActive {
			stats.Active++
		} else {
			stats.Inactive++
		}
		if s.UserID != nil {
			users[*s.UserID] = struct{}{}
		}
	}
	stats.DistinctUsers = len(users)
	return stats, nil
}

// TokenStore

type fakeTokens struct{ s *fakeStores }

func (f fakeTokens) Create(_ context.Context, token models.Token) error {
	f.s.tokens[token.ID] = token
	return nil
}
func (f fakeTokens) FindByHash(_ context.Context, hash []byte) (models.Token, error) {
	for _, t := range f.s.tokens {
		if bytes.Equal(t.TokenHash, hash) {
			return t, nil
		}
	}
	return models.Token{}, repository.ErrTokenNotFound
}
func (f fakeTokens) DeleteByHash(_ context.Context, hash []byte) error {
	for id, t := range f.s.tokens {
		if bytes.Equal(t.TokenHash, hash) {
			delete(f.s.tokens, id)
			return nil
		}
	}
	return repository.ErrTokenNotFound
}
func (f fakeTokens) DeleteBySession(_ context.Context, sessionID string) ([]models.Token, error) {
	var deleted []models.Token
	for id, t := range f.s.tokens {
		if t.SessionID == sessionID {
			deleted = append(deleted, t)
			delete(f.s.tokens, id)
		}
	}
	return deleted, nil
}
func (f fakeTokens) DeleteAllForUser(_ context.Context, userID, exceptSessionID string) ([]models.Token, error) {
	var deleted []models.Token
	for id, t := range f.s.tokens {
		if t.UserID == userID && t.SessionID != exceptSessionID {
			deleted = append(deleted, t)
			delete(f.s.tokens, id)
		}
	}
	return deleted, nil
}

// AttemptStore

type fakeAttempts struct{ s *fakeStores }

func (f fakeAttempts) Create(_ context.Context, attempt models.LoginAttempt) error {
	f.s.attempts = append(f.s.attempts, attempt)
	return nil
}
func (f fakeAttempts) List(_ context.Context, filter repository.AttemptFilter) ([]models.LoginAttempt, error) {
	var out []models.LoginAttempt
	for _, a := range f.s.attempts {
		if filter.Email != "" && a.Email != filter.Email {
			continue
		}
		if filter.Success != nil && a.Success != *filter.Success {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
func (f fakeAttempts) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// LedgerStore

type fakeLedger struct{ s *fakeStores }

func (f fakeLedger) Append(_ context.Context, entry models.ChangeLogEntry) error {
	f.s.ledger = append(f.s.ledger, entry)
	return nil
}

type passTx struct{}

func (passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeCache struct {
	auth    map[string][2]string
	actions map[string]struct{}
}

func newFakeCache() *fakeCache {
	return &fakeCache{auth: make(map[string][2]string), actions: make(map[string]struct{})}
}
func (c *fakeCache) PutAuth(_ context.Context, hash []byte, userID, sessionID string, _ time.Duration) error {
	c.auth[string(hash)] = [2]string{userID, sessionID}
	return nil
}
func (c *fakeCache) GetAuth(_ context.Context, hash []byte) (string, string, bool) {
	v, ok := c.auth[string(hash)]
	return v[0], v[1], ok
}
func (c *fakeCache) Forget(_ context.Context, hashes ...[]byte) error {
	for _, h := range hashes {
		delete(c.auth, string(h))
	}
	return nil
}
func (c *fakeCache) StoreActionID(_ context.Context, jti string, _ time.Duration) error {
	c.actions[jti] = struct{}{}
	return nil
}
func (c *fakeCache) ConsumeActionID(_ context.Context, jti string) (bool, error) {
	if _, ok := c.actions[jti]; !ok {
		return false, nil
	}
	delete(c.actions, jti)
	return true, nil
}

type dropMailer struct{}

func (dropMailer) Send(string, string, string) error { return nil }

// Compile-time interface checks.
var (
	_ service.UserStore    = fakeUsers{}
	_ service.SessionStore = fakeSessions{}
	_ service.TokenStore   = fakeTokens{}
	_ service.AttemptStore = fakeAttempts{}
	_ service.LedgerStore  = fakeLedger{}
	_ service.TxRunner     = passTx{}
	_ service.TokenCache   = (*fakeCache)(nil)
)

type testServer struct {
	engine *gin.Engine
	stores *fakeStores
}

func newTestServer(t *testing.T, users ...models.User) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	stores := newFakeStores()
	for _, u := range users {
		stores.users[u.ID] = u
	}

	logger := zerolog.Nop()
	cfg := &config.AppConfig{
		Environment: "test",
		BaseURL:     "http://localhost:8080",
		Security: config.SecurityConfig{
			TokenTTL:          time.Hour,
			SessionInactivity: 30 * time.Minute,
			MaxSessions:       10,
			ActionTokenSecret: "test-secret",
			ResetTokenTTL:     time.Hour,
			VerifyTokenTTL:    time.Hour,
		},
	}

	sessionSvc := service.NewSessionService(fakeSessions{stores}, fakeLedger{stores}, cfg.Security.SessionInactivity, logger)
	auditor := service.NewLoginAuditor(fakeAttempts{stores}, fakeLedger{stores}, logger)
	authSvc := service.NewAuthService(
		fakeUsers{stores}, fakeTokens{stores}, fakeAttempts{stores}, sessionSvc, auditor,
		fakeLedger{stores}, passTx{}, newFakeCache(), dropMailer{}, cfg.Security, cfg.BaseURL, logger,
	)

	hs := HandlerSet{
		log:         logger,
		cfg:         cfg,
		authService: authSvc,
		sessions:    sessionSvc,
		auditor:     auditor,
	}

	engine := gin.New()
	hs.Register(engine.Group("/api"))

	return &testServer{engine: engine, stores: stores}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func seedUser(t *testing.T, email, password string, role models.UserRole) models.User {
	t.Helper()
	hash, err := security.HashPassword(password)
	require.NoError(t, err)
	return models.User{
		ID:           ids.New(),
		Email:        email,
		Username:     "u-" + ids.New(),
		PasswordHash: hash,
		FullName:     "Test User",
		Role:         role,
		Status:       models.UserStatusActive,
		CreatedAt:    time.Now(),
	}
}

func login(t *testing.T, ts *testServer, email, password string) (string, string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token   string `json:"token"`
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token, resp.Session.ID
}

func TestLoginEndpoint(t *testing.T) {
	user := seedUser(t, "alice@example.com", "correct horse", models.UserRoleEmployee)
	ts := newTestServer(t, user)

	t.Run("success", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
			"email": "alice@example.com", "password": "correct horse",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp, "token")
		assert.Contains(t, resp, "user")
		assert.Contains(t, resp, "session")
		assert.NotContains(t, rec.Body.String(), "PasswordHash")
		assert.NotContains(t, rec.Body.String(), "passwordHash")
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
			"email": "alice@example.com", "password": "nope",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_credentials")
	})

	t.Run("unknown email gets the same error", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
			"email": "nobody@example.com", "password": "nope",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_credentials")
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader([]byte("{")))
		rec := httptest.NewRecorder()
		ts.engine.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRegisterEndpoint(t *testing.T) {
	existing := seedUser(t, "taken@example.com", "correct horse", models.UserRoleEmployee)
	ts := newTestServer(t, existing)

	t.Run("created", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
			"email": "bob@example.com", "username": "bobby", "password": "long enough", "fullName": "Bob",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
			"email": "taken@example.com", "username": "other", "password": "long enough", "fullName": "Other",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "email_taken")
	})

	t.Run("short password rejected by binding", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
			"email": "c@example.com", "username": "ccc", "password": "short", "fullName": "C",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestProtectedRoutes(t *testing.T) {
	user := seedUser(t, "alice@example.com", "correct horse", models.UserRoleEmployee)
	ts := newTestServer(t, user)

	t.Run("missing token", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing_token")
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/auth/me", "garbage", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_token")
	})

	t.Run("me with valid token", func(t *testing.T) {
		token, _ := login(t, ts, "alice@example.com", "correct horse")
		rec := ts.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "alice@example.com")
	})

	t.Run("logout kills the token", func(t *testing.T) {
		token, _ := login(t, ts, "alice@example.com", "correct horse")

		rec := ts.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = ts.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("own sessions listing", func(t *testing.T) {
		token, sessionID := login(t, ts, "alice@example.com", "correct horse")
		rec := ts.do(t, http.MethodGet, "/api/v1/auth/sessions", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), sessionID)
	})
}

func TestAdminRoutes(t *testing.T) {
	employee := seedUser(t, "emp@example.com", "correct horse", models.UserRoleEmployee)
	admin := seedUser(t, "admin@example.com", "correct horse", models.UserRoleAdmin)
	ts := newTestServer(t, employee, admin)

	empToken, empSessionID := login(t, ts, "emp@example.com", "correct horse")
	adminToken, _ := login(t, ts, "admin@example.com", "correct horse")

	t.Run("employee forbidden", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/admin/sessions", empToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin session overview with stats", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/admin/sessions", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), "stats")
		assert.Contains(t, rec.Body.String(), "distinctUsers")
	})

	t.Run("force logout", func(t *testing.T) {
		rec := ts.do(t, http.MethodDelete, "/api/v1/admin/sessions", adminToken, gin.H{"session_id": empSessionID})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		// The employee's token is dead now.
		rec = ts.do(t, http.MethodGet, "/api/v1/auth/me", empToken, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("force logout unknown session", func(t *testing.T) {
		rec := ts.do(t, http.MethodDelete, "/api/v1/admin/sessions", adminToken, gin.H{"session_id": "missing"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("user session history", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/admin/sessions/history/"+employee.ID, adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), empSessionID)
	})

	t.Run("login attempts with filter", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/admin/login-attempts?email=emp@example.com&success=true", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "emp@example.com")
	})

	t.Run("login attempts bad filter", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/admin/login-attempts?success=maybe", adminToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
