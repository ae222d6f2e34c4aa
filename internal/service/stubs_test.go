package service

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/sazardev/hrauth/internal/models"
	"github.com/sazardev/hrauth/internal/repository"
)

// In-memory store fakes shared by the service tests. Error injection happens
// through the err* fields; everything else behaves like the real thing.

type memUsers struct {
	byID      map[string]models.User
	errCreate error
}

func newMemUsers(users ...models.User) *memUsers {
	m := &memUsers{byID: make(map[string]models.User)}
	for _, u := range users {
		m.byID[u.ID] = u
	}
	return m
}

func (m *memUsers) Create(_ context.Context, user models.User) error {
	if m.errCreate != nil {
		return m.errCreate
	}
	m.byID[user.ID] = user
	return nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (models.User, error) {
	for _, u := range m.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *memUsers) GetByID(_ context.Context, id string) (models.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id string, passwordHash []byte) error {
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	m.byID[id] = u
	return nil
}

func (m *memUsers) UpdateLastLogin(_ context.Context, id string, at time.Time, ip string) error {
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.LastLoginAt = &at
	u.LastLoginIP = ip
	m.byID[id] = u
	return nil
}

func (m *memUsers) UpdateStatus(_ context.Context, id string, status models.UserStatus) error {
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Status = status
	m.byID[id] = u
	return nil
}

func (m *memUsers) SetEmailVerified(_ context.Context, id string) error {
	u, ok := m.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.EmailVerified = true
	m.byID[id] = u
	return nil
}

type memSessions struct {
	byID map[string]models.Session
}

func newMemSessions(sessions ...models.Session) *memSessions {
	m := &memSessions{byID: make(map[string]models.Session)}
	for _, s := range sessions {
		m.byID[s.ID] = s
	}
	return m
}

func (m *memSessions) Create(_ context.Context, session models.Session) error {
	m.byID[session.ID] = session
	return nil
}

func (m *memSessions) GetByID(_ context.Context, id string) (models.Session, error) {
	s, ok := m.byID[id]
	if !ok {
		return models.Session{}, repository.ErrSessionNotFound
	}
	return s, nil
}

func (m *memSessions) ListByUser(_ context.Context, userID string, includeEnded bool) ([]models.Session, error) {
	var out []models.Session
	for _, s := range m.byID {
		if s.UserID == nil || *s.UserID != userID {
			continue
		}
		if !includeEnded && !s.IsActive {
			continue
		}
		out = append(out, s)
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *memSessions) ListAll(_ context.Context, limit, offset int) ([]models.Session, error) {
	var out []models.Session
	for _, s := range m.byID {
		out = append(out, s)
	}
	sortNewestFirst(out)
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSessions) Close(_ context.Context, id string, endedAt time.Time, logoutType models.LogoutType) (models.Session, bool, error) {
	s, ok := m.byID[id]
	if !ok || !s.IsActive {
		return models.Session{}, false, nil
	}
	s.IsActive = false
	s.EndedAt = &endedAt
	s.LogoutType = logoutType
	m.byID[id] = s
	return s, true, nil
}

func (m *memSessions) CloseAllForUser(ctx context.Context, userID string, endedAt time.Time, logoutType models.LogoutType, exceptID string) ([]models.Session, error) {
	var closed []models.Session
	for id, s := range m.byID {
		if s.UserID == nil || *s.UserID != userID || !s.IsActive || id == exceptID {
			continue
		}
		c, _, _ := m.Close(ctx, id, endedAt, logoutType)
		closed = append(closed, c)
	}
	return closed, nil
}

func (m *memSessions) CloseOldestOverCap(ctx context.Context, userID string, keep int, endedAt time.Time) ([]models.Session, error) {
	var active []models.Session
	for _, s := range m.byID {
		if s.UserID != nil && *s.UserID == userID && s.IsActive {
			active = append(active, s)
		}
	}
	sortNewestFirst(active)
	var closed []models.Session
	for _, s := range active[min(keep, len(active)):] {
		c, _, _ := m.Close(ctx, s.ID, endedAt, models.LogoutTypeForced)
		closed = append(closed, c)
	}
	return closed, nil
}

func (m *memSessions) CloseExpired(ctx context.Context, cutoff time.Time, endedAt time.Time) ([]models.Session, error) {
	var closed []models.Session
	for id, s := range m.byID {
		if !s.IsActive || !s.LastActivityAt.Before(cutoff) {
			continue
		}
		c, _, _ := m.Close(ctx, id, endedAt, models.LogoutTypeExpired)
		closed = append(closed, c)
	}
	return closed, nil
}

func (m *memSessions) Touch(_ context.Context, id string, at time.Time) error {
	s, ok := m.byID[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.LastActivityAt = at
	m.byID[id] = s
	return nil
}

func (m *memSessions) Stats(_ context.Context) (repository.SessionStats, error) {
	var stats repository.SessionStats
	users := make(map[string]struct{})
	for _, s := range m.byID {
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

func sortNewestFirst(sessions []models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}

type memTokens struct {
	byID map[string]models.Token
}

func newMemTokens(tokens ...models.Token) *memTokens {
	m := &memTokens{byID: make(map[string]models.Token)}
	for _, t := range tokens {
		m.byID[t.ID] = t
	}
	return m
}

func (m *memTokens) Create(_ context.Context, token models.Token) error {
	m.byID[token.ID] = token
	return nil
}

func (m *memTokens) FindByHash(_ context.Context, hash []byte) (models.Token, error) {
	for _, t := range m.byID {
		if bytes.Equal(t.TokenHash, hash) {
			return t, nil
		}
	}
	return models.Token{}, repository.ErrTokenNotFound
}

func (m *memTokens) DeleteByHash(_ context.Context, hash []byte) error {
	for id, t := range m.byID {
		if bytes.Equal(t.TokenHash, hash) {
			delete(m.byID, id)
			return nil
		}
	}
	return repository.ErrTokenNotFound
}

func (m *memTokens) DeleteBySession(_ context.Context, sessionID string) ([]models.Token, error) {
	var deleted []models.Token
	for id, t := range m.byID {
		if t.SessionID == sessionID {
			deleted = append(deleted, t)
			delete(m.byID, id)
		}
	}
	return deleted, nil
}

func (m *memTokens) DeleteAllForUser(_ context.Context, userID string, exceptSessionID string) ([]models.Token, error) {
	var deleted []models.Token
	for id, t := range m.byID {
		if t.UserID == userID && t.SessionID != exceptSessionID {
			deleted = append(deleted, t)
			delete(m.byID, id)
		}
	}
	return deleted, nil
}

type memAttempts struct {
	rows      []models.LoginAttempt
	errCreate error
}

func (m *memAttempts) Create(_ context.Context, attempt models.LoginAttempt) error {
	if m.errCreate != nil {
		return m.errCreate
	}
	m.rows = append(m.rows, attempt)
	return nil
}

func (m *memAttempts) List(_ context.Context, filter repository.AttemptFilter) ([]models.LoginAttempt, error) {
	var out []models.LoginAttempt
	for _, a := range m.rows {
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

func (m *memAttempts) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []models.LoginAttempt
	var dropped int64
	for _, a := range m.rows {
		if a.AttemptedAt.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, a)
	}
	m.rows = kept
	return dropped, nil
}

type memLedger struct {
	entries []models.ChangeLogEntry
	errAll  error
}

func (m *memLedger) Append(_ context.Context, entry models.ChangeLogEntry) error {
	if m.errAll != nil {
		return m.errAll
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memLedger) countFor(entityType string, changeType models.ChangeType) int {
	n := 0
	for _, e := range m.entries {
		if e.EntityType == entityType && e.ChangeType == changeType {
			n++
		}
	}
	return n
}

// passTx runs the callback directly; the fakes have no transactions.
type passTx struct{}

func (passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memCache struct {
	auth    map[string]string // hash -> userID:sessionID
	actions map[string]struct{}
}

func newMemCache() *memCache {
	return &memCache{auth: make(map[string]string), actions: make(map[string]struct{})}
}

func (m *memCache) PutAuth(_ context.Context, hash []byte, userID, sessionID string, _ time.Duration) error {
	m.auth[string(hash)] = userID + ":" + sessionID
	return nil
}

func (m *memCache) GetAuth(_ context.Context, hash []byte) (string, string, bool) {
	v, ok := m.auth[string(hash)]
	if !ok {
		return "", "", false
	}
	for i := 0; i < len(v); i++ {
		if v[i] == ':' {
			return v[:i], v[i+1:], true
		}
	}
	return "", "", false
}

func (m *memCache) Forget(_ context.Context, hashes ...[]byte) error {
	for _, h := range hashes {
		delete(m.auth, string(h))
	}
	return nil
}

func (m *memCache) StoreActionID(_ context.Context, jti string, _ time.Duration) error {
	m.actions[jti] = struct{}{}
	return nil
}

func (m *memCache) ConsumeActionID(_ context.Context, jti string) (bool, error) {
	if _, ok := m.actions[jti]; !ok {
		return false, nil
	}
	delete(m.actions, jti)
	return true, nil
}

type memMailer struct {
	sent []string // recipient addresses
}

func (m *memMailer) Send(to, _, _ string) error {
	m.sent = append(m.sent, to)
	return nil
}
