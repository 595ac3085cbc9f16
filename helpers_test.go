package authcore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tradebook/authcore/jwt"
)

// memStore is an in-memory UserStore + SessionStore with the same sentinel
// behavior as the postgres implementation.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*User
	sessions map[string]*Session // keyed userID/sessionID
}

func newMemStore() *memStore {
	return &memStore{
		nextID:   1,
		users:    map[int64]*User{},
		sessions: map[string]*Session{},
	}
}

func sessKey(userID int64, sessionID string) string {
	return fmt.Sprintf("%d/%s", userID, sessionID)
}

func (m *memStore) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrDuplicateKey
		}
	}
	u.ID = m.nextID
	m.nextID++
	u.CreatedAt = time.Now().UTC()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email && !u.Deleted {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Deleted {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) UpdatePassword(_ context.Context, id int64, hash []byte, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Deleted || u.Blocked {
		return ErrNotFound
	}
	u.PasswordHash = append([]byte(nil), hash...)
	stamp := at
	u.ResetPasswordAt = &stamp
	return nil
}

func (m *memStore) SetBlocked(_ context.Context, id int64, blocked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Deleted {
		return ErrNotFound
	}
	u.Blocked = blocked
	return nil
}

func (m *memStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessKey(s.UserID, s.SessionID)
	if _, ok := m.sessions[key]; ok {
		return ErrDuplicateKey
	}
	cp := *s
	m.sessions[key] = &cp
	return nil
}

func (m *memStore) GetSession(_ context.Context, userID int64, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessKey(userID, sessionID)]
	if !ok || s.DeletedAt != nil {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) UpdateSessionMarkers(_ context.Context, userID int64, sessionID, accessID, refreshID string, refreshedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessKey(userID, sessionID)]
	if !ok || s.DeletedAt != nil {
		return ErrNotFound
	}
	s.AccessID = accessID
	s.RefreshID = refreshID
	s.RefreshedAt = refreshedAt
	return nil
}

func (m *memStore) UpdateSessionInfo(_ context.Context, userID int64, sessionID, ip, location, device string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessKey(userID, sessionID)]
	if !ok || s.DeletedAt != nil {
		return ErrNotFound
	}
	s.LastIP = ip
	s.LastLocation = location
	s.DeviceName = device
	stamp := seenAt
	s.LastSeenAt = &stamp
	return nil
}

func (m *memStore) SoftDeleteSession(_ context.Context, userID int64, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessKey(userID, sessionID)]
	if !ok || s.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	s.DeletedAt = &now
	return nil
}

func (m *memStore) PruneSessions(_ context.Context, userID int64, keep int, expiredBefore time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var live []*Session
	for _, s := range m.sessions {
		if s.UserID == userID && s.DeletedAt == nil {
			live = append(live, s)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].RefreshedAt.After(live[j].RefreshedAt)
	})

	now := time.Now().UTC()
	var pruned []string
	for i, s := range live {
		if i >= keep || s.RefreshedAt.Before(expiredBefore) {
			stamp := now
			s.DeletedAt = &stamp
			pruned = append(pruned, s.SessionID)
		}
	}
	return pruned, nil
}

func (m *memStore) DeleteAllSessions(_ context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var ids []string
	for _, s := range m.sessions {
		if s.UserID == userID && s.DeletedAt == nil {
			stamp := now
			s.DeletedAt = &stamp
			ids = append(ids, s.SessionID)
		}
	}
	return ids, nil
}

func (m *memStore) liveSessionCount(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID && s.DeletedAt == nil {
			n++
		}
	}
	return n
}

// capturingMailer records sends; failNext forces one delivery failure.
type capturingMailer struct {
	mu       sync.Mutex
	sent     []capturedMail
	failNext bool
}

type capturedMail struct {
	To      []string
	Subject string
	Body    string
}

func (m *capturingMailer) Send(to []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return fmt.Errorf("smtp unavailable")
	}
	m.sent = append(m.sent, capturedMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *capturingMailer) last(t testing.TB) capturedMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail captured")
	}
	return m.sent[len(m.sent)-1]
}

type testEnv struct {
	engine *Engine
	store  *memStore
	mailer *capturingMailer
	redis  *miniredis.Miniredis
}

func newTestEnv(t testing.TB, mutate ...func(*Config)) *testEnv {
	t.Helper()
	return newTestEnvWithSink(t, nil, mutate...)
}

func newTestEnvWithSink(t testing.TB, sink AuditSink, mutate ...func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	priv, pub, err := jwt.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}

	cfg := defaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	// Keep tests fast without weakening the verification paths.
	cfg.Password.Iterations = 100_000
	for _, fn := range mutate {
		fn(&cfg)
	}

	store := newMemStore()
	mailer := &capturingMailer{}

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStores(store, store).
		WithMailer(mailer)
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}
	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, store: store, mailer: mailer, redis: mr}
}

// registerUser drives the full signup flow and returns the user's pair.
func (env *testEnv) registerUser(t testing.TB, email, pw string) *TokenPair {
	t.Helper()
	ctx := context.Background()

	if err := env.engine.SendOTP(ctx, OTPRegister, email); err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	code := extractCode(t, env.mailer.last(t).Body)
	if err := env.engine.VerifyOTP(ctx, OTPRegister, email, code); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	pair, err := env.engine.Register(ctx, RegisterInput{Email: email, Name: "Test User", Password: pw})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return pair
}

// extractCode pulls the numeric code out of a delivery body.
func extractCode(t testing.TB, body string) string {
	t.Helper()
	var code string
	for _, r := range body {
		if r >= '0' && r <= '9' {
			code += string(r)
		} else if code != "" {
			return code
		}
	}
	if code == "" {
		t.Fatalf("no code in body: %q", body)
	}
	return code
}
