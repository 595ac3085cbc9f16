package middleware_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tradebook/authcore"
	"github.com/tradebook/authcore/jwt"
	"github.com/tradebook/authcore/middleware"
	"github.com/tradebook/authcore/password"
)

// seededStore is just enough durable store to log in one pre-created user.
type seededStore struct {
	mu       sync.Mutex
	user     authcore.User
	sessions map[string]*authcore.Session
}

func (s *seededStore) CreateUser(context.Context, *authcore.User) error { return nil }

func (s *seededStore) GetUserByEmail(_ context.Context, email string) (*authcore.User, error) {
	if email != s.user.Email {
		return nil, authcore.ErrNotFound
	}
	u := s.user
	return &u, nil
}

func (s *seededStore) GetUserByID(_ context.Context, id int64) (*authcore.User, error) {
	if id != s.user.ID {
		return nil, authcore.ErrNotFound
	}
	u := s.user
	return &u, nil
}

func (s *seededStore) UpdatePassword(context.Context, int64, []byte, time.Time) error { return nil }

func (s *seededStore) SetBlocked(context.Context, int64, bool) error { return nil }

func (s *seededStore) CreateSession(_ context.Context, sess *authcore.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.SessionID] = &cp
	return nil
}

func (s *seededStore) GetSession(_ context.Context, _ int64, sessionID string) (*authcore.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.DeletedAt != nil {
		return nil, authcore.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *seededStore) UpdateSessionMarkers(_ context.Context, _ int64, sessionID, accessID, refreshID string, refreshedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return authcore.ErrNotFound
	}
	sess.AccessID = accessID
	sess.RefreshID = refreshID
	sess.RefreshedAt = refreshedAt
	return nil
}

func (s *seededStore) UpdateSessionInfo(context.Context, int64, string, string, string, string, time.Time) error {
	return nil
}

func (s *seededStore) SoftDeleteSession(context.Context, int64, string) error { return nil }

func (s *seededStore) PruneSessions(context.Context, int64, int, time.Time) ([]string, error) {
	return nil, nil
}

func (s *seededStore) DeleteAllSessions(context.Context, int64) ([]string, error) {
	return nil, nil
}

type silentMailer struct{}

func (silentMailer) Send([]string, string, string) error { return nil }

func newGuardedEngine(t *testing.T) *authcore.Engine {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	priv, pub, err := jwt.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}

	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub

	kdf, err := password.NewKDF(password.Config{Iterations: cfg.Password.Iterations, KeyLength: cfg.Password.KeyLength})
	if err != nil {
		t.Fatalf("kdf: %v", err)
	}
	hash, err := kdf.Hash("correct horse battery", cfg.Password.SaltLength)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	store := &seededStore{
		user: authcore.User{
			ID:           1,
			Email:        "ana@example.com",
			Name:         "Ana",
			PasswordHash: hash,
		},
		sessions: map[string]*authcore.Session{},
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStores(store, store).
		WithMailer(silentMailer{}).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := middleware.IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "no identity", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "user=%d fresh=%t", id.UserID, id.Fresh)
	})
}

func doGuarded(t *testing.T, handler http.Handler, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode envelope: %v (%q)", err, rec.Body.String())
	}
	return body
}

func TestGuardAcceptsValidToken(t *testing.T) {
	engine := newGuardedEngine(t)
	pair, err := engine.Login(context.Background(), authcore.LoginInput{Email: "ana@example.com", Password: "correct horse battery"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	handler := middleware.Guard(engine)(echoIdentity())
	rec := doGuarded(t, handler, "Bearer "+pair.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got, want := rec.Body.String(), "user=1 fresh=true"; got != want {
		t.Fatalf("body = %q, want %q", got, want)
	}
}

func TestGuardRejectsMissingAndGarbageTokens(t *testing.T) {
	engine := newGuardedEngine(t)
	handler := middleware.Guard(engine)(echoIdentity())

	for name, header := range map[string]string{
		"missing":   "",
		"no scheme": "sometoken",
		"empty":     "Bearer ",
		"garbage":   "Bearer not.a.jwt",
	} {
		rec := doGuarded(t, handler, header)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: transport status = %d, want 200", name, rec.Code)
		}
		body := decodeEnvelope(t, rec)
		if body["status"] != float64(http.StatusUnauthorized) {
			t.Fatalf("%s: envelope status = %v, want 401", name, body["status"])
		}
		if body["code"] != "token_invalid" {
			t.Fatalf("%s: envelope code = %v, want token_invalid", name, body["code"])
		}
	}
}

func TestGuardRejectsRefreshToken(t *testing.T) {
	engine := newGuardedEngine(t)
	pair, err := engine.Login(context.Background(), authcore.LoginInput{Email: "ana@example.com", Password: "correct horse battery"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	handler := middleware.Guard(engine)(echoIdentity())
	rec := doGuarded(t, handler, "Bearer "+pair.RefreshToken)
	body := decodeEnvelope(t, rec)
	if body["code"] != "token_invalid" {
		t.Fatalf("envelope code = %v, want token_invalid", body["code"])
	}
}

func TestFreshGuardRejectsRefreshedToken(t *testing.T) {
	engine := newGuardedEngine(t)
	ctx := context.Background()
	pair, err := engine.Login(ctx, authcore.LoginInput{Email: "ana@example.com", Password: "correct horse battery"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	handler := middleware.FreshGuard(engine)(echoIdentity())

	rec := doGuarded(t, handler, "Bearer "+pair.AccessToken)
	if got, want := rec.Body.String(), "user=1 fresh=true"; got != want {
		t.Fatalf("fresh token body = %q, want %q", got, want)
	}

	rotated, err := engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	rec = doGuarded(t, handler, "Bearer "+rotated.AccessToken)
	body := decodeEnvelope(t, rec)
	if body["code"] != "fresh_token_required" {
		t.Fatalf("envelope code = %v, want fresh_token_required", body["code"])
	}

	// The plain guard still accepts the refreshed token.
	rec = doGuarded(t, middleware.Guard(engine)(echoIdentity()), "Bearer "+rotated.AccessToken)
	if got, want := rec.Body.String(), "user=1 fresh=false"; got != want {
		t.Fatalf("plain guard body = %q, want %q", got, want)
	}
}
