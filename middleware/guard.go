package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tradebook/authcore"
)

type identityContextKey struct{}

// IdentityFromContext returns the verified caller attached by a guard.
func IdentityFromContext(ctx context.Context) (*authcore.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*authcore.Identity)
	return id, ok
}

// Guard validates the bearer access token and attaches the Identity to the
// request context.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return guard(engine, false)
}

// FreshGuard is Guard plus a freshness requirement: only tokens from a
// password login pass, refreshed ones are rejected.
func FreshGuard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return guard(engine, true)
}

func guard(engine *authcore.Engine, requireFresh bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, authcore.ErrTokenInvalid)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, authcore.ErrTokenInvalid)
				return
			}

			identity, err := engine.Validate(r.Context(), token)
			if err != nil {
				writeError(w, err)
				return
			}
			if requireFresh && !identity.Fresh {
				writeError(w, authcore.ErrFreshTokenRequired)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

type errorEnvelope struct {
	Status  int            `json:"status"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// writeError emits the failure inside a 200 envelope so transport-level
// middlebox handling never masks the classification.
func writeError(w http.ResponseWriter, err error) {
	e := authcore.AsError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Status:  e.Status,
		Code:    e.Code,
		Message: e.Message,
		Data:    e.Data,
	})
}
