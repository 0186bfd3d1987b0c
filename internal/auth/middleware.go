package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/boost-marketplace/internal/domain"
)

type contextKey string

const sessionContextKey contextKey = "session"

// WithSession returns a context carrying the session.
func WithSession(ctx context.Context, s domain.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// SessionFrom returns the request's session, or the zero session when anonymous.
func SessionFrom(ctx context.Context) domain.Session {
	s, _ := ctx.Value(sessionContextKey).(domain.Session)
	return s
}

// ProfileResolver loads or creates the stored profile for a verified identity.
type ProfileResolver interface {
	Ensure(ctx context.Context, sess domain.Session) (*domain.Profile, error)
}

// Middleware attaches a session to requests that carry a valid token.
type Middleware struct {
	verifier *Verifier
	profiles ProfileResolver
	logger   *slog.Logger
}

// NewMiddleware creates the authentication middleware
func NewMiddleware(verifier *Verifier, profiles ProfileResolver, logger *slog.Logger) *Middleware {
	return &Middleware{
		verifier: verifier,
		profiles: profiles,
		logger:   logger,
	}
}

// TokenFromRequest extracts a bearer token from the Authorization header, or
// from the token query parameter for WebSocket upgrades.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// Authenticate verifies the request token when present. Anonymous requests
// pass through; handlers decide whether a session is required.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.verifier.Verify(token)
		if err != nil {
			m.logger.Debug("rejected token", "error", err, "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		profile, err := m.profiles.Ensure(r.Context(), identity)
		if err != nil {
			m.logger.Error("failed to resolve profile", "user_id", identity.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, domain.ErrInternalError.Error())
			return
		}

		sess := domain.Session{
			UserID: profile.ID,
			Email:  profile.Email,
			Name:   profile.Name,
			Role:   profile.Role,
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

// RequireSession rejects anonymous requests.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !SessionFrom(r.Context()).Authenticated() {
			writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects sessions without the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFrom(r.Context())
		if !sess.Authenticated() {
			writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error())
			return
		}
		if !sess.IsAdmin() {
			writeError(w, http.StatusForbidden, domain.ErrForbidden.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}
