package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/couchcryptid/drought-cdi-service/internal/session"
)

type sessionKey struct{}

// requireSession resolves the bearer token to a session and rejects the
// request with 401 when there is none.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		sess, err := s.deps.Sessions.Current(r.Context(), token)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				s.logger.Error("session lookup failed", "error", err)
				writeError(w, http.StatusInternalServerError, "session lookup failed")
				return
			}
			// An expired or revoked session may still own a dashboard.
			if id, ok := s.deps.Sessions.SessionID(token); ok {
				s.deps.Dashboards.Close(id)
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// sessionFrom returns the session stored by requireSession.
func sessionFrom(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey{}).(*session.Session)
	return sess
}
