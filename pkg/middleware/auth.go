package middleware

import (
	"net/http"
	"strings"

	"github.com/stationhq/gatehouse/pkg/contextkeys"
	"github.com/stationhq/gatehouse/pkg/httputil"
	"github.com/stationhq/gatehouse/pkg/session"
)

// SessionCookieName is the cookie carrying the session token for
// browser-driven deployments. The Authorization header wins when both
// are present.
const SessionCookieName = "gatehouse_session"

// SessionMiddleware resolves the caller's session token into an
// authenticated session and places it on the request context.
type SessionMiddleware struct {
	sessions *session.Store
	optional bool // if true, allow requests without a session
}

// NewSessionMiddleware creates session middleware. With optional set,
// unauthenticated requests pass through without a session on the
// context; handlers that need one check for nil.
func NewSessionMiddleware(sessions *session.Store, optional bool) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions, optional: optional}
}

// Handler wraps an HTTP handler with session resolution
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		sess, err := m.sessions.Current(r.Context(), token)
		if err != nil {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteDomainError(w, err)
			return
		}

		ctx := contextkeys.WithSession(r.Context(), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken pulls the session token from the Authorization header or
// the session cookie
func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
