package middleware

import (
	"net/http"
	"sync"

	"github.com/stationhq/gatehouse/pkg/contextkeys"
	"github.com/stationhq/gatehouse/pkg/httputil"
)

// MutationGuard serializes mutations per session. A double-submitted
// form lands here as two concurrent requests with the same session; the
// second gets a conflict instead of racing the first through the
// upstream.
type MutationGuard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewMutationGuard creates a new mutation guard
func NewMutationGuard() *MutationGuard {
	return &MutationGuard{inflight: make(map[string]struct{})}
}

func (g *MutationGuard) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[key]; busy {
		return false
	}
	g.inflight[key] = struct{}{}
	return true
}

func (g *MutationGuard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, key)
}

// Handler wraps an HTTP handler with the per-session mutation guard.
// Reads pass through untouched; requests without a session are not
// guarded here and rely on rate limiting instead.
func (g *MutationGuard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			next.ServeHTTP(w, r)
			return
		}

		sess := contextkeys.SessionFrom(r.Context())
		if sess == nil {
			next.ServeHTTP(w, r)
			return
		}

		if !g.acquire(sess.Token) {
			httputil.WriteConflict(w, "another request is already in progress")
			return
		}
		defer g.release(sess.Token)

		next.ServeHTTP(w, r)
	})
}
