package api

import (
	"context"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stationhq/gatehouse/pkg/audit"
	"github.com/stationhq/gatehouse/pkg/contextkeys"
	"github.com/stationhq/gatehouse/pkg/directory"
	"github.com/stationhq/gatehouse/pkg/discovery"
	"github.com/stationhq/gatehouse/pkg/httputil"
	"github.com/stationhq/gatehouse/pkg/middleware"
	"github.com/stationhq/gatehouse/pkg/observability"
	"github.com/stationhq/gatehouse/pkg/rbac"
	"github.com/stationhq/gatehouse/pkg/session"
)

// Config holds server-level settings for the API surface
type Config struct {
	AllowedOrigins []string
	MaxBodyBytes   int64

	// CredentialRateLimit applies to the unauthenticated credential
	// endpoints (/auth, /discovery); APIRateLimit to everything else.
	CredentialRateLimit *middleware.RateLimitConfig
	APIRateLimit        *middleware.RateLimitConfig

	// CredentialDistributedLimiter additionally enforces the credential
	// limit across replicas when set. It fails open on Redis outages.
	CredentialDistributedLimiter *middleware.DistributedRateLimiter
}

// DefaultConfig returns the server defaults
func DefaultConfig() *Config {
	return &Config{
		MaxBodyBytes:        1 << 20,
		CredentialRateLimit: middleware.AuthRateLimitConfig(),
		APIRateLimit:        middleware.DefaultRateLimitConfig(),
	}
}

// Server represents the API server
type Server struct {
	config    *Config
	router    *mux.Router
	sessions  *session.Store
	directory *directory.Service
	evaluator *rbac.Evaluator
	audit     audit.Logger
	metrics   *observability.Metrics
	log       *logrus.Logger

	credentialLimiter *middleware.RateLimiter
	apiLimiter        *middleware.RateLimiter

	authHandlers       *AuthHandlers
	discoveryHandlers  *DiscoveryHandlers
	memberHandlers     *MemberHandlers
	connectionHandlers *ConnectionHandlers
}

// NewServer creates a new API server and wires up all routes
func NewServer(
	config *Config,
	sessions *session.Store,
	dir *directory.Service,
	flow *discovery.Flow,
	evaluator *rbac.Evaluator,
	auditLog audit.Logger,
	metrics *observability.Metrics,
	log *logrus.Logger,
) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}

	s := &Server{
		config:    config,
		router:    mux.NewRouter(),
		sessions:  sessions,
		directory: dir,
		evaluator: evaluator,
		audit:     auditLog,
		metrics:   metrics,
		log:       log,
	}

	s.authHandlers = NewAuthHandlers(sessions, flow, auditLog, metrics, log)
	s.discoveryHandlers = NewDiscoveryHandlers(flow, auditLog, metrics, log)
	s.memberHandlers = NewMemberHandlers(dir, auditLog, log)
	s.connectionHandlers = NewConnectionHandlers(dir, auditLog, log)

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.LoggingMiddleware(s.log))
	s.router.Use(httputil.RecoveryMiddleware(s.log))
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}
	if len(s.config.AllowedOrigins) > 0 {
		s.router.Use(httputil.CORSMiddleware(s.config.AllowedOrigins))
	}
	if s.config.MaxBodyBytes > 0 {
		s.router.Use(httputil.MaxBytesMiddleware(s.config.MaxBodyBytes))
	}

	s.credentialLimiter = middleware.NewRateLimiter(s.config.CredentialRateLimit)
	s.apiLimiter = middleware.NewRateLimiter(s.config.APIRateLimit)
	sessionAuth := middleware.NewSessionMiddleware(s.sessions, false)
	guard := middleware.NewMutationGuard()

	// Credential endpoints: unauthenticated, tightly rate limited.
	authRouter := s.router.PathPrefix("/auth").Subrouter()
	authRouter.Use(s.credentialLimiter.Handler)
	discoveryRouter := s.router.PathPrefix("/discovery").Subrouter()
	discoveryRouter.Use(s.credentialLimiter.Handler)
	if s.config.CredentialDistributedLimiter != nil {
		authRouter.Use(s.config.CredentialDistributedLimiter.Handler)
		discoveryRouter.Use(s.config.CredentialDistributedLimiter.Handler)
	}
	s.authHandlers.RegisterCredentialRoutes(authRouter)
	s.discoveryHandlers.RegisterRoutes(discoveryRouter)

	// Session endpoints: require an established session.
	sessionRouter := s.router.PathPrefix("/session").Subrouter()
	sessionRouter.Use(sessionAuth.Handler)
	sessionRouter.Use(s.apiLimiter.Handler)
	s.authHandlers.RegisterSessionRoutes(sessionRouter)

	// Org-scoped endpoints: session + org slug resolution + mutation guard.
	orgRouter := s.router.PathPrefix("/orgs/{org_slug}").Subrouter()
	orgRouter.Use(sessionAuth.Handler)
	orgRouter.Use(middleware.OrgContextMiddleware(s.directory))
	orgRouter.Use(s.apiLimiter.Handler)
	orgRouter.Use(guard.Handler)
	orgRouter.HandleFunc("/dashboard", s.getDashboard).Methods("GET")
	orgRouter.HandleFunc("/settings", s.updateOrganization).Methods("PATCH")
	s.memberHandlers.RegisterRoutes(orgRouter)
	s.connectionHandlers.RegisterRoutes(orgRouter)
}

// StartCleanup starts the eviction loops for the in-process rate
// limiters. Without it the per-key bucket maps grow unbounded.
func (s *Server) StartCleanup(ctx context.Context) {
	s.credentialLimiter.StartCleanup(ctx)
	s.apiLimiter.StartCleanup(ctx)
}

// Router returns the underlying mux router so the caller can attach
// infrastructure routes like /healthz and /metrics.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// clientIP extracts the remote address without the port
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// recordAudit stamps request context onto the event and logs it. Audit
// failures are logged but never fail the request.
func recordAudit(r *http.Request, sink audit.Logger, log *logrus.Logger, event *audit.Event) {
	event.WithRequest(contextkeys.GetRequestID(r.Context()), clientIP(r))
	if err := sink.Log(r.Context(), event); err != nil {
		log.WithError(err).WithField("event_type", event.EventType).Warn("failed to record audit event")
	}
}
