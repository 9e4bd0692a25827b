package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stationhq/gatehouse/pkg/audit"
	"github.com/stationhq/gatehouse/pkg/contextkeys"
	"github.com/stationhq/gatehouse/pkg/discovery"
	"github.com/stationhq/gatehouse/pkg/httputil"
	"github.com/stationhq/gatehouse/pkg/identity"
	"github.com/stationhq/gatehouse/pkg/middleware"
	"github.com/stationhq/gatehouse/pkg/observability"
	"github.com/stationhq/gatehouse/pkg/session"
	"github.com/stationhq/gatehouse/pkg/upstream"
)

// AuthHandlers handles credential authentication and session lifecycle
type AuthHandlers struct {
	sessions *session.Store
	flow     *discovery.Flow
	audit    audit.Logger
	metrics  *observability.Metrics
	log      *logrus.Logger
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(sessions *session.Store, flow *discovery.Flow, auditLog audit.Logger, metrics *observability.Metrics, log *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		sessions: sessions,
		flow:     flow,
		audit:    auditLog,
		metrics:  metrics,
		log:      log,
	}
}

// RegisterCredentialRoutes registers the unauthenticated credential routes
func (h *AuthHandlers) RegisterCredentialRoutes(router *mux.Router) {
	router.HandleFunc("/authenticate", h.authenticate).Methods("POST")
}

// RegisterSessionRoutes registers routes that require an established session
func (h *AuthHandlers) RegisterSessionRoutes(router *mux.Router) {
	router.HandleFunc("/switch", h.switchOrganization).Methods("POST")
	router.HandleFunc("/revoke", h.revoke).Methods("POST")
}

// authenticate handles POST /auth/authenticate
func (h *AuthHandlers) authenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Token == "" {
		httputil.WriteBadRequest(w, "token is required")
		return
	}
	if req.CredentialType != upstream.CredentialMagicLink && req.CredentialType != upstream.CredentialSSO {
		httputil.WriteBadRequest(w, "unknown credential type")
		return
	}

	sess, err := h.sessions.Establish(r.Context(), upstream.Credential{
		Type:  req.CredentialType,
		Token: req.Token,
	})
	if err != nil {
		recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeAuthLoginFailed, audit.EventStatusFailure).
			WithResource(audit.ResourceTypeSession, "").
			WithError(err))
		httputil.WriteDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SessionsEstablishedTotal.Inc()
	}
	recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeAuthLogin, audit.EventStatusSuccess).
		WithActor(sess.MemberID, sess.OrganizationID).
		WithResource(audit.ResourceTypeSession, ""))

	setSessionCookie(w, sess)
	httputil.WriteSuccess(w, newSessionResponse(sess))
}

// switchOrganization handles POST /session/switch
func (h *AuthHandlers) switchOrganization(w http.ResponseWriter, r *http.Request) {
	sess := contextkeys.SessionFrom(r.Context())
	if sess == nil {
		httputil.WriteDomainError(w, identity.ErrNoSession)
		return
	}

	var req switchRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.OrganizationID == "" {
		httputil.WriteBadRequest(w, "organization_id is required")
		return
	}

	next, err := h.flow.Switch(r.Context(), sess.Token, req.OrganizationID)
	if err != nil {
		recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeAuthOrgSwitch, audit.EventStatusFailure).
			WithActor(sess.MemberID, sess.OrganizationID).
			WithResource(audit.ResourceTypeOrganization, req.OrganizationID).
			WithError(err))
		httputil.WriteDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SessionsExchangedTotal.Inc()
	}
	recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeAuthOrgSwitch, audit.EventStatusSuccess).
		WithActor(next.MemberID, next.OrganizationID).
		WithResource(audit.ResourceTypeOrganization, req.OrganizationID))

	setSessionCookie(w, next)
	httputil.WriteSuccess(w, newSessionResponse(next))
}

// revoke handles POST /session/revoke
func (h *AuthHandlers) revoke(w http.ResponseWriter, r *http.Request) {
	sess := contextkeys.SessionFrom(r.Context())
	if sess == nil {
		httputil.WriteDomainError(w, identity.ErrNoSession)
		return
	}

	if err := h.sessions.Revoke(r.Context(), sess.Token); err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SessionsRevokedTotal.Inc()
	}
	recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeAuthLogout, audit.EventStatusSuccess).
		WithActor(sess.MemberID, sess.OrganizationID).
		WithResource(audit.ResourceTypeSession, ""))

	clearSessionCookie(w)
	httputil.WriteNoContent(w)
}

// setSessionCookie attaches the session token as an HttpOnly cookie
func setSessionCookie(w http.ResponseWriter, sess *identity.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie
func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}
