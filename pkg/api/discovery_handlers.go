package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stationhq/gatehouse/pkg/audit"
	"github.com/stationhq/gatehouse/pkg/discovery"
	"github.com/stationhq/gatehouse/pkg/httputil"
	"github.com/stationhq/gatehouse/pkg/observability"
)

// DiscoveryHandlers handles the post-login organization discovery flow.
// All routes authenticate with the intermediate credential as a bearer
// token; the credential is single-use for session establishment.
type DiscoveryHandlers struct {
	flow    *discovery.Flow
	audit   audit.Logger
	metrics *observability.Metrics
	log     *logrus.Logger
}

// NewDiscoveryHandlers creates a new discovery handlers instance
func NewDiscoveryHandlers(flow *discovery.Flow, auditLog audit.Logger, metrics *observability.Metrics, log *logrus.Logger) *DiscoveryHandlers {
	return &DiscoveryHandlers{
		flow:    flow,
		audit:   auditLog,
		metrics: metrics,
		log:     log,
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/organizations", h.listOrganizations).Methods("GET")
	router.HandleFunc("/organizations", h.createOrganization).Methods("POST")
	router.HandleFunc("/exchange", h.exchange).Methods("POST")
}

// intermediateToken extracts the discovery credential from the
// Authorization header.
func intermediateToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// listOrganizations handles GET /discovery/organizations
func (h *DiscoveryHandlers) listOrganizations(w http.ResponseWriter, r *http.Request) {
	token := intermediateToken(r)
	if token == "" {
		httputil.WriteUnauthorized(w, "intermediate credential required")
		return
	}

	orgs, err := h.flow.ListOrganizations(r.Context(), token)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, discoveredOrganizationsResponse{Organizations: orgs})
}

// exchange handles POST /discovery/exchange
func (h *DiscoveryHandlers) exchange(w http.ResponseWriter, r *http.Request) {
	token := intermediateToken(r)
	if token == "" {
		httputil.WriteUnauthorized(w, "intermediate credential required")
		return
	}

	var req exchangeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.OrganizationID == "" {
		httputil.WriteBadRequest(w, "organization_id is required")
		return
	}

	sess, err := h.flow.Exchange(r.Context(), token, req.OrganizationID)
	if err != nil {
		recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeDiscoveryExchange, audit.EventStatusFailure).
			WithResource(audit.ResourceTypeOrganization, req.OrganizationID).
			WithError(err))
		httputil.WriteDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SessionsEstablishedTotal.Inc()
	}
	recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeDiscoveryExchange, audit.EventStatusSuccess).
		WithActor(sess.MemberID, sess.OrganizationID).
		WithResource(audit.ResourceTypeOrganization, req.OrganizationID))

	setSessionCookie(w, sess)
	httputil.WriteSuccess(w, newSessionResponse(sess))
}

// createOrganization handles POST /discovery/organizations
func (h *DiscoveryHandlers) createOrganization(w http.ResponseWriter, r *http.Request) {
	token := intermediateToken(r)
	if token == "" {
		httputil.WriteUnauthorized(w, "intermediate credential required")
		return
	}

	var req createOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	sess, err := h.flow.CreateOrganization(r.Context(), token, req.OrganizationName)
	if err != nil {
		recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeDiscoveryOrgCreate, audit.EventStatusFailure).
			WithError(err))
		httputil.WriteDomainError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.SessionsEstablishedTotal.Inc()
	}
	recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeDiscoveryOrgCreate, audit.EventStatusSuccess).
		WithActor(sess.MemberID, sess.OrganizationID).
		WithResource(audit.ResourceTypeOrganization, sess.OrganizationID))

	setSessionCookie(w, sess)
	httputil.WriteCreated(w, newSessionResponse(sess))
}
