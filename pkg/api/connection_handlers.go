package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stationhq/gatehouse/pkg/audit"
	"github.com/stationhq/gatehouse/pkg/contextkeys"
	"github.com/stationhq/gatehouse/pkg/directory"
	"github.com/stationhq/gatehouse/pkg/httputil"
	"github.com/stationhq/gatehouse/pkg/identity"
	"github.com/stationhq/gatehouse/pkg/upstream"
)

// ConnectionHandlers handles org-scoped SSO connection requests
type ConnectionHandlers struct {
	directory *directory.Service
	audit     audit.Logger
	log       *logrus.Logger
}

// NewConnectionHandlers creates a new connection handlers instance
func NewConnectionHandlers(dir *directory.Service, auditLog audit.Logger, log *logrus.Logger) *ConnectionHandlers {
	return &ConnectionHandlers{
		directory: dir,
		audit:     auditLog,
		log:       log,
	}
}

// RegisterRoutes registers connection routes on the org-scoped router
func (h *ConnectionHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/connections", h.listConnections).Methods("GET")
	router.HandleFunc("/connections", h.createConnection).Methods("POST")
	router.HandleFunc("/connections/saml/{connection_id}", h.getSAMLConnection).Methods("GET")
	router.HandleFunc("/connections/saml/{connection_id}", h.updateSAMLConnection).Methods("PATCH")
	router.HandleFunc("/connections/oidc/{connection_id}", h.getOIDCConnection).Methods("GET")
	router.HandleFunc("/connections/oidc/{connection_id}", h.updateOIDCConnection).Methods("PATCH")
	router.HandleFunc("/connections/{connection_id}/test", h.startTestFlow).Methods("POST")
}

func (h *ConnectionHandlers) scoped(r *http.Request) (*directory.OrgDirectory, *identity.Session, bool) {
	sess := contextkeys.SessionFrom(r.Context())
	if sess == nil {
		return nil, nil, false
	}
	return h.directory.ForSession(sess), sess, true
}

// listConnections handles GET /orgs/{org_slug}/connections
func (h *ConnectionHandlers) listConnections(w http.ResponseWriter, r *http.Request) {
	dir, _, ok := h.scoped(r)
	if !ok {
		httputil.WriteDomainError(w, identity.ErrNoSession)
		return
	}

	list, err := dir.Connections(r.Context())
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// createConnection handles POST /orgs/{org_slug}/connections
func (h *ConnectionHandlers) createConnection(w http.ResponseWriter, r *http.Request) {
	dir, sess, ok := h.scoped(r)
	if !ok {
		httputil.WriteDomainError(w, identity.ErrNoSession)
		return
	}

	var req createConnectionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	conn, err := dir.CreateConnection(r.Context(), req.Variant, req.DisplayName)
	if err != nil {
		recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeSSOConnectionCreate, audit.EventStatusFailure).
			WithActor(sess.MemberID, sess.OrganizationID).
			WithError(err))
		httputil.WriteDomainError(w, err)
		return
	}

	recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeSSOConnectionCreate, audit.EventStatusSuccess).
		WithActor(sess.MemberID, sess.OrganizationID).
		WithResource(audit.ResourceTypeConnection, connectionID(conn)).
		WithMessage(string(req.Variant)))

	httputil.WriteCreated(w, conn)
}

// getSAMLConnection handles GET /orgs/{org_slug}/connections/saml/{connection_id}
func (h *ConnectionHandlers) getSAMLConnection(w http.ResponseWriter, r *http.Request) {
	dir, _, ok := h.scoped(r)
	if !ok {
		httputil.WriteDomainError(w, identity.ErrNoSession)
		return
	}

	connID, ok := httputil.ParsePathStringOrError(w, r, "connection_id")
	if !ok {
		return
	}

	conn, err := dir.GetSAMLConnection(r.Context(), connID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, conn)
}

// updateSAMLConnection handles PATCH /orgs/{org_slug}/connections/saml/{connection_id}
func (h *ConnectionHandlers) updateSAMLConnection(w http.ResponseWriter, r *http.Request) {
	dir, sess, ok := h.scoped(r)
	if !ok {
		httputil.WriteDomainError(w, identity.ErrNoSession)
		return
	}

	connID, ok := httputil.ParsePathStringOrError(w, r, "connection_id")
	if !ok {
		return
	}

	var req updateSAMLConnectionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	conn, err := dir.UpdateSAMLConnection(r.Context(), connID, directory.SAMLUpdate{
		DisplayName:      req.DisplayName,
		IDPEntityID:      req.IDPEntityID,
		IDPSSOURL:        req.IDPSSOURL,
		Certificate:      req.Certificate,
		MetadataXML:      req.MetadataXML,
		AttributeMapping: req.AttributeMapping,
	})
	if err != nil {
		recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeSSOConnectionUpdate, audit.EventStatusFailure).
			WithActor(sess.MemberID, sess.OrganizationID).
			WithResource(audit.ResourceTypeConnection, connID).
			WithError(err))
		httputil.WriteDomainError(w, err)
		return
	}

	recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeSSOConnectionUpdate, audit.EventStatusSuccess).
		WithActor(sess.MemberID, sess.OrganizationID).
		WithResource(audit.ResourceTypeConnection, connID))

	httputil.WriteSuccess(w, conn)
}

// getOIDCConnection handles GET /orgs/{org_slug}/connections/oidc/{connection_id}
func (h *ConnectionHandlers) getOIDCConnection(w http.ResponseWriter, r *http.Request) {
	dir, _, ok := h.scoped(r)
	if !ok {
		httputil.WriteDomainError(w, identity.ErrNoSession)
		return
	}

	connID, ok := httputil.ParsePathStringOrError(w, r, "connection_id")
	if !ok {
		return
	}

	conn, err := dir.GetOIDCConnection(r.Context(), connID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, conn)
}

// updateOIDCConnection handles PATCH /orgs/{org_slug}/connections/oidc/{connection_id}
func (h *ConnectionHandlers) updateOIDCConnection(w http.ResponseWriter, r *http.Request) {
	dir, sess, ok := h.scoped(r)
	if !ok {
		httputil.WriteDomainError(w, identity.ErrNoSession)
		return
	}

	connID, ok := httputil.ParsePathStringOrError(w, r, "connection_id")
	if !ok {
		return
	}

	var req updateOIDCConnectionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	conn, err := dir.UpdateOIDCConnection(r.Context(), connID, directory.OIDCUpdate{
		DisplayName:      req.DisplayName,
		ClientID:         req.ClientID,
		ClientSecret:     req.ClientSecret,
		Issuer:           req.Issuer,
		AuthorizationURL: req.AuthorizationURL,
		TokenURL:         req.TokenURL,
		UserInfoURL:      req.UserInfoURL,
		JWKSURL:          req.JWKSURL,
	})
	if err != nil {
		recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeSSOConnectionUpdate, audit.EventStatusFailure).
			WithActor(sess.MemberID, sess.OrganizationID).
			WithResource(audit.ResourceTypeConnection, connID).
			WithError(err))
		httputil.WriteDomainError(w, err)
		return
	}

	recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeSSOConnectionUpdate, audit.EventStatusSuccess).
		WithActor(sess.MemberID, sess.OrganizationID).
		WithResource(audit.ResourceTypeConnection, connID))

	httputil.WriteSuccess(w, conn)
}

// startTestFlow handles POST /orgs/{org_slug}/connections/{connection_id}/test
func (h *ConnectionHandlers) startTestFlow(w http.ResponseWriter, r *http.Request) {
	dir, sess, ok := h.scoped(r)
	if !ok {
		httputil.WriteDomainError(w, identity.ErrNoSession)
		return
	}

	connID, ok := httputil.ParsePathStringOrError(w, r, "connection_id")
	if !ok {
		return
	}

	var req testFlowRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	url, err := dir.StartTestFlow(r.Context(), connID, upstream.TestFlowRedirects{
		Login:  req.LoginRedirectURL,
		Signup: req.SignupRedirectURL,
	})
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeSSOConnectionTest, audit.EventStatusSuccess).
		WithActor(sess.MemberID, sess.OrganizationID).
		WithResource(audit.ResourceTypeConnection, connID))

	httputil.WriteSuccess(w, testFlowResponse{TestFlowURL: url})
}

// connectionID extracts the id from either connection variant
func connectionID(conn interface{}) string {
	switch c := conn.(type) {
	case *identity.SAMLConnection:
		return c.ID
	case *identity.OIDCConnection:
		return c.ID
	}
	return ""
}
