package api

import (
	"errors"
	"net/http"

	"github.com/stationhq/gatehouse/pkg/audit"
	"github.com/stationhq/gatehouse/pkg/contextkeys"
	"github.com/stationhq/gatehouse/pkg/httputil"
	"github.com/stationhq/gatehouse/pkg/identity"
	"github.com/stationhq/gatehouse/pkg/upstream"
)

// getDashboard handles GET /orgs/{org_slug}/dashboard. It assembles
// everything the dashboard page needs in one round trip: the org, the
// viewer's member record, the visible roster, the SSO connections the
// viewer may see, and the viewer's capability flags.
func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := contextkeys.SessionFrom(ctx)
	if sess == nil {
		httputil.WriteDomainError(w, identity.ErrNoSession)
		return
	}

	dir := s.directory.ForSession(sess)

	org := contextkeys.OrgFrom(ctx)
	if org == nil {
		var err error
		org, err = dir.Organization(ctx)
		if err != nil {
			httputil.WriteDomainError(w, err)
			return
		}
	}

	self, err := dir.GetMember(ctx, sess.MemberID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	// Members without search rights get the self-only roster.
	members, err := dir.SearchMembers(ctx, upstream.MemberFilter{})
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	// Connections are omitted entirely for viewers without sso access.
	var connections *upstream.ConnectionList
	if list, err := dir.Connections(ctx); err == nil {
		connections = list
	} else if !errors.Is(err, identity.ErrPermissionDenied) {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, dashboardResponse{
		Organization: org,
		Member:       self,
		Members:      members,
		Connections:  connections,
		Capabilities: capabilitiesFor(s.evaluator, sess),
	})
}

// updateOrganization handles PATCH /orgs/{org_slug}/settings
func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	sess := contextkeys.SessionFrom(r.Context())
	if sess == nil {
		httputil.WriteDomainError(w, identity.ErrNoSession)
		return
	}

	var req updateOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	dir := s.directory.ForSession(sess)
	org, err := dir.UpdateOrganizationName(r.Context(), req.Name)
	if err != nil {
		recordAudit(r, s.audit, s.log, audit.NewEvent(audit.EventTypeOrgUpdate, audit.EventStatusFailure).
			WithActor(sess.MemberID, sess.OrganizationID).
			WithResource(audit.ResourceTypeOrganization, sess.OrganizationID).
			WithError(err))
		httputil.WriteDomainError(w, err)
		return
	}

	recordAudit(r, s.audit, s.log, audit.NewEvent(audit.EventTypeOrgUpdate, audit.EventStatusSuccess).
		WithActor(sess.MemberID, sess.OrganizationID).
		WithResource(audit.ResourceTypeOrganization, sess.OrganizationID))

	httputil.WriteSuccess(w, org)
}
