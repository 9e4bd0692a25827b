package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stationhq/gatehouse/pkg/audit"
	"github.com/stationhq/gatehouse/pkg/contextkeys"
	"github.com/stationhq/gatehouse/pkg/directory"
	"github.com/stationhq/gatehouse/pkg/httputil"
	"github.com/stationhq/gatehouse/pkg/identity"
	"github.com/stationhq/gatehouse/pkg/upstream"
)

// MemberHandlers handles org-scoped member directory requests. All
// authorization decisions live in the directory layer; the handlers only
// translate HTTP.
type MemberHandlers struct {
	directory *directory.Service
	audit     audit.Logger
	log       *logrus.Logger
}

// NewMemberHandlers creates a new member handlers instance
func NewMemberHandlers(dir *directory.Service, auditLog audit.Logger, log *logrus.Logger) *MemberHandlers {
	return &MemberHandlers{
		directory: dir,
		audit:     auditLog,
		log:       log,
	}
}

// RegisterRoutes registers member routes on the org-scoped router
func (h *MemberHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/members", h.searchMembers).Methods("GET")
	router.HandleFunc("/members", h.inviteMember).Methods("POST")
	router.HandleFunc("/members/{member_id}", h.getMember).Methods("GET")
	router.HandleFunc("/members/{member_id}", h.updateMember).Methods("PATCH")
	router.HandleFunc("/members/{member_id}", h.deleteMember).Methods("DELETE")
}

// scoped returns the org directory bound to the request session
func (h *MemberHandlers) scoped(r *http.Request) (*directory.OrgDirectory, *identity.Session, bool) {
	sess := contextkeys.SessionFrom(r.Context())
	if sess == nil {
		return nil, nil, false
	}
	return h.directory.ForSession(sess), sess, true
}

// searchMembers handles GET /orgs/{org_slug}/members
func (h *MemberHandlers) searchMembers(w http.ResponseWriter, r *http.Request) {
	dir, _, ok := h.scoped(r)
	if !ok {
		httputil.WriteDomainError(w, identity.ErrNoSession)
		return
	}

	filter := upstream.MemberFilter{}
	if ids := httputil.ParseQueryString(r, "member_ids", ""); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			if trimmed := strings.TrimSpace(id); trimmed != "" {
				filter.MemberIDs = append(filter.MemberIDs, trimmed)
			}
		}
	}

	members, err := dir.SearchMembers(r.Context(), filter)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, membersResponse{Members: members})
}

// getMember handles GET /orgs/{org_slug}/members/{member_id}
func (h *MemberHandlers) getMember(w http.ResponseWriter, r *http.Request) {
	dir, _, ok := h.scoped(r)
	if !ok {
		httputil.WriteDomainError(w, identity.ErrNoSession)
		return
	}

	memberID, ok := httputil.ParsePathStringOrError(w, r, "member_id")
	if !ok {
		return
	}

	member, err := dir.GetMember(r.Context(), memberID)
	if err != nil {
		httputil.WriteDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, member)
}

// inviteMember handles POST /orgs/{org_slug}/members
func (h *MemberHandlers) inviteMember(w http.ResponseWriter, r *http.Request) {
	dir, sess, ok := h.scoped(r)
	if !ok {
		httputil.WriteDomainError(w, identity.ErrNoSession)
		return
	}

	var req inviteMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	member, err := dir.InviteMember(r.Context(), req.Email, req.RoleID)
	if err != nil {
		recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeMemberInvite, audit.EventStatusFailure).
			WithActor(sess.MemberID, sess.OrganizationID).
			WithError(err))
		httputil.WriteDomainError(w, err)
		return
	}

	recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeMemberInvite, audit.EventStatusSuccess).
		WithActor(sess.MemberID, sess.OrganizationID).
		WithResource(audit.ResourceTypeMember, member.ID).
		WithMessage(req.Email))

	httputil.WriteCreated(w, member)
}

// updateMember handles PATCH /orgs/{org_slug}/members/{member_id}
func (h *MemberHandlers) updateMember(w http.ResponseWriter, r *http.Request) {
	dir, sess, ok := h.scoped(r)
	if !ok {
		httputil.WriteDomainError(w, identity.ErrNoSession)
		return
	}

	memberID, ok := httputil.ParsePathStringOrError(w, r, "member_id")
	if !ok {
		return
	}

	var req updateMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	member, err := dir.UpdateMemberName(r.Context(), memberID, req.Name)
	if err != nil {
		recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeMemberUpdate, audit.EventStatusFailure).
			WithActor(sess.MemberID, sess.OrganizationID).
			WithResource(audit.ResourceTypeMember, memberID).
			WithError(err))
		httputil.WriteDomainError(w, err)
		return
	}

	recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeMemberUpdate, audit.EventStatusSuccess).
		WithActor(sess.MemberID, sess.OrganizationID).
		WithResource(audit.ResourceTypeMember, memberID))

	httputil.WriteSuccess(w, member)
}

// deleteMember handles DELETE /orgs/{org_slug}/members/{member_id}
func (h *MemberHandlers) deleteMember(w http.ResponseWriter, r *http.Request) {
	dir, sess, ok := h.scoped(r)
	if !ok {
		httputil.WriteDomainError(w, identity.ErrNoSession)
		return
	}

	memberID, ok := httputil.ParsePathStringOrError(w, r, "member_id")
	if !ok {
		return
	}

	if err := dir.DeleteMember(r.Context(), memberID); err != nil {
		recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeMemberDelete, audit.EventStatusFailure).
			WithActor(sess.MemberID, sess.OrganizationID).
			WithResource(audit.ResourceTypeMember, memberID).
			WithError(err))
		httputil.WriteDomainError(w, err)
		return
	}

	recordAudit(r, h.audit, h.log, audit.NewEvent(audit.EventTypeMemberDelete, audit.EventStatusSuccess).
		WithActor(sess.MemberID, sess.OrganizationID).
		WithResource(audit.ResourceTypeMember, memberID))

	httputil.WriteNoContent(w)
}
