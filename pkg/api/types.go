package api

import (
	"time"

	"github.com/stationhq/gatehouse/pkg/identity"
	"github.com/stationhq/gatehouse/pkg/rbac"
	"github.com/stationhq/gatehouse/pkg/upstream"
)

// authenticateRequest carries a callback credential from a completed
// login flow.
type authenticateRequest struct {
	CredentialType upstream.CredentialType `json:"credential_type"`
	Token          string                  `json:"token"`
}

// switchRequest asks to move the session to another organization the
// member belongs to.
type switchRequest struct {
	OrganizationID string `json:"organization_id"`
}

// exchangeRequest selects a discovered organization to log in to
type exchangeRequest struct {
	OrganizationID string `json:"organization_id"`
}

// createOrganizationRequest founds a new organization from an
// intermediate credential.
type createOrganizationRequest struct {
	OrganizationName string `json:"organization_name"`
}

// updateOrganizationRequest renames the organization
type updateOrganizationRequest struct {
	Name string `json:"organization_name"`
}

// sessionResponse is returned whenever a session is established or
// exchanged. The token is also set as an HttpOnly cookie.
type sessionResponse struct {
	Token          string    `json:"token"`
	MemberID       string    `json:"member_id"`
	OrganizationID string    `json:"organization_id"`
	RoleIDs        []string  `json:"role_ids"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func newSessionResponse(sess *identity.Session) sessionResponse {
	return sessionResponse{
		Token:          sess.Token,
		MemberID:       sess.MemberID,
		OrganizationID: sess.OrganizationID,
		RoleIDs:        sess.RoleIDs,
		ExpiresAt:      sess.ExpiresAt,
	}
}

// discoveredOrganizationsResponse lists organizations available to an
// intermediate credential.
type discoveredOrganizationsResponse struct {
	Organizations []identity.DiscoveredOrganization `json:"organizations"`
}

// inviteMemberRequest invites a new member by email
type inviteMemberRequest struct {
	Email  string `json:"email_address"`
	RoleID string `json:"role_id"`
}

// updateMemberRequest renames a member
type updateMemberRequest struct {
	Name string `json:"name"`
}

// membersResponse wraps a member roster
type membersResponse struct {
	Members []identity.Member `json:"members"`
}

// createConnectionRequest creates an SSO connection shell
type createConnectionRequest struct {
	Variant     identity.ConnectionVariant `json:"variant"`
	DisplayName string                     `json:"display_name"`
}

// updateSAMLConnectionRequest carries a partial SAML connection update.
// Supplying metadata_xml prefills entity id, SSO URL and certificate;
// explicit fields win over metadata-derived values.
type updateSAMLConnectionRequest struct {
	DisplayName      string                         `json:"display_name"`
	IDPEntityID      string                         `json:"idp_entity_id"`
	IDPSSOURL        string                         `json:"idp_sso_url"`
	Certificate      string                         `json:"certificate"`
	MetadataXML      string                         `json:"metadata_xml"`
	AttributeMapping *identity.SAMLAttributeMapping `json:"attribute_mapping"`
}

// updateOIDCConnectionRequest carries a partial OIDC connection update.
// Supplying an issuer without explicit endpoints triggers well-known
// endpoint discovery.
type updateOIDCConnectionRequest struct {
	DisplayName      string `json:"display_name"`
	ClientID         string `json:"client_id"`
	ClientSecret     string `json:"client_secret"`
	Issuer           string `json:"issuer"`
	AuthorizationURL string `json:"authorization_url"`
	TokenURL         string `json:"token_url"`
	UserInfoURL      string `json:"userinfo_url"`
	JWKSURL          string `json:"jwks_url"`
}

// testFlowRequest starts an SSO connection test flow
type testFlowRequest struct {
	LoginRedirectURL  string `json:"login_redirect_url"`
	SignupRedirectURL string `json:"signup_redirect_url"`
}

// testFlowResponse carries the IdP-bound test flow URL
type testFlowResponse struct {
	TestFlowURL string `json:"test_flow_url"`
}

// Capabilities are the viewer's allowed actions, computed server-side
// so the UI never has to replicate policy logic.
type Capabilities struct {
	CanSearchMembers     bool `json:"can_search_members"`
	CanInviteMembers     bool `json:"can_invite_members"`
	CanUpdateMemberNames bool `json:"can_update_member_names"`
	CanUpdateSelfName    bool `json:"can_update_self_name"`
	CanDeleteMembers     bool `json:"can_delete_members"`
	CanViewConnections   bool `json:"can_view_connections"`
	CanCreateConnections bool `json:"can_create_connections"`
	CanEditConnections   bool `json:"can_edit_connections"`
	CanUpdateOrgName     bool `json:"can_update_org_name"`
}

func capabilitiesFor(evaluator *rbac.Evaluator, sess *identity.Session) Capabilities {
	return Capabilities{
		CanSearchMembers:     evaluator.IsAuthorized(sess, rbac.ResourceMember, rbac.ActionSearch),
		CanInviteMembers:     evaluator.IsAuthorized(sess, rbac.ResourceMember, rbac.ActionCreate),
		CanUpdateMemberNames: evaluator.IsAuthorized(sess, rbac.ResourceMember, rbac.ActionUpdateInfoName),
		CanUpdateSelfName:    evaluator.IsAuthorized(sess, rbac.ResourceSelf, rbac.ActionUpdateInfoName),
		CanDeleteMembers:     evaluator.IsAuthorized(sess, rbac.ResourceMember, rbac.ActionDelete),
		CanViewConnections:   evaluator.IsAuthorized(sess, rbac.ResourceSSO, rbac.ActionGet),
		CanCreateConnections: evaluator.IsAuthorized(sess, rbac.ResourceSSO, rbac.ActionCreate),
		CanEditConnections:   evaluator.IsAuthorized(sess, rbac.ResourceSSO, rbac.ActionUpdate),
		CanUpdateOrgName:     evaluator.IsAuthorized(sess, rbac.ResourceOrganization, rbac.ActionUpdateInfoName),
	}
}

// dashboardResponse is the single payload backing the org dashboard
// page: the org, the viewer's member record, the visible roster and
// connections, and the viewer's capability flags.
type dashboardResponse struct {
	Organization *identity.Organization   `json:"organization"`
	Member       *identity.Member         `json:"member"`
	Members      []identity.Member        `json:"members"`
	Connections  *upstream.ConnectionList `json:"connections,omitempty"`
	Capabilities Capabilities             `json:"capabilities"`
}
