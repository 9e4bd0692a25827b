package upstream

import (
	"context"

	"github.com/stationhq/gatehouse/pkg/identity"
)

// CredentialType distinguishes the proofs of identity the remote service
// accepts at its authenticate endpoint.
type CredentialType string

const (
	// CredentialMagicLink is a token from a completed email magic link flow
	CredentialMagicLink CredentialType = "magic_link"
	// CredentialSSO is a token from a completed SSO (SAML/OIDC) callback
	CredentialSSO CredentialType = "sso"
)

// Credential is an opaque proof of identity produced by the remote service.
// The façade never inspects or validates the token itself.
type Credential struct {
	Type  CredentialType `json:"type"`
	Token string         `json:"token"`
}

// AuthResult is the remote service's answer to a successful authentication
// or session exchange.
type AuthResult struct {
	Member       identity.Member       `json:"member"`
	Organization identity.Organization `json:"organization"`
	RoleIDs      []string              `json:"role_ids"`
}

// MemberFilter narrows a member search. An empty filter returns the full
// roster. MemberIDs narrows to an explicit id set, which lets a caller
// resolve a single profile without roster-wide visibility.
type MemberFilter struct {
	MemberIDs []string `json:"member_ids,omitempty"`
	Statuses  []identity.MemberStatus `json:"statuses,omitempty"`
}

// OrganizationPatch is a partial organization update; nil fields are left
// untouched
type OrganizationPatch struct {
	Name *string `json:"name,omitempty"`
}

// MemberPatch is a partial member update; nil fields are left untouched
type MemberPatch struct {
	Name    *string   `json:"name,omitempty"`
	RoleIDs *[]string `json:"role_ids,omitempty"`
}

// SAMLConnectionPatch is a partial SAML connection update
type SAMLConnectionPatch struct {
	DisplayName      *string                        `json:"display_name,omitempty"`
	IDPEntityID      *string                        `json:"idp_entity_id,omitempty"`
	IDPSSOURL        *string                        `json:"idp_sso_url,omitempty"`
	Certificate      *string                        `json:"x509_certificate,omitempty"`
	AttributeMapping *identity.SAMLAttributeMapping `json:"attribute_mapping,omitempty"`
}

// OIDCConnectionPatch is a partial OIDC connection update
type OIDCConnectionPatch struct {
	DisplayName      *string `json:"display_name,omitempty"`
	ClientID         *string `json:"client_id,omitempty"`
	ClientSecret     *string `json:"client_secret,omitempty"`
	Issuer           *string `json:"issuer,omitempty"`
	AuthorizationURL *string `json:"authorization_url,omitempty"`
	TokenURL         *string `json:"token_url,omitempty"`
	UserInfoURL      *string `json:"userinfo_url,omitempty"`
	JWKSURL          *string `json:"jwks_url,omitempty"`
}

// ConnectionList groups an organization's SSO connections by variant
type ConnectionList struct {
	SAML []identity.SAMLConnection `json:"saml_connections"`
	OIDC []identity.OIDCConnection `json:"oidc_connections"`
}

// TestFlowRedirects holds the redirect URLs for an SSO connection test flow
type TestFlowRedirects struct {
	Login  string `json:"login_redirect_url"`
	Signup string `json:"signup_redirect_url"`
}

// Client is the consumed contract of the remote identity service. The
// service is a black box: it owns all protocol logic, token cryptography
// and entity persistence. Implementations must be safe for concurrent use.
type Client interface {
	// Authenticate exchanges a callback credential for a member, their
	// organization and granted roles.
	Authenticate(ctx context.Context, cred Credential) (*AuthResult, error)

	// ExchangeSession produces a new org-scoped authentication anchored on
	// an existing session's long-lived identity.
	ExchangeSession(ctx context.Context, sessionToken, targetOrgID string) (*AuthResult, error)

	// RevokeSession invalidates a session upstream
	RevokeSession(ctx context.Context, sessionToken string) error

	// GetOrganization fetches one organization by id
	GetOrganization(ctx context.Context, orgID string) (*identity.Organization, error)

	// UpdateOrganization applies a partial update to an organization
	UpdateOrganization(ctx context.Context, orgID string, patch OrganizationPatch) (*identity.Organization, error)

	// SearchMembers lists an organization's members, optionally narrowed
	SearchMembers(ctx context.Context, orgID string, filter MemberFilter) ([]identity.Member, error)

	// UpdateMember applies a partial update to a member
	UpdateMember(ctx context.Context, orgID, memberID string, patch MemberPatch) (*identity.Member, error)

	// DeleteMember removes a member from the organization
	DeleteMember(ctx context.Context, orgID, memberID string) error

	// InviteMember sends an email invite and creates a pending member
	InviteMember(ctx context.Context, orgID, email string, roleIDs []string) (*identity.Member, error)

	// ListConnections lists an organization's SSO connections
	ListConnections(ctx context.Context, orgID string) (*ConnectionList, error)

	// CreateSAMLConnection creates a SAML connection shell; protocol
	// endpoints stay empty until a follow-up update supplies them.
	CreateSAMLConnection(ctx context.Context, orgID, displayName string) (*identity.SAMLConnection, error)

	// CreateOIDCConnection creates an OIDC connection shell
	CreateOIDCConnection(ctx context.Context, orgID, displayName string) (*identity.OIDCConnection, error)

	// UpdateSAMLConnection applies a partial update to a SAML connection
	UpdateSAMLConnection(ctx context.Context, orgID, connectionID string, patch SAMLConnectionPatch) (*identity.SAMLConnection, error)

	// UpdateOIDCConnection applies a partial update to an OIDC connection
	UpdateOIDCConnection(ctx context.Context, orgID, connectionID string, patch OIDCConnectionPatch) (*identity.OIDCConnection, error)

	// StartTestFlow returns the URL that starts an IdP-bound test login
	StartTestFlow(ctx context.Context, connectionID string, redirects TestFlowRedirects) (string, error)

	// ListDiscoveredOrganizations lists the organizations an intermediate
	// credential's holder may join or switch into. Idempotent.
	ListDiscoveredOrganizations(ctx context.Context, intermediateToken string) ([]identity.DiscoveredOrganization, error)

	// ExchangeIntermediate consumes an intermediate credential for a full
	// per-organization authentication. Single-use upstream.
	ExchangeIntermediate(ctx context.Context, intermediateToken, orgID string) (*AuthResult, error)

	// CreateOrganization provisions a tenant for the intermediate
	// credential's holder and exchanges into it. The founding member is
	// granted the admin role.
	CreateOrganization(ctx context.Context, intermediateToken, name string) (*AuthResult, error)
}
