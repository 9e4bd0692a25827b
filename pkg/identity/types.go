package identity

import "time"

// MemberStatus represents the lifecycle state of a member.
// Transitions are monotonic: pending -> active -> deleted, never backwards.
type MemberStatus string

const (
	MemberStatusPending MemberStatus = "pending"
	MemberStatusActive  MemberStatus = "active"
	MemberStatusDeleted MemberStatus = "deleted"
)

// rank orders statuses for monotonicity checks
func (s MemberStatus) rank() int {
	switch s {
	case MemberStatusPending:
		return 0
	case MemberStatusActive:
		return 1
	case MemberStatusDeleted:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether a status change is allowed.
// A member can only move forward through the lifecycle (no un-delete).
func (s MemberStatus) CanTransitionTo(next MemberStatus) bool {
	if s.rank() < 0 || next.rank() < 0 {
		return false
	}
	return next.rank() >= s.rank()
}

// Member represents an individual user account scoped to one organization
type Member struct {
	ID             string       `json:"member_id"`
	OrganizationID string       `json:"organization_id"`
	Email          string       `json:"email_address"`
	Name           string       `json:"name,omitempty"`
	Status         MemberStatus `json:"status"`
	RoleIDs        []string     `json:"role_ids"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// HasRole reports whether the member holds the given role id
func (m *Member) HasRole(roleID string) bool {
	for _, r := range m.RoleIDs {
		if r == roleID {
			return true
		}
	}
	return false
}

// Organization represents a tenant; it owns members and SSO connections
type Organization struct {
	ID                  string    `json:"organization_id"`
	Name                string    `json:"organization_name"`
	Slug                string    `json:"organization_slug"`
	AllowedEmailDomains []string  `json:"email_allowed_domains,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ConnectionStatus represents the configuration state of an SSO connection
type ConnectionStatus string

const (
	ConnectionStatusPending ConnectionStatus = "pending"
	ConnectionStatusActive  ConnectionStatus = "active"
)

// ConnectionVariant distinguishes SAML from OIDC connections
type ConnectionVariant string

const (
	ConnectionSAML ConnectionVariant = "saml"
	ConnectionOIDC ConnectionVariant = "oidc"
)

// SAMLAttributeMapping maps IdP assertion attributes onto member fields
type SAMLAttributeMapping struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// SAMLConnection represents a configured SAML 2.0 federation endpoint
type SAMLConnection struct {
	ID               string               `json:"connection_id"`
	OrganizationID   string               `json:"organization_id"`
	DisplayName      string               `json:"display_name"`
	Status           ConnectionStatus     `json:"status"`
	IDPEntityID      string               `json:"idp_entity_id,omitempty"`
	IDPSSOURL        string               `json:"idp_sso_url,omitempty"`
	ACSURL           string               `json:"acs_url,omitempty"`
	AudienceURI      string               `json:"audience_uri,omitempty"`
	AttributeMapping SAMLAttributeMapping `json:"attribute_mapping"`
	// PEM encoded IdP signing certificates
	VerificationCertificates []string `json:"verification_certificates,omitempty"`
}

// OIDCConnection represents a configured OIDC federation endpoint
type OIDCConnection struct {
	ID               string           `json:"connection_id"`
	OrganizationID   string           `json:"organization_id"`
	DisplayName      string           `json:"display_name"`
	Status           ConnectionStatus `json:"status"`
	ClientID         string           `json:"client_id,omitempty"`
	ClientSecret     string           `json:"-"` // Never expose secret in JSON
	Issuer           string           `json:"issuer,omitempty"`
	AuthorizationURL string           `json:"authorization_url,omitempty"`
	TokenURL         string           `json:"token_url,omitempty"`
	UserInfoURL      string           `json:"userinfo_url,omitempty"`
	JWKSURL          string           `json:"jwks_url,omitempty"`
	RedirectURL      string           `json:"redirect_url,omitempty"`
}

// Configured reports whether all required SAML endpoints are set
func (c *SAMLConnection) Configured() bool {
	return c.IDPEntityID != "" && c.IDPSSOURL != "" && len(c.VerificationCertificates) > 0
}

// Configured reports whether all required OIDC endpoints are set
func (c *OIDCConnection) Configured() bool {
	return c.ClientID != "" && c.Issuer != "" &&
		c.AuthorizationURL != "" && c.TokenURL != "" && c.JWKSURL != ""
}

// Session represents an authenticated principal scoped to one organization
type Session struct {
	Token          string    `json:"-"` // opaque bearer token, never serialized
	MemberID       string    `json:"member_id"`
	OrganizationID string    `json:"organization_id"`
	RoleIDs        []string  `json:"role_ids"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// DiscoveredOrganization pairs an organization with the authenticating
// principal's membership eligibility, produced transiently during discovery
type DiscoveredOrganization struct {
	Organization   Organization `json:"organization"`
	MemberExists   bool         `json:"member_exists"`
	MembershipType string       `json:"membership_type,omitempty"` // e.g. "active_member", "eligible_to_join_by_email_domain"
}
