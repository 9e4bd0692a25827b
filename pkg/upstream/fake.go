package upstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stationhq/gatehouse/pkg/identity"
)

// Fake is an in-memory Client used by tests and local development. It
// mimics the remote service's observable behavior: credentials map to
// members, intermediate credentials are single-use, invites create pending
// members, and connection creates return unconfigured shells.
type Fake struct {
	mu sync.Mutex

	orgs        map[string]*identity.Organization
	members     map[string]map[string]*identity.Member // orgID -> memberID -> member
	saml        map[string]map[string]*identity.SAMLConnection
	oidc        map[string]map[string]*identity.OIDCConnection
	credentials map[string]fakeGrant // credential token -> grant
	sessions    map[string]fakeGrant // upstream session token -> grant

	intermediates        map[string][]string // intermediate token -> discoverable org ids
	consumedIntermediate map[string]bool

	// CallLog records method names in invocation order, for assertions on
	// fetch/refresh behavior.
	CallLog []string
}

type fakeGrant struct {
	memberID string
	orgID    string
	roleIDs  []string
}

// NewFake creates an empty fake upstream service
func NewFake() *Fake {
	return &Fake{
		orgs:                 make(map[string]*identity.Organization),
		members:              make(map[string]map[string]*identity.Member),
		saml:                 make(map[string]map[string]*identity.SAMLConnection),
		oidc:                 make(map[string]map[string]*identity.OIDCConnection),
		credentials:          make(map[string]fakeGrant),
		sessions:             make(map[string]fakeGrant),
		intermediates:        make(map[string][]string),
		consumedIntermediate: make(map[string]bool),
	}
}

func (f *Fake) record(call string) {
	f.CallLog = append(f.CallLog, call)
}

// AddOrganization seeds an organization
func (f *Fake) AddOrganization(org identity.Organization) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := org
	f.orgs[org.ID] = &cp
	if f.members[org.ID] == nil {
		f.members[org.ID] = make(map[string]*identity.Member)
	}
	if f.saml[org.ID] == nil {
		f.saml[org.ID] = make(map[string]*identity.SAMLConnection)
	}
	if f.oidc[org.ID] == nil {
		f.oidc[org.ID] = make(map[string]*identity.OIDCConnection)
	}
}

// AddMember seeds a member into an organization
func (f *Fake) AddMember(m identity.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := m
	if f.members[m.OrganizationID] == nil {
		f.members[m.OrganizationID] = make(map[string]*identity.Member)
	}
	f.members[m.OrganizationID][m.ID] = &cp
}

// GrantCredential makes a credential token authenticate as the given member
func (f *Fake) GrantCredential(token, memberID, orgID string, roleIDs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credentials[token] = fakeGrant{memberID: memberID, orgID: orgID, roleIDs: roleIDs}
}

// GrantIntermediate makes an intermediate token discover the given org ids.
// The member identity behind the token is taken from memberID/email.
func (f *Fake) GrantIntermediate(token string, orgIDs []string, memberEmail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intermediates[token] = orgIDs
	f.credentials[token] = fakeGrant{memberID: memberEmail}
}

func (f *Fake) authResultLocked(grant fakeGrant) (*AuthResult, error) {
	org, ok := f.orgs[grant.orgID]
	if !ok {
		return nil, fmt.Errorf("fake upstream: %w", identity.ErrNotFound)
	}
	member, ok := f.members[grant.orgID][grant.memberID]
	if !ok {
		return nil, fmt.Errorf("fake upstream: %w", identity.ErrNotFound)
	}
	roles := grant.roleIDs
	if roles == nil {
		roles = member.RoleIDs
	}
	mc, oc := *member, *org
	return &AuthResult{Member: mc, Organization: oc, RoleIDs: append([]string(nil), roles...)}, nil
}

// Authenticate implements Client
func (f *Fake) Authenticate(ctx context.Context, cred Credential) (*AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Authenticate")
	grant, ok := f.credentials[cred.Token]
	if !ok || grant.orgID == "" {
		return nil, identity.NewAuthError(identity.AuthErrorInvalid, fmt.Errorf("unknown credential"))
	}
	res, err := f.authResultLocked(grant)
	if err != nil {
		return nil, err
	}
	f.sessions[cred.Token] = grant
	return res, nil
}

// ExchangeSession implements Client
func (f *Fake) ExchangeSession(ctx context.Context, sessionToken, targetOrgID string) (*AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ExchangeSession")
	grant, ok := f.sessions[sessionToken]
	if !ok {
		return nil, identity.NewAuthError(identity.AuthErrorInvalid, fmt.Errorf("unknown session"))
	}
	target, ok := f.members[targetOrgID]
	if !ok {
		return nil, fmt.Errorf("fake upstream: %w", identity.ErrNotFound)
	}
	// the anchor identity must exist in the target org under some member id
	current := f.members[grant.orgID][grant.memberID]
	for id, m := range target {
		if current != nil && m.Email == current.Email {
			next := fakeGrant{memberID: id, orgID: targetOrgID}
			f.sessions[sessionToken] = next
			return f.authResultLocked(next)
		}
	}
	return nil, identity.NewAuthError(identity.AuthErrorInvalid, fmt.Errorf("no membership in target organization"))
}

// RevokeSession implements Client
func (f *Fake) RevokeSession(ctx context.Context, sessionToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RevokeSession")
	delete(f.sessions, sessionToken)
	return nil
}

// GetOrganization implements Client
func (f *Fake) GetOrganization(ctx context.Context, orgID string) (*identity.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetOrganization")
	org, ok := f.orgs[orgID]
	if !ok {
		return nil, fmt.Errorf("fake upstream: %w", identity.ErrNotFound)
	}
	cp := *org
	return &cp, nil
}

// UpdateOrganization implements Client
func (f *Fake) UpdateOrganization(ctx context.Context, orgID string, patch OrganizationPatch) (*identity.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateOrganization")
	org, ok := f.orgs[orgID]
	if !ok {
		return nil, fmt.Errorf("fake upstream: %w", identity.ErrNotFound)
	}
	if patch.Name != nil {
		org.Name = *patch.Name
	}
	org.UpdatedAt = time.Now()
	cp := *org
	return &cp, nil
}

// SearchMembers implements Client
func (f *Fake) SearchMembers(ctx context.Context, orgID string, filter MemberFilter) ([]identity.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SearchMembers")
	roster, ok := f.members[orgID]
	if !ok {
		return nil, fmt.Errorf("fake upstream: %w", identity.ErrNotFound)
	}
	var out []identity.Member
	for _, m := range roster {
		if len(filter.MemberIDs) > 0 && !containsString(filter.MemberIDs, m.ID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, m.Status) {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

// UpdateMember implements Client
func (f *Fake) UpdateMember(ctx context.Context, orgID, memberID string, patch MemberPatch) (*identity.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateMember")
	m, ok := f.members[orgID][memberID]
	if !ok {
		return nil, fmt.Errorf("fake upstream: %w", identity.ErrNotFound)
	}
	if patch.Name != nil {
		m.Name = *patch.Name
	}
	if patch.RoleIDs != nil {
		m.RoleIDs = append([]string(nil), (*patch.RoleIDs)...)
	}
	m.UpdatedAt = time.Now()
	cp := *m
	return &cp, nil
}

// DeleteMember implements Client
func (f *Fake) DeleteMember(ctx context.Context, orgID, memberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteMember")
	if _, ok := f.members[orgID][memberID]; !ok {
		return fmt.Errorf("fake upstream: %w", identity.ErrNotFound)
	}
	delete(f.members[orgID], memberID)
	return nil
}

// InviteMember implements Client
func (f *Fake) InviteMember(ctx context.Context, orgID, email string, roleIDs []string) (*identity.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("InviteMember")
	if _, ok := f.orgs[orgID]; !ok {
		return nil, fmt.Errorf("fake upstream: %w", identity.ErrNotFound)
	}
	m := &identity.Member{
		ID:             "member-" + uuid.NewString(),
		OrganizationID: orgID,
		Email:          email,
		Status:         identity.MemberStatusPending,
		RoleIDs:        append([]string(nil), roleIDs...),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	f.members[orgID][m.ID] = m
	cp := *m
	return &cp, nil
}

// ListConnections implements Client
func (f *Fake) ListConnections(ctx context.Context, orgID string) (*ConnectionList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListConnections")
	if _, ok := f.orgs[orgID]; !ok {
		return nil, fmt.Errorf("fake upstream: %w", identity.ErrNotFound)
	}
	out := &ConnectionList{}
	for _, c := range f.saml[orgID] {
		out.SAML = append(out.SAML, *c)
	}
	for _, c := range f.oidc[orgID] {
		out.OIDC = append(out.OIDC, *c)
	}
	return out, nil
}

// CreateSAMLConnection implements Client
func (f *Fake) CreateSAMLConnection(ctx context.Context, orgID, displayName string) (*identity.SAMLConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateSAMLConnection")
	if _, ok := f.orgs[orgID]; !ok {
		return nil, fmt.Errorf("fake upstream: %w", identity.ErrNotFound)
	}
	c := &identity.SAMLConnection{
		ID:             "saml-" + uuid.NewString(),
		OrganizationID: orgID,
		DisplayName:    displayName,
		Status:         identity.ConnectionStatusPending,
		ACSURL:         "https://id.example.com/sso/acs/" + orgID,
		AudienceURI:    "https://id.example.com/audience/" + orgID,
	}
	f.saml[orgID][c.ID] = c
	cp := *c
	return &cp, nil
}

// CreateOIDCConnection implements Client
func (f *Fake) CreateOIDCConnection(ctx context.Context, orgID, displayName string) (*identity.OIDCConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateOIDCConnection")
	if _, ok := f.orgs[orgID]; !ok {
		return nil, fmt.Errorf("fake upstream: %w", identity.ErrNotFound)
	}
	c := &identity.OIDCConnection{
		ID:             "oidc-" + uuid.NewString(),
		OrganizationID: orgID,
		DisplayName:    displayName,
		Status:         identity.ConnectionStatusPending,
		RedirectURL:    "https://id.example.com/sso/callback/" + orgID,
	}
	f.oidc[orgID][c.ID] = c
	cp := *c
	return &cp, nil
}

// UpdateSAMLConnection implements Client
func (f *Fake) UpdateSAMLConnection(ctx context.Context, orgID, connectionID string, patch SAMLConnectionPatch) (*identity.SAMLConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateSAMLConnection")
	c, ok := f.saml[orgID][connectionID]
	if !ok {
		return nil, fmt.Errorf("fake upstream: %w", identity.ErrNotFound)
	}
	if patch.DisplayName != nil {
		c.DisplayName = *patch.DisplayName
	}
	if patch.IDPEntityID != nil {
		c.IDPEntityID = *patch.IDPEntityID
	}
	if patch.IDPSSOURL != nil {
		c.IDPSSOURL = *patch.IDPSSOURL
	}
	if patch.Certificate != nil && *patch.Certificate != "" {
		c.VerificationCertificates = []string{*patch.Certificate}
	}
	if patch.AttributeMapping != nil {
		c.AttributeMapping = *patch.AttributeMapping
	}
	if c.Configured() {
		c.Status = identity.ConnectionStatusActive
	}
	cp := *c
	return &cp, nil
}

// UpdateOIDCConnection implements Client
func (f *Fake) UpdateOIDCConnection(ctx context.Context, orgID, connectionID string, patch OIDCConnectionPatch) (*identity.OIDCConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateOIDCConnection")
	c, ok := f.oidc[orgID][connectionID]
	if !ok {
		return nil, fmt.Errorf("fake upstream: %w", identity.ErrNotFound)
	}
	if patch.DisplayName != nil {
		c.DisplayName = *patch.DisplayName
	}
	if patch.ClientID != nil {
		c.ClientID = *patch.ClientID
	}
	if patch.ClientSecret != nil {
		c.ClientSecret = *patch.ClientSecret
	}
	if patch.Issuer != nil {
		c.Issuer = *patch.Issuer
	}
	if patch.AuthorizationURL != nil {
		c.AuthorizationURL = *patch.AuthorizationURL
	}
	if patch.TokenURL != nil {
		c.TokenURL = *patch.TokenURL
	}
	if patch.UserInfoURL != nil {
		c.UserInfoURL = *patch.UserInfoURL
	}
	if patch.JWKSURL != nil {
		c.JWKSURL = *patch.JWKSURL
	}
	if c.Configured() {
		c.Status = identity.ConnectionStatusActive
	}
	cp := *c
	return &cp, nil
}

// StartTestFlow implements Client
func (f *Fake) StartTestFlow(ctx context.Context, connectionID string, redirects TestFlowRedirects) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StartTestFlow")
	for _, conns := range f.saml {
		if _, ok := conns[connectionID]; ok {
			return "https://id.example.com/sso/start?connection_id=" + connectionID, nil
		}
	}
	for _, conns := range f.oidc {
		if _, ok := conns[connectionID]; ok {
			return "https://id.example.com/sso/start?connection_id=" + connectionID, nil
		}
	}
	return "", fmt.Errorf("fake upstream: %w", identity.ErrNotFound)
}

// ListDiscoveredOrganizations implements Client
func (f *Fake) ListDiscoveredOrganizations(ctx context.Context, intermediateToken string) ([]identity.DiscoveredOrganization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListDiscoveredOrganizations")
	orgIDs, ok := f.intermediates[intermediateToken]
	if !ok {
		return nil, identity.NewAuthError(identity.AuthErrorInvalid, fmt.Errorf("unknown intermediate credential"))
	}
	email := f.credentials[intermediateToken].memberID
	var out []identity.DiscoveredOrganization
	for _, id := range orgIDs {
		org, ok := f.orgs[id]
		if !ok {
			continue
		}
		d := identity.DiscoveredOrganization{Organization: *org}
		for _, m := range f.members[id] {
			if m.Email == email {
				d.MemberExists = true
				d.MembershipType = "active_member"
			}
		}
		if !d.MemberExists {
			d.MembershipType = "eligible_to_join_by_email_domain"
		}
		out = append(out, d)
	}
	return out, nil
}

// ExchangeIntermediate implements Client
func (f *Fake) ExchangeIntermediate(ctx context.Context, intermediateToken, orgID string) (*AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ExchangeIntermediate")
	if f.consumedIntermediate[intermediateToken] {
		return nil, identity.NewAuthError(identity.AuthErrorAlreadyExchanged, fmt.Errorf("intermediate credential already used"))
	}
	orgIDs, ok := f.intermediates[intermediateToken]
	if !ok || !containsString(orgIDs, orgID) {
		return nil, identity.NewAuthError(identity.AuthErrorInvalid, fmt.Errorf("intermediate credential not valid for organization"))
	}
	email := f.credentials[intermediateToken].memberID
	for id, m := range f.members[orgID] {
		if m.Email == email {
			f.consumedIntermediate[intermediateToken] = true
			grant := fakeGrant{memberID: id, orgID: orgID}
			f.sessions[intermediateToken] = grant
			return f.authResultLocked(grant)
		}
	}
	// eligible by email domain: provision an active membership
	m := &identity.Member{
		ID:             "member-" + uuid.NewString(),
		OrganizationID: orgID,
		Email:          email,
		Status:         identity.MemberStatusActive,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	f.members[orgID][m.ID] = m
	f.consumedIntermediate[intermediateToken] = true
	grant := fakeGrant{memberID: m.ID, orgID: orgID}
	f.sessions[intermediateToken] = grant
	return f.authResultLocked(grant)
}

// CreateOrganization implements Client
func (f *Fake) CreateOrganization(ctx context.Context, intermediateToken, name string) (*AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateOrganization")
	if f.consumedIntermediate[intermediateToken] {
		return nil, identity.NewAuthError(identity.AuthErrorAlreadyExchanged, fmt.Errorf("intermediate credential already used"))
	}
	if _, ok := f.intermediates[intermediateToken]; !ok {
		return nil, identity.NewAuthError(identity.AuthErrorInvalid, fmt.Errorf("unknown intermediate credential"))
	}
	email := f.credentials[intermediateToken].memberID
	org := &identity.Organization{
		ID:        "org-" + uuid.NewString(),
		Name:      name,
		Slug:      slugify(name),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.orgs[org.ID] = org
	f.members[org.ID] = make(map[string]*identity.Member)
	f.saml[org.ID] = make(map[string]*identity.SAMLConnection)
	f.oidc[org.ID] = make(map[string]*identity.OIDCConnection)
	m := &identity.Member{
		ID:             "member-" + uuid.NewString(),
		OrganizationID: org.ID,
		Email:          email,
		Status:         identity.MemberStatusActive,
		RoleIDs:        []string{"admin"},
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	f.members[org.ID][m.ID] = m
	f.consumedIntermediate[intermediateToken] = true
	grant := fakeGrant{memberID: m.ID, orgID: org.ID}
	f.sessions[intermediateToken] = grant
	return f.authResultLocked(grant)
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func containsStatus(list []identity.MemberStatus, want identity.MemberStatus) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func slugify(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ' || r == '-' || r == '_':
			if len(out) > 0 && out[len(out)-1] != '-' {
				out = append(out, '-')
			}
		}
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	return string(out)
}
