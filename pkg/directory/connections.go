package directory

import (
	"context"
	"fmt"

	"github.com/stationhq/gatehouse/pkg/identity"
	"github.com/stationhq/gatehouse/pkg/rbac"
	"github.com/stationhq/gatehouse/pkg/upstream"
)

// loadConnections returns the cached connection list, fetching on miss
func (d *OrgDirectory) loadConnections(ctx context.Context) (*upstream.ConnectionList, error) {
	sc := d.service.scope(d.session.Token, d.session.OrganizationID)

	sc.mu.RLock()
	cached := sc.connections
	sc.mu.RUnlock()
	if cached != nil {
		d.service.recordHit(collectionConnections)
		return copyConnectionList(cached), nil
	}
	d.service.recordMiss(collectionConnections)

	key := scopeKey(d.session.Token, d.session.OrganizationID) + "|" + collectionConnections
	val, err := d.service.fetch(ctx, key, func() (interface{}, error) {
		return d.refreshConnections(context.Background(), sc)
	})
	if err != nil {
		return nil, err
	}
	return copyConnectionList(val.(*upstream.ConnectionList)), nil
}

func (d *OrgDirectory) refreshConnections(ctx context.Context, sc *scopeCache) (*upstream.ConnectionList, error) {
	list, err := d.service.upstream.ListConnections(ctx, d.session.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("refresh connections: %w", err)
	}
	sc.mu.Lock()
	sc.connections = list
	sc.mu.Unlock()
	return list, nil
}

// invalidateAndRefreshConnections drops and synchronously refetches the
// connection cache after a mutation, before the mutation returns.
func (d *OrgDirectory) invalidateAndRefreshConnections(ctx context.Context) error {
	sc := d.service.scope(d.session.Token, d.session.OrganizationID)
	sc.mu.Lock()
	sc.connections = nil
	sc.mu.Unlock()
	_, err := d.refreshConnections(ctx, sc)
	return err
}

// Connections lists the organization's SSO connections
func (d *OrgDirectory) Connections(ctx context.Context) (*upstream.ConnectionList, error) {
	if d.session == nil {
		return nil, identity.ErrNoSession
	}
	if !d.service.evaluator.IsAuthorized(d.session, rbac.ResourceSSO, rbac.ActionGet) {
		return nil, fmt.Errorf("list connections: %w", identity.ErrPermissionDenied)
	}
	return d.loadConnections(ctx)
}

// GetSAMLConnection resolves one SAML connection by id
func (d *OrgDirectory) GetSAMLConnection(ctx context.Context, connectionID string) (*identity.SAMLConnection, error) {
	list, err := d.Connections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list.SAML {
		if list.SAML[i].ID == connectionID {
			return &list.SAML[i], nil
		}
	}
	return nil, fmt.Errorf("get saml connection %s: %w", connectionID, identity.ErrNotFound)
}

// GetOIDCConnection resolves one OIDC connection by id
func (d *OrgDirectory) GetOIDCConnection(ctx context.Context, connectionID string) (*identity.OIDCConnection, error) {
	list, err := d.Connections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list.OIDC {
		if list.OIDC[i].ID == connectionID {
			return &list.OIDC[i], nil
		}
	}
	return nil, fmt.Errorf("get oidc connection %s: %w", connectionID, identity.ErrNotFound)
}

// CreateConnection creates a new SSO connection shell of the given
// variant. The returned connection has empty protocol endpoints; a
// follow-up update supplies them.
func (d *OrgDirectory) CreateConnection(ctx context.Context, variant identity.ConnectionVariant, displayName string) (interface{}, error) {
	if d.session == nil {
		return nil, identity.ErrNoSession
	}
	if !d.service.evaluator.IsAuthorized(d.session, rbac.ResourceSSO, rbac.ActionCreate) {
		return nil, fmt.Errorf("create connection: %w", identity.ErrPermissionDenied)
	}
	if err := d.service.validator.DisplayName("display_name", displayName); err != nil {
		return nil, err
	}

	var created interface{}
	var err error
	switch variant {
	case identity.ConnectionSAML:
		created, err = d.service.upstream.CreateSAMLConnection(ctx, d.session.OrganizationID, displayName)
	case identity.ConnectionOIDC:
		created, err = d.service.upstream.CreateOIDCConnection(ctx, d.session.OrganizationID, displayName)
	default:
		return nil, &identity.ValidationError{Field: "variant", Reason: "must be saml or oidc"}
	}
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}

	if err := d.invalidateAndRefreshConnections(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

// SAMLUpdate carries a SAML connection update. When MetadataXML is
// supplied, endpoint fields and certificates are prefilled from the IdP
// metadata document before explicit fields are applied on top.
type SAMLUpdate struct {
	DisplayName      string
	IDPEntityID      string
	IDPSSOURL        string
	Certificate      string
	AttributeMapping *identity.SAMLAttributeMapping
	MetadataXML      string
}

// UpdateSAMLConnection applies a SAML connection update. Supplying all
// required endpoint fields transitions the connection toward active.
func (d *OrgDirectory) UpdateSAMLConnection(ctx context.Context, connectionID string, update SAMLUpdate) (*identity.SAMLConnection, error) {
	if d.session == nil {
		return nil, identity.ErrNoSession
	}
	if !d.service.evaluator.IsAuthorized(d.session, rbac.ResourceSSO, rbac.ActionUpdate) {
		return nil, fmt.Errorf("update saml connection: %w", identity.ErrPermissionDenied)
	}

	patch := upstream.SAMLConnectionPatch{}
	if update.MetadataXML != "" {
		meta, err := parseIDPMetadata([]byte(update.MetadataXML))
		if err != nil {
			return nil, err
		}
		patch.IDPEntityID = &meta.EntityID
		patch.IDPSSOURL = &meta.SSOURL
		if len(meta.Certificates) > 0 {
			patch.Certificate = &meta.Certificates[0]
		}
	}
	if update.DisplayName != "" {
		if err := d.service.validator.DisplayName("display_name", update.DisplayName); err != nil {
			return nil, err
		}
		patch.DisplayName = &update.DisplayName
	}
	if update.IDPEntityID != "" {
		patch.IDPEntityID = &update.IDPEntityID
	}
	if update.IDPSSOURL != "" {
		if err := d.service.validator.EndpointURL("idp_sso_url", update.IDPSSOURL); err != nil {
			return nil, err
		}
		patch.IDPSSOURL = &update.IDPSSOURL
	}
	if update.Certificate != "" {
		if err := validatePEMCertificate(update.Certificate); err != nil {
			return nil, err
		}
		patch.Certificate = &update.Certificate
	}
	if update.AttributeMapping != nil {
		patch.AttributeMapping = update.AttributeMapping
	}

	conn, err := d.service.upstream.UpdateSAMLConnection(ctx, d.session.OrganizationID, connectionID, patch)
	if err != nil {
		return nil, fmt.Errorf("update saml connection: %w", err)
	}

	if err := d.invalidateAndRefreshConnections(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

// OIDCUpdate carries an OIDC connection update
type OIDCUpdate struct {
	DisplayName      string
	ClientID         string
	ClientSecret     string
	Issuer           string
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string
	JWKSURL          string
}

// UpdateOIDCConnection applies an OIDC connection update. When an issuer
// URL is supplied and no explicit endpoint overrides are given, the
// authorization/token/userinfo/jwks URLs are auto-populated from the
// issuer's well-known configuration document.
func (d *OrgDirectory) UpdateOIDCConnection(ctx context.Context, connectionID string, update OIDCUpdate) (*identity.OIDCConnection, error) {
	if d.session == nil {
		return nil, identity.ErrNoSession
	}
	if !d.service.evaluator.IsAuthorized(d.session, rbac.ResourceSSO, rbac.ActionUpdate) {
		return nil, fmt.Errorf("update oidc connection: %w", identity.ErrPermissionDenied)
	}

	for field, value := range map[string]string{
		"issuer":            update.Issuer,
		"authorization_url": update.AuthorizationURL,
		"token_url":         update.TokenURL,
		"userinfo_url":      update.UserInfoURL,
		"jwks_url":          update.JWKSURL,
	} {
		if err := d.service.validator.EndpointURL(field, value); err != nil {
			return nil, err
		}
	}

	patch := upstream.OIDCConnectionPatch{}
	if update.DisplayName != "" {
		if err := d.service.validator.DisplayName("display_name", update.DisplayName); err != nil {
			return nil, err
		}
		patch.DisplayName = &update.DisplayName
	}
	if update.ClientID != "" {
		patch.ClientID = &update.ClientID
	}
	if update.ClientSecret != "" {
		patch.ClientSecret = &update.ClientSecret
	}
	if update.Issuer != "" {
		patch.Issuer = &update.Issuer
	}

	noOverrides := update.AuthorizationURL == "" && update.TokenURL == "" &&
		update.UserInfoURL == "" && update.JWKSURL == ""
	if update.Issuer != "" && noOverrides {
		endpoints, err := d.service.discoverOIDCEndpoints(ctx, update.Issuer)
		if err != nil {
			// auto-discovery is best effort: the issuer may not expose a
			// well-known document yet
			d.service.log.WithError(err).WithField("issuer", update.Issuer).
				Warn("oidc endpoint auto-discovery failed")
		} else {
			patch.AuthorizationURL = &endpoints.AuthorizationURL
			patch.TokenURL = &endpoints.TokenURL
			patch.UserInfoURL = &endpoints.UserInfoURL
			patch.JWKSURL = &endpoints.JWKSURL
		}
	}
	if update.AuthorizationURL != "" {
		patch.AuthorizationURL = &update.AuthorizationURL
	}
	if update.TokenURL != "" {
		patch.TokenURL = &update.TokenURL
	}
	if update.UserInfoURL != "" {
		patch.UserInfoURL = &update.UserInfoURL
	}
	if update.JWKSURL != "" {
		patch.JWKSURL = &update.JWKSURL
	}

	conn, err := d.service.upstream.UpdateOIDCConnection(ctx, d.session.OrganizationID, connectionID, patch)
	if err != nil {
		return nil, fmt.Errorf("update oidc connection: %w", err)
	}

	if err := d.invalidateAndRefreshConnections(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

// StartTestFlow returns the IdP-bound URL that exercises a connection
// end to end. The connection must be visible to the caller.
func (d *OrgDirectory) StartTestFlow(ctx context.Context, connectionID string, redirects upstream.TestFlowRedirects) (string, error) {
	if d.session == nil {
		return "", identity.ErrNoSession
	}
	if !d.service.evaluator.IsAuthorized(d.session, rbac.ResourceSSO, rbac.ActionGet) {
		return "", fmt.Errorf("start test flow: %w", identity.ErrPermissionDenied)
	}

	// resolve through the cache so unknown ids surface as NotFound here
	list, err := d.loadConnections(ctx)
	if err != nil {
		return "", err
	}
	found := false
	for _, c := range list.SAML {
		if c.ID == connectionID {
			found = true
		}
	}
	for _, c := range list.OIDC {
		if c.ID == connectionID {
			found = true
		}
	}
	if !found {
		return "", fmt.Errorf("start test flow %s: %w", connectionID, identity.ErrNotFound)
	}

	url, err := d.service.upstream.StartTestFlow(ctx, connectionID, redirects)
	if err != nil {
		return "", fmt.Errorf("start test flow: %w", err)
	}
	return url, nil
}

func copyConnectionList(list *upstream.ConnectionList) *upstream.ConnectionList {
	return &upstream.ConnectionList{
		SAML: append([]identity.SAMLConnection(nil), list.SAML...),
		OIDC: append([]identity.OIDCConnection(nil), list.OIDC...),
	}
}
