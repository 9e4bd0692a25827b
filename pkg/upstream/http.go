package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/stationhq/gatehouse/pkg/identity"
)

// HTTPClientConfig configures the HTTP client for the remote identity service
type HTTPClientConfig struct {
	// BaseURL is the remote service API root, e.g. https://id.example.com/v1
	BaseURL string
	// ClientID and ClientSecret are the service credentials used to
	// authenticate the façade itself against the remote API.
	ClientID     string
	ClientSecret string
	// TokenURL is the remote service's service-credential token endpoint
	TokenURL string
	// Timeout bounds each request
	Timeout time.Duration
}

// HTTPClient implements Client against the remote identity service's
// HTTP/JSON API. Service authentication uses the OAuth2 client credentials
// grant; all requests go through an otel-instrumented transport.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     *logrus.Logger
}

// NewHTTPClient creates a Client for the remote identity service
func NewHTTPClient(config HTTPClientConfig, log *logrus.Logger) (*HTTPClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("upstream base URL is required")
	}
	if log == nil {
		log = logrus.New()
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	cc := clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     config.TokenURL,
	}

	base := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   config.Timeout,
	}
	// The token source reuses the instrumented transport via the oauth2
	// context client convention.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := cc.Client(ctx)
	httpClient.Timeout = config.Timeout

	return &HTTPClient{
		baseURL: config.BaseURL,
		http:    httpClient,
		log:     log,
	}, nil
}

// remoteError is the remote service's error envelope
type remoteError struct {
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("path", path).Warn("upstream request failed")
		return fmt.Errorf("upstream %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("upstream request")

	if resp.StatusCode >= 400 {
		return c.mapError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// mapError translates remote error envelopes into the façade taxonomy
func (c *HTTPClient) mapError(resp *http.Response) error {
	var re remoteError
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(data, &re)

	switch re.ErrorType {
	case "intermediate_session_token_already_used":
		return identity.NewAuthError(identity.AuthErrorAlreadyExchanged, fmt.Errorf("%s", re.ErrorMessage))
	case "session_expired", "credential_expired":
		return identity.NewAuthError(identity.AuthErrorExpired, fmt.Errorf("%s", re.ErrorMessage))
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return identity.NewAuthError(identity.AuthErrorInvalid, fmt.Errorf("upstream status %d: %s", resp.StatusCode, re.ErrorMessage))
	case http.StatusNotFound:
		return fmt.Errorf("upstream: %w", identity.ErrNotFound)
	case http.StatusConflict:
		return &identity.ConflictError{Reason: re.ErrorMessage}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &identity.ValidationError{Field: re.ErrorType, Reason: re.ErrorMessage}
	default:
		return fmt.Errorf("upstream status %d: %s", resp.StatusCode, re.ErrorMessage)
	}
}

// Authenticate exchanges a callback credential for an authentication result
func (c *HTTPClient) Authenticate(ctx context.Context, cred Credential) (*AuthResult, error) {
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/sessions/authenticate", cred, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExchangeSession exchanges an existing session into a target organization
func (c *HTTPClient) ExchangeSession(ctx context.Context, sessionToken, targetOrgID string) (*AuthResult, error) {
	body := map[string]string{
		"session_token":   sessionToken,
		"organization_id": targetOrgID,
	}
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/sessions/exchange", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RevokeSession invalidates a session upstream
func (c *HTTPClient) RevokeSession(ctx context.Context, sessionToken string) error {
	body := map[string]string{"session_token": sessionToken}
	return c.do(ctx, http.MethodPost, "/sessions/revoke", body, nil)
}

// GetOrganization fetches one organization by id
func (c *HTTPClient) GetOrganization(ctx context.Context, orgID string) (*identity.Organization, error) {
	var out identity.Organization
	if err := c.do(ctx, http.MethodGet, "/organizations/"+url.PathEscape(orgID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateOrganization applies a partial update to an organization
func (c *HTTPClient) UpdateOrganization(ctx context.Context, orgID string, patch OrganizationPatch) (*identity.Organization, error) {
	var out identity.Organization
	if err := c.do(ctx, http.MethodPut, "/organizations/"+url.PathEscape(orgID), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchMembers lists an organization's members, optionally narrowed
func (c *HTTPClient) SearchMembers(ctx context.Context, orgID string, filter MemberFilter) ([]identity.Member, error) {
	var out struct {
		Members []identity.Member `json:"members"`
	}
	path := "/organizations/" + url.PathEscape(orgID) + "/members/search"
	if err := c.do(ctx, http.MethodPost, path, filter, &out); err != nil {
		return nil, err
	}
	return out.Members, nil
}

// UpdateMember applies a partial update to a member
func (c *HTTPClient) UpdateMember(ctx context.Context, orgID, memberID string, patch MemberPatch) (*identity.Member, error) {
	var out identity.Member
	path := "/organizations/" + url.PathEscape(orgID) + "/members/" + url.PathEscape(memberID)
	if err := c.do(ctx, http.MethodPut, path, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMember removes a member from the organization
func (c *HTTPClient) DeleteMember(ctx context.Context, orgID, memberID string) error {
	path := "/organizations/" + url.PathEscape(orgID) + "/members/" + url.PathEscape(memberID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// InviteMember sends an email invite and creates a pending member
func (c *HTTPClient) InviteMember(ctx context.Context, orgID, email string, roleIDs []string) (*identity.Member, error) {
	body := map[string]interface{}{
		"email_address": email,
		"role_ids":      roleIDs,
	}
	var out identity.Member
	path := "/organizations/" + url.PathEscape(orgID) + "/members/invite"
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListConnections lists an organization's SSO connections
func (c *HTTPClient) ListConnections(ctx context.Context, orgID string) (*ConnectionList, error) {
	var out ConnectionList
	path := "/organizations/" + url.PathEscape(orgID) + "/sso/connections"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSAMLConnection creates a SAML connection shell
func (c *HTTPClient) CreateSAMLConnection(ctx context.Context, orgID, displayName string) (*identity.SAMLConnection, error) {
	body := map[string]string{"display_name": displayName}
	var out identity.SAMLConnection
	path := "/organizations/" + url.PathEscape(orgID) + "/sso/saml"
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOIDCConnection creates an OIDC connection shell
func (c *HTTPClient) CreateOIDCConnection(ctx context.Context, orgID, displayName string) (*identity.OIDCConnection, error) {
	body := map[string]string{"display_name": displayName}
	var out identity.OIDCConnection
	path := "/organizations/" + url.PathEscape(orgID) + "/sso/oidc"
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSAMLConnection applies a partial update to a SAML connection
func (c *HTTPClient) UpdateSAMLConnection(ctx context.Context, orgID, connectionID string, patch SAMLConnectionPatch) (*identity.SAMLConnection, error) {
	var out identity.SAMLConnection
	path := "/organizations/" + url.PathEscape(orgID) + "/sso/saml/" + url.PathEscape(connectionID)
	if err := c.do(ctx, http.MethodPut, path, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateOIDCConnection applies a partial update to an OIDC connection
func (c *HTTPClient) UpdateOIDCConnection(ctx context.Context, orgID, connectionID string, patch OIDCConnectionPatch) (*identity.OIDCConnection, error) {
	var out identity.OIDCConnection
	path := "/organizations/" + url.PathEscape(orgID) + "/sso/oidc/" + url.PathEscape(connectionID)
	if err := c.do(ctx, http.MethodPut, path, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartTestFlow returns the URL that starts an IdP-bound test login
func (c *HTTPClient) StartTestFlow(ctx context.Context, connectionID string, redirects TestFlowRedirects) (string, error) {
	var out struct {
		StartURL string `json:"start_url"`
	}
	path := "/sso/connections/" + url.PathEscape(connectionID) + "/start"
	if err := c.do(ctx, http.MethodPost, path, redirects, &out); err != nil {
		return "", err
	}
	return out.StartURL, nil
}

// Healthcheck probes the remote service's health endpoint. Used by the
// readiness checker, not part of the Client contract.
func (c *HTTPClient) Healthcheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// ListDiscoveredOrganizations lists joinable organizations for an
// intermediate credential
func (c *HTTPClient) ListDiscoveredOrganizations(ctx context.Context, intermediateToken string) ([]identity.DiscoveredOrganization, error) {
	body := map[string]string{"intermediate_session_token": intermediateToken}
	var out struct {
		DiscoveredOrganizations []identity.DiscoveredOrganization `json:"discovered_organizations"`
	}
	if err := c.do(ctx, http.MethodPost, "/discovery/organizations", body, &out); err != nil {
		return nil, err
	}
	return out.DiscoveredOrganizations, nil
}

// ExchangeIntermediate consumes an intermediate credential for a full
// per-organization authentication
func (c *HTTPClient) ExchangeIntermediate(ctx context.Context, intermediateToken, orgID string) (*AuthResult, error) {
	body := map[string]string{
		"intermediate_session_token": intermediateToken,
		"organization_id":            orgID,
	}
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/discovery/exchange", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrganization provisions a tenant and exchanges into it
func (c *HTTPClient) CreateOrganization(ctx context.Context, intermediateToken, name string) (*AuthResult, error) {
	body := map[string]string{
		"intermediate_session_token": intermediateToken,
		"organization_name":          name,
	}
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/discovery/create", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
