package api

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationhq/gatehouse/pkg/identity"
	"github.com/stationhq/gatehouse/pkg/upstream"
)

// testPEMCertificate generates a self-signed certificate usable as an
// IdP verification certificate.
func testPEMCertificate(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "idp.example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func createSAMLShell(t *testing.T, h *serverHarness, token string) *identity.SAMLConnection {
	t.Helper()
	rec := h.do(t, "POST", "/orgs/acme/connections", token, createConnectionRequest{
		Variant:     identity.ConnectionSAML,
		DisplayName: "Okta Production",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var conn identity.SAMLConnection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conn))
	return &conn
}

func TestCreateSAMLConnectionRoute(t *testing.T) {
	h := newServerHarness(t)
	token := h.login(t, "cred-admin")

	conn := createSAMLShell(t, h, token)
	assert.Equal(t, identity.ConnectionStatusPending, conn.Status)
	assert.Empty(t, conn.IDPEntityID)
	assert.NotEmpty(t, conn.ACSURL)

	// Shows up in the list.
	rec := h.do(t, "GET", "/orgs/acme/connections", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list upstream.ConnectionList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.SAML, 1)
	assert.Equal(t, conn.ID, list.SAML[0].ID)
}

func TestCreateConnectionValidation(t *testing.T) {
	h := newServerHarness(t)
	token := h.login(t, "cred-admin")

	t.Run("short display name", func(t *testing.T) {
		rec := h.do(t, "POST", "/orgs/acme/connections", token, createConnectionRequest{
			Variant:     identity.ConnectionSAML,
			DisplayName: "ab",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown variant", func(t *testing.T) {
		rec := h.do(t, "POST", "/orgs/acme/connections", token, createConnectionRequest{
			Variant:     "ldap",
			DisplayName: "Directory Server",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestConnectionRoutePermissions(t *testing.T) {
	h := newServerHarness(t)

	t.Run("plain member cannot list", func(t *testing.T) {
		token := h.login(t, "cred-plain")
		rec := h.do(t, "GET", "/orgs/acme/connections", token, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("editor lists but cannot create", func(t *testing.T) {
		token := h.login(t, "cred-editor")
		rec := h.do(t, "GET", "/orgs/acme/connections", token, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = h.do(t, "POST", "/orgs/acme/connections", token, createConnectionRequest{
			Variant:     identity.ConnectionSAML,
			DisplayName: "Okta Production",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestUpdateSAMLConnectionRoute(t *testing.T) {
	h := newServerHarness(t)
	token := h.login(t, "cred-admin")
	conn := createSAMLShell(t, h, token)

	rec := h.do(t, "PATCH", "/orgs/acme/connections/saml/"+conn.ID, token, updateSAMLConnectionRequest{
		IDPEntityID: "https://idp.example.com/metadata",
		IDPSSOURL:   "https://idp.example.com/sso",
		Certificate: testPEMCertificate(t),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated identity.SAMLConnection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, identity.ConnectionStatusActive, updated.Status)
	assert.Equal(t, "https://idp.example.com/metadata", updated.IDPEntityID)

	rec = h.do(t, "GET", "/orgs/acme/connections/saml/"+conn.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateOIDCConnectionRoute(t *testing.T) {
	h := newServerHarness(t)
	token := h.login(t, "cred-admin")

	rec := h.do(t, "POST", "/orgs/acme/connections", token, createConnectionRequest{
		Variant:     identity.ConnectionOIDC,
		DisplayName: "Azure AD",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var conn identity.OIDCConnection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conn))

	rec = h.do(t, "PATCH", "/orgs/acme/connections/oidc/"+conn.ID, token, updateOIDCConnectionRequest{
		ClientID:         "client-abc",
		ClientSecret:     "secret-abc",
		Issuer:           "https://login.example.com",
		AuthorizationURL: "https://login.example.com/authorize",
		TokenURL:         "https://login.example.com/token",
		UserInfoURL:      "https://login.example.com/userinfo",
		JWKSURL:          "https://login.example.com/keys",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated identity.OIDCConnection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, identity.ConnectionStatusActive, updated.Status)
	assert.Empty(t, updated.ClientSecret) // never serialized
}

func TestStartTestFlowRoute(t *testing.T) {
	h := newServerHarness(t)
	token := h.login(t, "cred-admin")
	conn := createSAMLShell(t, h, token)

	rec := h.do(t, "POST", "/orgs/acme/connections/"+conn.ID+"/test", token, testFlowRequest{
		LoginRedirectURL:  "https://app.acme.test/callback",
		SignupRedirectURL: "https://app.acme.test/signup",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp testFlowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.TestFlowURL, conn.ID)

	rec = h.do(t, "POST", "/orgs/acme/connections/no-such-conn/test", token, testFlowRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
