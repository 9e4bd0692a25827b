package identity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemberStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    MemberStatus
		to      MemberStatus
		allowed bool
	}{
		{"pending to active", MemberStatusPending, MemberStatusActive, true},
		{"pending to deleted", MemberStatusPending, MemberStatusDeleted, true},
		{"active to deleted", MemberStatusActive, MemberStatusDeleted, true},
		{"active to pending", MemberStatusActive, MemberStatusPending, false},
		{"deleted to active", MemberStatusDeleted, MemberStatusActive, false},
		{"deleted to pending", MemberStatusDeleted, MemberStatusPending, false},
		{"same status", MemberStatusActive, MemberStatusActive, true},
		{"unknown status", MemberStatus("frozen"), MemberStatusActive, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestMemberHasRole(t *testing.T) {
	m := &Member{ID: "member-1", RoleIDs: []string{"editor", "admin"}}
	assert.True(t, m.HasRole("editor"))
	assert.True(t, m.HasRole("admin"))
	assert.False(t, m.HasRole("member"))

	empty := &Member{ID: "member-2"}
	assert.False(t, empty.HasRole("admin"))
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	s := &Session{IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	assert.False(t, s.Expired(now))
	assert.False(t, s.Expired(now.Add(59*time.Minute)))
	assert.True(t, s.Expired(now.Add(time.Hour)))
	assert.True(t, s.Expired(now.Add(2*time.Hour)))
}

func TestSAMLConnectionConfigured(t *testing.T) {
	conn := &SAMLConnection{ID: "saml-1", DisplayName: "Okta"}
	assert.False(t, conn.Configured())

	conn.IDPEntityID = "https://idp.example.com/entity"
	conn.IDPSSOURL = "https://idp.example.com/sso"
	assert.False(t, conn.Configured(), "missing certificate")

	conn.VerificationCertificates = []string{"-----BEGIN CERTIFICATE-----\n..."}
	assert.True(t, conn.Configured())
}

func TestOIDCConnectionConfigured(t *testing.T) {
	conn := &OIDCConnection{ID: "oidc-1", DisplayName: "Auth0"}
	assert.False(t, conn.Configured())

	conn.ClientID = "client-id"
	conn.Issuer = "https://issuer.example.com"
	conn.AuthorizationURL = "https://issuer.example.com/authorize"
	conn.TokenURL = "https://issuer.example.com/oauth/token"
	assert.False(t, conn.Configured(), "missing jwks url")

	conn.JWKSURL = "https://issuer.example.com/.well-known/jwks.json"
	assert.True(t, conn.Configured())
}

func TestOIDCConnectionSecretNotSerialized(t *testing.T) {
	conn := &OIDCConnection{ID: "oidc-1", ClientID: "cid", ClientSecret: "super-secret"}
	data, err := json.Marshal(conn)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "super-secret")
}

func TestSessionTokenNotSerialized(t *testing.T) {
	s := &Session{Token: "opaque-token", MemberID: "member-1"}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "opaque-token")
}
