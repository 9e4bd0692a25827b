package rbac

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationhq/gatehouse/pkg/identity"
)

func session(roles ...string) *identity.Session {
	return &identity.Session{
		Token:          "tok",
		MemberID:       "member-self",
		OrganizationID: "org-1",
		RoleIDs:        roles,
		IssuedAt:       time.Now(),
		ExpiresAt:      time.Now().Add(time.Hour),
	}
}

func TestIsAuthorizedByRole(t *testing.T) {
	e := NewEvaluator(nil)

	tests := []struct {
		name     string
		roles    []string
		resource Resource
		action   Action
		want     bool
	}{
		{"admin wildcard delete", []string{RoleAdmin}, ResourceMember, ActionDelete, true},
		{"admin wildcard sso update", []string{RoleAdmin}, ResourceSSO, ActionUpdate, true},
		{"editor searches members", []string{RoleEditor}, ResourceMember, ActionSearch, true},
		{"editor invites members", []string{RoleEditor}, ResourceMember, ActionCreate, true},
		{"editor views sso", []string{RoleEditor}, ResourceSSO, ActionGet, true},
		{"editor cannot delete members", []string{RoleEditor}, ResourceMember, ActionDelete, false},
		{"editor cannot create sso", []string{RoleEditor}, ResourceSSO, ActionCreate, false},
		{"plain member cannot search", nil, ResourceMember, ActionSearch, false},
		{"plain member edits own name", nil, ResourceSelf, ActionUpdateInfoName, true},
		{"plain member cannot update org", nil, ResourceOrganization, ActionUpdate, false},
		{"unknown role grants nothing extra", []string{"superuser"}, ResourceMember, ActionDelete, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.IsAuthorized(session(tt.roles...), tt.resource, tt.action))
		})
	}
}

func TestIsAuthorizedDeterministic(t *testing.T) {
	e := NewEvaluator(nil)
	s := session(RoleEditor)

	first := e.IsAuthorized(s, ResourceMember, ActionSearch)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, e.IsAuthorized(s, ResourceMember, ActionSearch))
	}
}

func TestNilSessionNeverAuthorized(t *testing.T) {
	e := NewEvaluator(nil)
	assert.False(t, e.IsAuthorized(nil, ResourceMember, ActionSearch))
	assert.False(t, e.IsAuthorizedForMember(nil, ActionGet, "member-self"))
}

func TestSelfExceptions(t *testing.T) {
	e := NewEvaluator(nil)

	t.Run("member always views self", func(t *testing.T) {
		s := session() // no explicit roles
		assert.True(t, e.IsAuthorizedForMember(s, ActionSearch, "member-self"))
		assert.True(t, e.IsAuthorizedForMember(s, ActionGet, "member-self"))
		assert.False(t, e.IsAuthorizedForMember(s, ActionGet, "member-other"))
	})

	t.Run("member edits own name without member grant", func(t *testing.T) {
		s := session()
		assert.True(t, e.IsAuthorizedForMember(s, ActionUpdateInfoName, "member-self"))
		assert.False(t, e.IsAuthorizedForMember(s, ActionUpdateInfoName, "member-other"))
	})

	t.Run("self delete denied regardless of roles", func(t *testing.T) {
		admin := session(RoleAdmin)
		assert.False(t, e.IsAuthorizedForMember(admin, ActionDelete, "member-self"))
		assert.True(t, e.IsAuthorizedForMember(admin, ActionDelete, "member-other"))
	})
}

func TestParsePolicyOverride(t *testing.T) {
	data := []byte(`
roles:
  editor:
    - resource: member
      action: search
  auditor:
    - resource: member
      action: search
    - resource: sso
      action: get
`)
	policy, err := ParsePolicy(data)
	require.NoError(t, err)

	e := NewEvaluator(policy)

	// editor was narrowed to search only
	assert.True(t, e.IsAuthorized(session(RoleEditor), ResourceMember, ActionSearch))
	assert.False(t, e.IsAuthorized(session(RoleEditor), ResourceMember, ActionCreate))

	// custom role from the file
	assert.True(t, e.IsAuthorized(session("auditor"), ResourceSSO, ActionGet))

	// unnamed built-in roles keep defaults
	assert.True(t, e.IsAuthorized(session(RoleAdmin), ResourceSSO, ActionCreate))
}

func TestParsePolicyRejectsEmpty(t *testing.T) {
	_, err := ParsePolicy([]byte("roles: {}"))
	assert.Error(t, err)

	_, err = ParsePolicy([]byte("roles:\n  broken:\n    - resource: member\n      action: \"\""))
	assert.Error(t, err)
}

func TestSetPolicySwapsAtomically(t *testing.T) {
	e := NewEvaluator(nil)
	s := session(RoleEditor)
	require.True(t, e.IsAuthorized(s, ResourceMember, ActionCreate))

	policy, err := ParsePolicy([]byte("roles:\n  editor:\n    - resource: member\n      action: search"))
	require.NoError(t, err)
	e.SetPolicy(policy)

	assert.False(t, e.IsAuthorized(s, ResourceMember, ActionCreate))
	assert.True(t, e.IsAuthorized(s, ResourceMember, ActionSearch))
}
