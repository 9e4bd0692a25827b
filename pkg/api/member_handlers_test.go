package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationhq/gatehouse/pkg/identity"
	"github.com/stationhq/gatehouse/pkg/rbac"
)

func TestSearchMembersRoute(t *testing.T) {
	h := newServerHarness(t)
	token := h.login(t, "cred-editor")

	rec := h.do(t, "GET", "/orgs/acme/members", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp membersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Members, 3)
}

func TestSearchMembersNarrowedByID(t *testing.T) {
	h := newServerHarness(t)
	token := h.login(t, "cred-editor")

	rec := h.do(t, "GET", "/orgs/acme/members?member_ids=plain-1,editor-1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp membersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Members, 2)
}

func TestGetMemberRoute(t *testing.T) {
	h := newServerHarness(t)
	token := h.login(t, "cred-admin")

	rec := h.do(t, "GET", "/orgs/acme/members/editor-1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var member identity.Member
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &member))
	assert.Equal(t, "Erin Editor", member.Name)

	rec = h.do(t, "GET", "/orgs/acme/members/no-such-member", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInviteMemberRoute(t *testing.T) {
	h := newServerHarness(t)
	token := h.login(t, "cred-admin")

	rec := h.do(t, "POST", "/orgs/acme/members", token, inviteMemberRequest{
		Email:  "newcomer@acme.test",
		RoleID: rbac.RoleEditor,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var member identity.Member
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &member))
	assert.Equal(t, identity.MemberStatusPending, member.Status)
	assert.Contains(t, member.RoleIDs, rbac.RoleEditor)

	// The invited member shows in the refreshed roster.
	rec = h.do(t, "GET", "/orgs/acme/members", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp membersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Members, 4)
}

func TestInviteMemberValidation(t *testing.T) {
	h := newServerHarness(t)
	token := h.login(t, "cred-admin")

	rec := h.do(t, "POST", "/orgs/acme/members", token, inviteMemberRequest{
		Email:  "not-an-email",
		RoleID: rbac.RoleEditor,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error   string            `json:"error"`
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "email_address", resp.Details["field"])
}

func TestInviteMemberForbiddenForPlainMember(t *testing.T) {
	h := newServerHarness(t)
	token := h.login(t, "cred-plain")

	rec := h.do(t, "POST", "/orgs/acme/members", token, inviteMemberRequest{
		Email:  "newcomer@acme.test",
		RoleID: rbac.RoleEditor,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateMemberNameRoute(t *testing.T) {
	h := newServerHarness(t)

	t.Run("editor renames another member", func(t *testing.T) {
		token := h.login(t, "cred-editor")
		rec := h.do(t, "PATCH", "/orgs/acme/members/plain-1", token, updateMemberRequest{Name: "Pat Renamed"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var member identity.Member
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &member))
		assert.Equal(t, "Pat Renamed", member.Name)
	})

	t.Run("plain member renames self", func(t *testing.T) {
		token := h.login(t, "cred-plain")
		rec := h.do(t, "PATCH", "/orgs/acme/members/plain-1", token, updateMemberRequest{Name: "Pat Self"})
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})

	t.Run("plain member cannot rename others", func(t *testing.T) {
		token := h.login(t, "cred-plain")
		rec := h.do(t, "PATCH", "/orgs/acme/members/editor-1", token, updateMemberRequest{Name: "Nope"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("too short name", func(t *testing.T) {
		token := h.login(t, "cred-admin")
		rec := h.do(t, "PATCH", "/orgs/acme/members/plain-1", token, updateMemberRequest{Name: "ab"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDeleteMemberRoute(t *testing.T) {
	h := newServerHarness(t)
	token := h.login(t, "cred-admin")

	rec := h.do(t, "DELETE", "/orgs/acme/members/plain-1", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, "GET", "/orgs/acme/members/plain-1", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteSelfConflicts(t *testing.T) {
	h := newServerHarness(t)
	token := h.login(t, "cred-admin")

	rec := h.do(t, "DELETE", "/orgs/acme/members/admin-1", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteMemberForbiddenForEditor(t *testing.T) {
	h := newServerHarness(t)
	token := h.login(t, "cred-editor")

	rec := h.do(t, "DELETE", "/orgs/acme/members/plain-1", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
