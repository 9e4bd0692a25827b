package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationhq/gatehouse/pkg/identity"
	"github.com/stationhq/gatehouse/pkg/rbac"
	"github.com/stationhq/gatehouse/pkg/upstream"
)

func TestSearchMembersFullRoster(t *testing.T) {
	h := newHarness(t)
	dir := h.service.ForSession(h.editorSession)

	members, err := dir.SearchMembers(context.Background(), upstream.MemberFilter{})
	require.NoError(t, err)
	assert.Len(t, members, 3)
}

func TestSearchMembersSelfOnlyFallback(t *testing.T) {
	h := newHarness(t)
	dir := h.service.ForSession(h.memberSession)
	ctx := context.Background()

	members, err := dir.SearchMembers(ctx, upstream.MemberFilter{})
	require.NoError(t, err)
	require.Len(t, members, 1, "no search grant falls back to self-only visibility")
	assert.Equal(t, "member-plain", members[0].ID)

	// narrowing to somebody else yields nothing rather than an error
	others, err := dir.SearchMembers(ctx, upstream.MemberFilter{MemberIDs: []string{"member-admin"}})
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestSearchMembersNarrowByID(t *testing.T) {
	h := newHarness(t)
	dir := h.service.ForSession(h.adminSession)

	members, err := dir.SearchMembers(context.Background(), upstream.MemberFilter{MemberIDs: []string{"member-editor"}})
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "member-editor", members[0].ID)
}

func TestGetMember(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("editor resolves any member", func(t *testing.T) {
		dir := h.service.ForSession(h.editorSession)
		m, err := dir.GetMember(ctx, "member-plain")
		require.NoError(t, err)
		assert.Equal(t, "plain@example.com", m.Email)
	})

	t.Run("plain member resolves self", func(t *testing.T) {
		dir := h.service.ForSession(h.memberSession)
		m, err := dir.GetMember(ctx, "member-plain")
		require.NoError(t, err)
		assert.Equal(t, "member-plain", m.ID)
	})

	t.Run("plain member cannot see others", func(t *testing.T) {
		dir := h.service.ForSession(h.memberSession)
		_, err := dir.GetMember(ctx, "member-admin")
		assert.ErrorIs(t, err, identity.ErrNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		dir := h.service.ForSession(h.adminSession)
		_, err := dir.GetMember(ctx, "member-ghost")
		assert.ErrorIs(t, err, identity.ErrNotFound)
	})
}

func TestInviteMember(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dir := h.service.ForSession(h.adminSession)

	invited, err := dir.InviteMember(ctx, "coworker@example.com", rbac.RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, identity.MemberStatusPending, invited.Status)
	assert.Equal(t, []string{rbac.RoleEditor}, invited.RoleIDs)

	// the refreshed roster includes the pending invite without any
	// further upstream call
	searchCalls := countCalls(h.fake.CallLog, "SearchMembers")
	members, err := dir.SearchMembers(ctx, upstream.MemberFilter{})
	require.NoError(t, err)
	assert.Equal(t, searchCalls, countCalls(h.fake.CallLog, "SearchMembers"), "post-mutation read served from refreshed cache")

	var found *identity.Member
	for i := range members {
		if members[i].Email == "coworker@example.com" {
			found = &members[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, identity.MemberStatusPending, found.Status)
}

func TestInviteMemberValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dir := h.service.ForSession(h.adminSession)

	_, err := dir.InviteMember(ctx, "not-an-email", "")
	assert.True(t, identity.IsValidation(err))

	_, err = dir.InviteMember(ctx, "a@outside.org", "")
	assert.True(t, identity.IsValidation(err), "outside allowed email domains")

	_, err = dir.InviteMember(ctx, "b@example.com", "superuser")
	assert.True(t, identity.IsValidation(err), "unknown role")

	// nothing was sent upstream
	assert.Zero(t, countCalls(h.fake.CallLog, "InviteMember"))
}

func TestInviteMemberPermissionDenied(t *testing.T) {
	h := newHarness(t)
	dir := h.service.ForSession(h.memberSession)

	_, err := dir.InviteMember(context.Background(), "coworker@example.com", "")
	assert.ErrorIs(t, err, identity.ErrPermissionDenied)
	assert.Zero(t, countCalls(h.fake.CallLog, "InviteMember"))
}

func TestDeleteMember(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dir := h.service.ForSession(h.adminSession)

	require.NoError(t, dir.DeleteMember(ctx, "member-plain"))

	members, err := dir.SearchMembers(ctx, upstream.MemberFilter{})
	require.NoError(t, err)
	for _, m := range members {
		assert.NotEqual(t, "member-plain", m.ID, "post-mutation read must not contain the deleted member")
	}
}

func TestDeleteSelfAlwaysConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// even the admin role cannot self-delete; the rule is enforced at
	// the repository boundary before any authorization check
	dir := h.service.ForSession(h.adminSession)
	err := dir.DeleteMember(ctx, "member-admin")
	assert.True(t, identity.IsConflict(err))
	assert.Zero(t, countCalls(h.fake.CallLog, "DeleteMember"))
}

func TestDeleteMemberPermissionDenied(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		session *identity.Session
		target  string
	}{
		{h.editorSession, "member-plain"},
		{h.memberSession, "member-editor"},
	}
	for _, tc := range cases {
		dir := h.service.ForSession(tc.session)
		err := dir.DeleteMember(context.Background(), tc.target)
		assert.ErrorIs(t, err, identity.ErrPermissionDenied)
	}
	assert.Zero(t, countCalls(h.fake.CallLog, "DeleteMember"))
}

func TestUpdateMemberName(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	t.Run("editor renames another member", func(t *testing.T) {
		dir := h.service.ForSession(h.editorSession)
		m, err := dir.UpdateMemberName(ctx, "member-plain", "Plain Person")
		require.NoError(t, err)
		assert.Equal(t, "Plain Person", m.Name)
	})

	t.Run("plain member renames self", func(t *testing.T) {
		dir := h.service.ForSession(h.memberSession)
		m, err := dir.UpdateMemberName(ctx, "member-plain", "Myself")
		require.NoError(t, err)
		assert.Equal(t, "Myself", m.Name)
	})

	t.Run("plain member cannot rename others", func(t *testing.T) {
		dir := h.service.ForSession(h.memberSession)
		_, err := dir.UpdateMemberName(ctx, "member-editor", "Hacked")
		assert.ErrorIs(t, err, identity.ErrPermissionDenied)
	})

	t.Run("name below minimum length", func(t *testing.T) {
		dir := h.service.ForSession(h.editorSession)
		_, err := dir.UpdateMemberName(ctx, "member-plain", "ab")
		assert.True(t, identity.IsValidation(err))
	})
}
