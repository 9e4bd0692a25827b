package directory

import (
	"context"
	"fmt"
	"sort"

	"github.com/stationhq/gatehouse/pkg/identity"
	"github.com/stationhq/gatehouse/pkg/rbac"
	"github.com/stationhq/gatehouse/pkg/upstream"
)

// loadMembers returns the cached roster, fetching on miss. Callers without
// roster-wide search permission never reach this; they go through the
// self-only path instead.
func (d *OrgDirectory) loadMembers(ctx context.Context) ([]identity.Member, error) {
	sc := d.service.scope(d.session.Token, d.session.OrganizationID)

	sc.mu.RLock()
	cached := sc.members
	sc.mu.RUnlock()
	if cached != nil {
		d.service.recordHit(collectionMembers)
		return append([]identity.Member(nil), cached...), nil
	}
	d.service.recordMiss(collectionMembers)

	key := scopeKey(d.session.Token, d.session.OrganizationID) + "|" + collectionMembers
	val, err := d.service.fetch(ctx, key, func() (interface{}, error) {
		return d.refreshMembers(context.Background(), sc)
	})
	if err != nil {
		return nil, err
	}
	return append([]identity.Member(nil), val.([]identity.Member)...), nil
}

// refreshMembers refetches the roster and commits it to the scope cache
func (d *OrgDirectory) refreshMembers(ctx context.Context, sc *scopeCache) ([]identity.Member, error) {
	members, err := d.service.upstream.SearchMembers(ctx, d.session.OrganizationID, upstream.MemberFilter{})
	if err != nil {
		return nil, fmt.Errorf("refresh members: %w", err)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].CreatedAt.Before(members[j].CreatedAt) })
	sc.mu.Lock()
	sc.members = members
	sc.mu.Unlock()
	return members, nil
}

// invalidateAndRefreshMembers drops the roster cache and synchronously
// refetches it. Runs after every member mutation, before the mutation
// returns, so callers never observe stale post-mutation state.
func (d *OrgDirectory) invalidateAndRefreshMembers(ctx context.Context) error {
	sc := d.service.scope(d.session.Token, d.session.OrganizationID)
	sc.mu.Lock()
	sc.members = nil
	sc.mu.Unlock()
	if !d.service.evaluator.IsAuthorized(d.session, rbac.ResourceMember, rbac.ActionSearch) {
		// self-only callers have nothing cached to refresh
		return nil
	}
	_, err := d.refreshMembers(ctx, sc)
	return err
}

// SearchMembers lists the organization's members, narrowed by the filter.
// A caller without roster-wide search permission falls back to self-only
// visibility rather than failing.
func (d *OrgDirectory) SearchMembers(ctx context.Context, filter upstream.MemberFilter) ([]identity.Member, error) {
	if d.session == nil {
		return nil, identity.ErrNoSession
	}

	if !d.service.evaluator.IsAuthorized(d.session, rbac.ResourceMember, rbac.ActionSearch) {
		return d.selfOnly(ctx, filter)
	}

	members, err := d.loadMembers(ctx)
	if err != nil {
		return nil, err
	}
	return filterMembers(members, filter), nil
}

// selfOnly resolves the acting member directly, honoring any id narrowing
func (d *OrgDirectory) selfOnly(ctx context.Context, filter upstream.MemberFilter) ([]identity.Member, error) {
	if len(filter.MemberIDs) > 0 && !containsString(filter.MemberIDs, d.session.MemberID) {
		return nil, nil
	}
	members, err := d.service.upstream.SearchMembers(ctx, d.session.OrganizationID, upstream.MemberFilter{
		MemberIDs: []string{d.session.MemberID},
	})
	if err != nil {
		return nil, fmt.Errorf("search self: %w", err)
	}
	return filterMembers(members, upstream.MemberFilter{Statuses: filter.Statuses}), nil
}

// GetMember resolves one member by id. Members outside the caller's
// visibility are reported as not found, not as permission errors.
func (d *OrgDirectory) GetMember(ctx context.Context, memberID string) (*identity.Member, error) {
	if d.session == nil {
		return nil, identity.ErrNoSession
	}
	if !d.service.evaluator.IsAuthorizedForMember(d.session, rbac.ActionGet, memberID) &&
		!d.service.evaluator.IsAuthorized(d.session, rbac.ResourceMember, rbac.ActionSearch) {
		return nil, fmt.Errorf("get member %s: %w", memberID, identity.ErrNotFound)
	}

	members, err := d.SearchMembers(ctx, upstream.MemberFilter{MemberIDs: []string{memberID}})
	if err != nil {
		return nil, err
	}
	for i := range members {
		if members[i].ID == memberID {
			return &members[i], nil
		}
	}
	return nil, fmt.Errorf("get member %s: %w", memberID, identity.ErrNotFound)
}

// InviteMember sends an email invite creating a pending member with the
// given role. An empty roleID grants only the implicit member role.
func (d *OrgDirectory) InviteMember(ctx context.Context, email, roleID string) (*identity.Member, error) {
	if d.session == nil {
		return nil, identity.ErrNoSession
	}
	if !d.service.evaluator.IsAuthorized(d.session, rbac.ResourceMember, rbac.ActionCreate) {
		return nil, fmt.Errorf("invite member: %w", identity.ErrPermissionDenied)
	}

	org, err := d.Organization(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.service.validator.EmailInDomains("email_address", email, org.AllowedEmailDomains); err != nil {
		return nil, err
	}
	if err := d.service.validator.RoleID("role", roleID, rbac.AssignableRoles); err != nil {
		return nil, err
	}

	var roles []string
	if roleID != "" {
		roles = []string{roleID}
	}
	member, err := d.service.upstream.InviteMember(ctx, d.session.OrganizationID, email, roles)
	if err != nil {
		return nil, fmt.Errorf("invite member: %w", err)
	}

	if err := d.invalidateAndRefreshMembers(ctx); err != nil {
		return nil, err
	}

	d.service.log.WithFields(map[string]interface{}{
		"organization_id": d.session.OrganizationID,
		"member_id":       member.ID,
	}).Info("member invited")
	return member, nil
}

// UpdateMemberName changes a member's display name. Editing another member
// requires the member-level grant; editing yourself goes through the
// self grant.
func (d *OrgDirectory) UpdateMemberName(ctx context.Context, memberID, name string) (*identity.Member, error) {
	if d.session == nil {
		return nil, identity.ErrNoSession
	}
	if !d.service.evaluator.IsAuthorizedForMember(d.session, rbac.ActionUpdateInfoName, memberID) {
		return nil, fmt.Errorf("update member: %w", identity.ErrPermissionDenied)
	}
	if err := d.service.validator.DisplayName("name", name); err != nil {
		return nil, err
	}

	member, err := d.service.upstream.UpdateMember(ctx, d.session.OrganizationID, memberID, upstream.MemberPatch{Name: &name})
	if err != nil {
		return nil, fmt.Errorf("update member: %w", err)
	}

	if err := d.invalidateAndRefreshMembers(ctx); err != nil {
		return nil, err
	}
	return member, nil
}

// DeleteMember removes a member from the organization. Self-deletion is
// rejected at this boundary regardless of granted roles, independent of
// the evaluator's verdict.
func (d *OrgDirectory) DeleteMember(ctx context.Context, memberID string) error {
	if d.session == nil {
		return identity.ErrNoSession
	}
	if memberID == d.session.MemberID {
		return fmt.Errorf("delete member: %w", &identity.ConflictError{Reason: "members cannot delete themselves"})
	}
	if !d.service.evaluator.IsAuthorized(d.session, rbac.ResourceMember, rbac.ActionDelete) {
		return fmt.Errorf("delete member: %w", identity.ErrPermissionDenied)
	}

	if err := d.service.upstream.DeleteMember(ctx, d.session.OrganizationID, memberID); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}

	if err := d.invalidateAndRefreshMembers(ctx); err != nil {
		return err
	}

	d.service.log.WithFields(map[string]interface{}{
		"organization_id": d.session.OrganizationID,
		"member_id":       memberID,
	}).Info("member deleted")
	return nil
}

func filterMembers(members []identity.Member, filter upstream.MemberFilter) []identity.Member {
	if len(filter.MemberIDs) == 0 && len(filter.Statuses) == 0 {
		return members
	}
	var out []identity.Member
	for _, m := range members {
		if len(filter.MemberIDs) > 0 && !containsString(filter.MemberIDs, m.ID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, m.Status) {
			continue
		}
		out = append(out, m)
	}
	return out
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
