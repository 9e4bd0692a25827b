package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationhq/gatehouse/pkg/identity"
	"github.com/stationhq/gatehouse/pkg/session"
	"github.com/stationhq/gatehouse/pkg/upstream"
)

type flowHarness struct {
	flow     *Flow
	fake     *upstream.Fake
	sessions *session.Store
	mr       *miniredis.Miniredis
}

func newFlowHarness(t *testing.T) *flowHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	fake := upstream.NewFake()
	fake.AddOrganization(identity.Organization{ID: "org-1", Name: "Acme", Slug: "acme"})
	fake.AddOrganization(identity.Organization{
		ID: "org-2", Name: "Globex", Slug: "globex",
		AllowedEmailDomains: []string{"example.com"},
	})
	fake.AddMember(identity.Member{
		ID: "member-1", OrganizationID: "org-1", Email: "pat@example.com",
		Status: identity.MemberStatusActive,
	})
	fake.GrantIntermediate("imt-1", []string{"org-1", "org-2"}, "pat@example.com")

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	sessions := session.NewStore(rdb, fake, time.Hour, log)

	return &flowHarness{
		flow:     NewFlow(fake, sessions, rdb, log),
		fake:     fake,
		sessions: sessions,
		mr:       mr,
	}
}

func TestListOrganizationsIsRepeatable(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		orgs, err := h.flow.ListOrganizations(ctx, "imt-1")
		require.NoError(t, err)
		require.Len(t, orgs, 2)
	}

	byID := map[string]identity.DiscoveredOrganization{}
	orgs, err := h.flow.ListOrganizations(ctx, "imt-1")
	require.NoError(t, err)
	for _, o := range orgs {
		byID[o.Organization.ID] = o
	}
	assert.True(t, byID["org-1"].MemberExists)
	assert.Equal(t, "active_member", byID["org-1"].MembershipType)
	assert.False(t, byID["org-2"].MemberExists)
	assert.Equal(t, "eligible_to_join_by_email_domain", byID["org-2"].MembershipType)
}

func TestListOrganizationsUnknownCredential(t *testing.T) {
	h := newFlowHarness(t)

	_, err := h.flow.ListOrganizations(context.Background(), "imt-ghost")
	assert.True(t, identity.AuthErrorOfKind(err, identity.AuthErrorInvalid))
}

func TestExchangeEstablishesSession(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()

	sess, err := h.flow.Exchange(ctx, "imt-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, "member-1", sess.MemberID)
	assert.Equal(t, "org-1", sess.OrganizationID)
	assert.NotEmpty(t, sess.Token)

	// the session is live in the store
	got, err := h.sessions.Current(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.MemberID, got.MemberID)
}

func TestExchangeIsOneShot(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()

	_, err := h.flow.Exchange(ctx, "imt-1", "org-1")
	require.NoError(t, err)
	calls := countCalls(h.fake.CallLog, "ExchangeIntermediate")

	// the second attempt fails on the local guard, even for a different
	// organization, without reaching upstream
	_, err = h.flow.Exchange(ctx, "imt-1", "org-2")
	assert.True(t, identity.AuthErrorOfKind(err, identity.AuthErrorAlreadyExchanged))
	assert.Equal(t, calls, countCalls(h.fake.CallLog, "ExchangeIntermediate"))

	// create is blocked by the same guard
	_, err = h.flow.CreateOrganization(ctx, "imt-1", "Initech")
	assert.True(t, identity.AuthErrorOfKind(err, identity.AuthErrorAlreadyExchanged))
}

func TestExchangeFailureReleasesGuard(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()

	// org-3 is not reachable with this credential; the upstream rejects
	// the exchange and the credential survives for a corrected retry
	_, err := h.flow.Exchange(ctx, "imt-1", "org-3")
	require.Error(t, err)
	assert.True(t, identity.AuthErrorOfKind(err, identity.AuthErrorInvalid))

	sess, err := h.flow.Exchange(ctx, "imt-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", sess.OrganizationID)
}

func TestExchangeJoinByEmailDomain(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()

	// org-2 has no membership for the caller but allows the email domain
	sess, err := h.flow.Exchange(ctx, "imt-1", "org-2")
	require.NoError(t, err)
	assert.Equal(t, "org-2", sess.OrganizationID)
	assert.NotEqual(t, "member-1", sess.MemberID, "a fresh membership is provisioned")
}

func TestCreateOrganization(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()

	sess, err := h.flow.CreateOrganization(ctx, "imt-1", "Initech")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.OrganizationID)
	assert.Contains(t, sess.RoleIDs, "admin", "founding member administers the new organization")

	// the credential is consumed
	_, err = h.flow.Exchange(ctx, "imt-1", "org-1")
	assert.True(t, identity.AuthErrorOfKind(err, identity.AuthErrorAlreadyExchanged))
}

func TestCreateOrganizationValidatesName(t *testing.T) {
	h := newFlowHarness(t)

	_, err := h.flow.CreateOrganization(context.Background(), "imt-1", "ab")
	assert.True(t, identity.IsValidation(err))

	// a rejected name must not burn the credential
	_, err = h.flow.Exchange(context.Background(), "imt-1", "org-1")
	require.NoError(t, err)
}

func TestSwitchOrganization(t *testing.T) {
	h := newFlowHarness(t)
	ctx := context.Background()

	// a member of both orgs
	h.fake.AddMember(identity.Member{
		ID: "member-1b", OrganizationID: "org-2", Email: "pat@example.com",
		Status: identity.MemberStatusActive,
	})

	sess, err := h.flow.Exchange(ctx, "imt-1", "org-1")
	require.NoError(t, err)

	switched, err := h.flow.Switch(ctx, sess.Token, "org-2")
	require.NoError(t, err)
	assert.Equal(t, "org-2", switched.OrganizationID)
	assert.NotEqual(t, sess.Token, switched.Token)

	// the old session died in the exchange
	_, err = h.sessions.Current(ctx, sess.Token)
	assert.ErrorIs(t, err, identity.ErrNoSession)
}

func countCalls(log []string, call string) int {
	n := 0
	for _, c := range log {
		if c == call {
			n++
		}
	}
	return n
}
