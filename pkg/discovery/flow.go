package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/stationhq/gatehouse/pkg/identity"
	"github.com/stationhq/gatehouse/pkg/session"
	"github.com/stationhq/gatehouse/pkg/upstream"
	"github.com/stationhq/gatehouse/pkg/validation"
)

const (
	guardPrefix = "gatehouse:discovery:used:"

	// defaultGuardTTL outlives any intermediate credential, so a consumed
	// credential stays burned until the upstream itself would reject it
	defaultGuardTTL = 15 * time.Minute
)

// Flow drives organization discovery: a caller holding an intermediate
// credential lists the organizations it can reach, then trades the
// credential for a session in exactly one of them. An intermediate
// credential is single use; the trade is guarded here so a duplicate
// submission fails fast without a round trip upstream.
type Flow struct {
	upstream  upstream.Client
	sessions  *session.Store
	redis     *redis.Client
	validator *validation.Validator
	guardTTL  time.Duration
	log       *logrus.Logger
}

// NewFlow creates a discovery flow
func NewFlow(up upstream.Client, sessions *session.Store, rdb *redis.Client, log *logrus.Logger) *Flow {
	if log == nil {
		log = logrus.New()
	}
	return &Flow{
		upstream:  up,
		sessions:  sessions,
		redis:     rdb,
		validator: validation.NewValidator(nil),
		guardTTL:  defaultGuardTTL,
		log:       log,
	}
}

// ListOrganizations returns the organizations reachable with an
// intermediate credential, each annotated with the caller's membership
// eligibility. Listing does not consume the credential and may be
// repeated.
func (f *Flow) ListOrganizations(ctx context.Context, intermediateToken string) ([]identity.DiscoveredOrganization, error) {
	orgs, err := f.upstream.ListDiscoveredOrganizations(ctx, intermediateToken)
	if err != nil {
		return nil, fmt.Errorf("list discovered organizations: %w", err)
	}
	return orgs, nil
}

// Exchange trades an intermediate credential for a full session in the
// chosen organization. The credential is consumed: a second exchange with
// the same credential fails with an already-exchanged error regardless of
// the organization chosen.
func (f *Flow) Exchange(ctx context.Context, intermediateToken, orgID string) (*identity.Session, error) {
	release, err := f.reserve(ctx, intermediateToken)
	if err != nil {
		return nil, err
	}

	result, err := f.upstream.ExchangeIntermediate(ctx, intermediateToken, orgID)
	if err != nil {
		release(err)
		return nil, fmt.Errorf("exchange intermediate: %w", err)
	}

	sess, err := f.sessions.EstablishFromResult(ctx, intermediateToken, result)
	if err != nil {
		return nil, err
	}
	f.log.WithFields(logrus.Fields{
		"member_id":       sess.MemberID,
		"organization_id": sess.OrganizationID,
	}).Info("discovery exchange complete")
	return sess, nil
}

// CreateOrganization consumes an intermediate credential to found a new
// organization, returning a session for its founding member.
func (f *Flow) CreateOrganization(ctx context.Context, intermediateToken, name string) (*identity.Session, error) {
	if err := f.validator.DisplayName("organization_name", name); err != nil {
		return nil, err
	}

	release, err := f.reserve(ctx, intermediateToken)
	if err != nil {
		return nil, err
	}

	result, err := f.upstream.CreateOrganization(ctx, intermediateToken, name)
	if err != nil {
		release(err)
		return nil, fmt.Errorf("create organization: %w", err)
	}

	sess, err := f.sessions.EstablishFromResult(ctx, intermediateToken, result)
	if err != nil {
		return nil, err
	}
	f.log.WithFields(logrus.Fields{
		"member_id":       sess.MemberID,
		"organization_id": sess.OrganizationID,
	}).Info("organization created via discovery")
	return sess, nil
}

// Switch moves an already-authenticated caller into another organization
// it belongs to. The current session is exchanged, not stacked: the old
// session is invalidated once the new one is live.
func (f *Flow) Switch(ctx context.Context, sessionToken, targetOrgID string) (*identity.Session, error) {
	return f.sessions.Exchange(ctx, sessionToken, targetOrgID)
}

// reserve burns the intermediate credential locally before the upstream
// round trip. The returned release puts the reservation back when the
// upstream rejects the credential for a reason other than reuse, so a
// transient failure does not strand the caller.
func (f *Flow) reserve(ctx context.Context, intermediateToken string) (func(error), error) {
	key := guardKey(intermediateToken)
	ok, err := f.redis.SetNX(ctx, key, "1", f.guardTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve intermediate credential: %w", err)
	}
	if !ok {
		return nil, identity.NewAuthError(identity.AuthErrorAlreadyExchanged,
			errors.New("intermediate credential already used"))
	}

	release := func(cause error) {
		if identity.AuthErrorOfKind(cause, identity.AuthErrorAlreadyExchanged) {
			return
		}
		if err := f.redis.Del(context.Background(), key).Err(); err != nil {
			f.log.WithError(err).Warn("failed to release intermediate credential guard")
		}
	}
	return release, nil
}

func guardKey(intermediateToken string) string {
	sum := sha256.Sum256([]byte(intermediateToken))
	return guardPrefix + hex.EncodeToString(sum[:])
}
