package directory

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/stationhq/gatehouse/pkg/identity"
	"github.com/stationhq/gatehouse/pkg/rbac"
	"github.com/stationhq/gatehouse/pkg/upstream"
	"github.com/stationhq/gatehouse/pkg/validation"
)

// collection names used for cache keys and metrics labels
const (
	collectionOrganization = "organization"
	collectionMembers      = "members"
	collectionConnections  = "connections"
)

// maxCachedScopes bounds the number of live session/org cache scopes
const maxCachedScopes = 4096

// Service is the organization/member/connection repository: a
// read-through cache over the upstream identity service, scoped per
// session and organization. Mutations invalidate and synchronously
// refresh the affected collection before returning, so reads issued after
// a mutation completes never observe pre-mutation data.
type Service struct {
	upstream  upstream.Client
	evaluator *rbac.Evaluator
	validator *validation.Validator
	log       *logrus.Logger

	scopes *lru.Cache[string, *scopeCache]
	group  singleflight.Group

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
}

// scopeCache holds one session's cached collections for one organization.
// Scopes are isolated: no cache entry is shared across sessions.
type scopeCache struct {
	mu           sync.RWMutex
	organization *identity.Organization
	members      []identity.Member
	connections  *upstream.ConnectionList
}

// NewService creates a directory service
func NewService(up upstream.Client, evaluator *rbac.Evaluator, validator *validation.Validator, log *logrus.Logger) (*Service, error) {
	if log == nil {
		log = logrus.New()
	}
	if validator == nil {
		validator = validation.NewValidator(nil)
	}
	scopes, err := lru.New[string, *scopeCache](maxCachedScopes)
	if err != nil {
		return nil, fmt.Errorf("create scope cache: %w", err)
	}
	return &Service{
		upstream:  up,
		evaluator: evaluator,
		validator: validator,
		log:       log,
		scopes:    scopes,
	}, nil
}

// WithCacheMetrics wires hit/miss counters labeled by collection
func (s *Service) WithCacheMetrics(hits, misses *prometheus.CounterVec) *Service {
	s.cacheHits = hits
	s.cacheMisses = misses
	return s
}

func (s *Service) recordHit(collection string) {
	if s.cacheHits != nil {
		s.cacheHits.WithLabelValues(collection).Inc()
	}
}

func (s *Service) recordMiss(collection string) {
	if s.cacheMisses != nil {
		s.cacheMisses.WithLabelValues(collection).Inc()
	}
}

func scopeKey(sessionToken, orgID string) string {
	return sessionToken + "|" + orgID
}

func (s *Service) scope(sessionToken, orgID string) *scopeCache {
	key := scopeKey(sessionToken, orgID)
	sc := &scopeCache{}
	if prev, ok, _ := s.scopes.PeekOrAdd(key, sc); ok {
		return prev
	}
	return sc
}

// InvalidateSession drops every cache entry scoped to the given session
// and organization. Registered as a session-store invalidation hook.
func (s *Service) InvalidateSession(sessionToken, orgID string) {
	s.scopes.Remove(scopeKey(sessionToken, orgID))
}

// ForSession returns the repository view for one session. The view is
// cheap to construct; callers build one per request.
func (s *Service) ForSession(session *identity.Session) *OrgDirectory {
	return &OrgDirectory{service: s, session: session}
}

// OrgDirectory is a session's view of its organization's directory. All
// operations enforce authorization against the session's role set before
// touching the upstream service.
type OrgDirectory struct {
	service *Service
	session *identity.Session
}

// fetch runs a collection load through singleflight so concurrent cold
// reads of the same scope collapse to one upstream call. The caller's
// context cancellation abandons the wait without touching cache state.
func (s *Service) fetch(ctx context.Context, key string, load func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := s.group.DoChan(key, load)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	}
}

// Organization returns the session's organization, cached
func (d *OrgDirectory) Organization(ctx context.Context) (*identity.Organization, error) {
	if d.session == nil {
		return nil, identity.ErrNoSession
	}
	sc := d.service.scope(d.session.Token, d.session.OrganizationID)

	sc.mu.RLock()
	cached := sc.organization
	sc.mu.RUnlock()
	if cached != nil {
		d.service.recordHit(collectionOrganization)
		cp := *cached
		return &cp, nil
	}
	d.service.recordMiss(collectionOrganization)

	key := scopeKey(d.session.Token, d.session.OrganizationID) + "|" + collectionOrganization
	val, err := d.service.fetch(ctx, key, func() (interface{}, error) {
		org, err := d.service.upstream.GetOrganization(context.Background(), d.session.OrganizationID)
		if err != nil {
			return nil, err
		}
		sc.mu.Lock()
		sc.organization = org
		sc.mu.Unlock()
		return org, nil
	})
	if err != nil {
		return nil, err
	}
	cp := *(val.(*identity.Organization))
	return &cp, nil
}

// UpdateOrganizationName renames the session's organization and commits
// the updated record to the scope cache. The slug is upstream-owned and
// does not change on rename.
func (d *OrgDirectory) UpdateOrganizationName(ctx context.Context, name string) (*identity.Organization, error) {
	if d.session == nil {
		return nil, identity.ErrNoSession
	}
	if !d.service.evaluator.IsAuthorized(d.session, rbac.ResourceOrganization, rbac.ActionUpdateInfoName) {
		return nil, fmt.Errorf("update organization: %w", identity.ErrPermissionDenied)
	}
	if err := d.service.validator.DisplayName("organization_name", name); err != nil {
		return nil, err
	}

	org, err := d.service.upstream.UpdateOrganization(ctx, d.session.OrganizationID, upstream.OrganizationPatch{Name: &name})
	if err != nil {
		return nil, fmt.Errorf("update organization: %w", err)
	}

	sc := d.service.scope(d.session.Token, d.session.OrganizationID)
	sc.mu.Lock()
	sc.organization = org
	sc.mu.Unlock()

	d.service.log.WithFields(map[string]interface{}{
		"organization_id": d.session.OrganizationID,
	}).Info("organization renamed")
	cp := *org
	return &cp, nil
}
