package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stationhq/gatehouse/pkg/identity"
	"github.com/stationhq/gatehouse/pkg/upstream"
)

const keyPrefix = "gatehouse:session:"

// InvalidationHook is notified when a session ends (revocation or
// exchange) so org-scoped caches tied to it can be dropped.
type InvalidationHook func(sessionToken, orgID string)

// Store holds authenticated sessions in Redis for the life of a browser
// session. The façade token is an opaque uuid minted here; the upstream
// session token is kept server-side only.
type Store struct {
	redis    *redis.Client
	upstream upstream.Client
	lifetime time.Duration
	log      *logrus.Logger
	hooks    []InvalidationHook
}

// storedSession is the Redis representation of a session
type storedSession struct {
	UpstreamToken  string    `json:"upstream_token"`
	MemberID       string    `json:"member_id"`
	OrganizationID string    `json:"organization_id"`
	RoleIDs        []string  `json:"role_ids"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// NewStore creates a session store. lifetime bounds every session; it is
// also the Redis TTL, so expired sessions vanish without a sweeper.
func NewStore(rdb *redis.Client, up upstream.Client, lifetime time.Duration, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	return &Store{
		redis:    rdb,
		upstream: up,
		lifetime: lifetime,
		log:      log,
	}
}

// OnInvalidate registers a hook fired when a session is revoked or
// exchanged away from its organization. Hooks must be registered before
// the store serves traffic; registration is not synchronized.
func (s *Store) OnInvalidate(hook InvalidationHook) {
	s.hooks = append(s.hooks, hook)
}

func (s *Store) fireHooks(token, orgID string) {
	for _, hook := range s.hooks {
		hook(token, orgID)
	}
}

// Establish exchanges a callback credential for a new session. An invalid
// or expired credential yields an AuthError and no session state is
// written: there is never a partial session.
func (s *Store) Establish(ctx context.Context, cred upstream.Credential) (*identity.Session, error) {
	result, err := s.upstream.Authenticate(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("establish session: %w", err)
	}
	return s.commit(ctx, cred.Token, result)
}

// EstablishFromResult creates a session from an authentication result the
// caller already holds, e.g. a discovery exchange.
func (s *Store) EstablishFromResult(ctx context.Context, upstreamToken string, result *upstream.AuthResult) (*identity.Session, error) {
	return s.commit(ctx, upstreamToken, result)
}

func (s *Store) commit(ctx context.Context, upstreamToken string, result *upstream.AuthResult) (*identity.Session, error) {
	now := time.Now()
	stored := storedSession{
		UpstreamToken:  upstreamToken,
		MemberID:       result.Member.ID,
		OrganizationID: result.Organization.ID,
		RoleIDs:        append([]string(nil), result.RoleIDs...),
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.lifetime),
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}

	token := uuid.NewString()
	if err := s.redis.Set(ctx, keyPrefix+token, data, s.lifetime).Err(); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"member_id":       stored.MemberID,
		"organization_id": stored.OrganizationID,
	}).Info("session established")

	return stored.toSession(token), nil
}

func (st *storedSession) toSession(token string) *identity.Session {
	return &identity.Session{
		Token:          token,
		MemberID:       st.MemberID,
		OrganizationID: st.OrganizationID,
		RoleIDs:        append([]string(nil), st.RoleIDs...),
		IssuedAt:       st.IssuedAt,
		ExpiresAt:      st.ExpiresAt,
	}
}

func (s *Store) load(ctx context.Context, token string) (*storedSession, error) {
	data, err := s.redis.Get(ctx, keyPrefix+token).Bytes()
	if err == redis.Nil {
		return nil, identity.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	// Redis TTL already bounds the key; the timestamp check covers clock
	// skew between writers.
	if !time.Now().Before(stored.ExpiresAt) {
		_ = s.redis.Del(ctx, keyPrefix+token).Err()
		return nil, identity.ErrNoSession
	}
	return &stored, nil
}

// Current returns the session for a façade token, or ErrNoSession when the
// token is unknown or the session has expired. Expired sessions must be
// explicitly re-established; they are never silently extended.
func (s *Store) Current(ctx context.Context, token string) (*identity.Session, error) {
	if token == "" {
		return nil, identity.ErrNoSession
	}
	stored, err := s.load(ctx, token)
	if err != nil {
		return nil, err
	}
	return stored.toSession(token), nil
}

// Exchange swaps an existing session into the target organization,
// anchored on the held session's long-lived identity. The prior session is
// destroyed and its org-scoped caches invalidated; the new session gets a
// fresh token and full lifetime.
func (s *Store) Exchange(ctx context.Context, token, targetOrgID string) (*identity.Session, error) {
	stored, err := s.load(ctx, token)
	if err != nil {
		return nil, err
	}

	result, err := s.upstream.ExchangeSession(ctx, stored.UpstreamToken, targetOrgID)
	if err != nil {
		return nil, fmt.Errorf("exchange session: %w", err)
	}

	next, err := s.commit(ctx, stored.UpstreamToken, result)
	if err != nil {
		return nil, err
	}

	if err := s.redis.Del(ctx, keyPrefix+token).Err(); err != nil {
		s.log.WithError(err).Warn("failed to delete exchanged session")
	}
	s.fireHooks(token, stored.OrganizationID)

	return next, nil
}

// Revoke destroys a session locally and upstream and clears its org-scoped
// caches. Revoking an unknown token is a no-op.
func (s *Store) Revoke(ctx context.Context, token string) error {
	stored, err := s.load(ctx, token)
	if errors.Is(err, identity.ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.redis.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.fireHooks(token, stored.OrganizationID)

	if err := s.upstream.RevokeSession(ctx, stored.UpstreamToken); err != nil {
		// the local session is gone either way
		s.log.WithError(err).Warn("upstream session revocation failed")
	}

	s.log.WithFields(logrus.Fields{
		"member_id":       stored.MemberID,
		"organization_id": stored.OrganizationID,
	}).Info("session revoked")
	return nil
}

// UpstreamToken exposes the upstream session token for a façade token.
// Used by the discovery flow when re-entering with a held session.
func (s *Store) UpstreamToken(ctx context.Context, token string) (string, error) {
	stored, err := s.load(ctx, token)
	if err != nil {
		return "", err
	}
	return stored.UpstreamToken, nil
}
