package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationhq/gatehouse/pkg/contextkeys"
	"github.com/stationhq/gatehouse/pkg/identity"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 3,
		WindowDuration:    time.Minute,
		BurstSize:         0,
	})

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("key-a"), "request %d within limit", i)
	}
	assert.False(t, rl.Allow("key-a"))

	// independent keys have independent buckets
	assert.True(t, rl.Allow("key-b"))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
		BurstSize:         0,
	})

	for i := 0; i < 1000; i++ {
		rl.Allow("ip:10.0." + strconv.Itoa(i/250) + "." + strconv.Itoa(i%250))
	}
	rl.Allow("ip:fresh")

	rl.mu.Lock()
	require.Len(t, rl.buckets, 1001)
	for key, b := range rl.buckets {
		if key != "ip:fresh" {
			b.lastUpdate = time.Now().Add(-3 * time.Minute)
		}
	}
	rl.mu.Unlock()

	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.buckets, 1)
	assert.Contains(t, rl.buckets, "ip:fresh")
}

func TestRateLimiterHandler(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Minute,
		BurstSize:         0,
	})
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestDistributedRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rl := NewDistributedRateLimiter(rdb, &RateLimitConfig{
		RequestsPerWindow: 2,
		WindowDuration:    time.Minute,
	}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := rl.Allow(ctx, "cred")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := rl.Allow(ctx, "cred")
	require.NoError(t, err)
	assert.False(t, allowed)

	remaining, err := rl.Remaining(ctx, "cred")
	require.NoError(t, err)
	assert.Zero(t, remaining)

	// the window expires and the quota returns
	mr.FastForward(2 * time.Minute)
	allowed, err = rl.Allow(ctx, "cred")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDistributedRateLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	rl := NewDistributedRateLimiter(rdb, nil, nil)
	allowed, err := rl.Allow(context.Background(), "cred")
	assert.Error(t, err)
	assert.True(t, allowed, "a Redis outage must not lock callers out")
}

func TestMutationGuard(t *testing.T) {
	guard := NewMutationGuard()

	entered := make(chan struct{})
	proceed := make(chan struct{})
	handler := guard.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			close(entered)
			<-proceed
		}
		w.WriteHeader(http.StatusOK)
	}))

	sess := &identity.Session{Token: "tok-1", MemberID: "member-1", OrganizationID: "org-1"}
	mkReq := func(method string) *http.Request {
		req := httptest.NewRequest(method, "/", nil)
		return req.WithContext(contextkeys.WithSession(req.Context(), sess))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		handler.ServeHTTP(httptest.NewRecorder(), mkReq(http.MethodPost))
	}()
	<-entered

	// the second mutation conflicts while the first is in flight
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, mkReq(http.MethodDelete))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// reads are never guarded
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, mkReq(http.MethodGet))
	assert.Equal(t, http.StatusOK, rec.Code)

	close(proceed)
	wg.Wait()

	// the slot frees once the first mutation finishes
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, mkReq(http.MethodDelete))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMutationGuardPerSession(t *testing.T) {
	guard := NewMutationGuard()

	entered := make(chan struct{})
	proceed := make(chan struct{})
	handler := guard.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := contextkeys.SessionFrom(r.Context())
		if sess != nil && sess.Token == "tok-slow" {
			close(entered)
			<-proceed
		}
		w.WriteHeader(http.StatusOK)
	}))

	mkReq := func(token string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		sess := &identity.Session{Token: token, MemberID: "m", OrganizationID: "o"}
		return req.WithContext(contextkeys.WithSession(req.Context(), sess))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		handler.ServeHTTP(httptest.NewRecorder(), mkReq("tok-slow"))
	}()
	<-entered

	// a different session mutates freely
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, mkReq("tok-other"))
	assert.Equal(t, http.StatusOK, rec.Code)

	close(proceed)
	wg.Wait()
}
