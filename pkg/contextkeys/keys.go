// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import (
	"context"

	"github.com/stationhq/gatehouse/pkg/identity"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// SessionKey contains *identity.Session
	// Set by: middleware.SessionMiddleware (pkg/middleware/auth.go)
	// Required by: all session-scoped endpoints
	SessionKey Key = "session"

	// OrgKey contains *identity.Organization
	// Set by: middleware.OrgContextMiddleware (pkg/middleware/org.go)
	// Required by: organization-scoped endpoints
	OrgKey Key = "organization"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"
)

// WithSession adds the authenticated session to the context
func WithSession(ctx context.Context, sess *identity.Session) context.Context {
	return context.WithValue(ctx, SessionKey, sess)
}

// SessionFrom retrieves the authenticated session from the context, nil
// when the request carried no session
func SessionFrom(ctx context.Context) *identity.Session {
	if sess, ok := ctx.Value(SessionKey).(*identity.Session); ok {
		return sess
	}
	return nil
}

// WithOrg adds the resolved organization to the context
func WithOrg(ctx context.Context, org *identity.Organization) context.Context {
	return context.WithValue(ctx, OrgKey, org)
}

// OrgFrom retrieves the resolved organization from the context
func OrgFrom(ctx context.Context) *identity.Organization {
	if org, ok := ctx.Value(OrgKey).(*identity.Organization); ok {
		return org
	}
	return nil
}

// WithRequestID adds the request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
