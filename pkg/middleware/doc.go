// Package middleware provides HTTP middleware for session resolution,
// organization scoping, rate limiting and duplicate-submission guarding.
//
// The usual stack for an organization-scoped route is:
//
//	session resolution -> org context -> mutation guard -> handler
//
// Credential endpoints (authenticate, discovery) sit behind the
// Redis-backed distributed rate limiter instead of the session stack.
package middleware
