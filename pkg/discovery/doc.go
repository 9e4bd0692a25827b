// Package discovery implements the cross-organization sign-in flow: an
// intermediate credential is listed against the organizations it can
// reach, then exchanged exactly once for a session in one of them, or
// consumed to found a new organization.
package discovery
