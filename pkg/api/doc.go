// Package api exposes the HTTP surface of the service: credential
// authentication, organization discovery, session management, and the
// org-scoped member and SSO connection directory.
package api
