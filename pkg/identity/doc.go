// Package identity defines the core entities of the session/authorization
// façade (members, organizations, SSO connections, sessions, discovered
// organizations) and the shared error taxonomy used across package
// boundaries.
//
// Entities here are cached copies of records owned by the remote identity
// service; the façade never owns their persistence. Ids are immutable once
// created and member status transitions are monotonic.
package identity
