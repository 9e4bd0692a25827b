// Package session implements the façade's session store: opaque bearer
// tokens mapped to authenticated principals (member, organization, granted
// roles, expiry) in Redis, with TTL-enforced expiry. Establishing,
// exchanging and revoking sessions delegates credential verification to
// the upstream identity service; this package never validates credentials
// itself.
package session
