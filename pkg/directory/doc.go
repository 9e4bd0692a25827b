// Package directory implements the organization/member/SSO-connection
// repository: a read-through cache over the upstream identity service,
// scoped per session and organization.
//
// Invariants enforced at this boundary, independent of the authorization
// evaluator:
//
//   - every mutation invalidates and synchronously refetches the affected
//     collection before returning, so post-mutation reads are never stale;
//   - the acting member can never delete their own member record;
//   - callers without roster-wide search permission get self-only
//     visibility instead of an error.
//
// Connection updates carry the protocol-specific conveniences the
// dashboard relies on: OIDC endpoint auto-discovery from an issuer's
// well-known document and SAML field prefill from IdP metadata XML.
package directory
