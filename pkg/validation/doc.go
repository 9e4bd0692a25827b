// Package validation provides semantic validation for façade inputs:
// email addresses (optionally restricted to an organization's allowed
// domains), display names, organization slugs, role ids and IdP endpoint
// URLs. Failures are reported as identity.ValidationError so callers can
// surface them inline without inspecting message text.
package validation
