package validation

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/stationhq/gatehouse/pkg/identity"
)

// ValidationConfig defines field validation rules
type ValidationConfig struct {
	// MinDisplayNameLength is the minimum length for connection and member display names
	MinDisplayNameLength int
	// MaxDisplayNameLength bounds display names
	MaxDisplayNameLength int
	// RequireHTTPSEndpoints rejects plain-http IdP endpoint URLs
	RequireHTTPSEndpoints bool
}

// DefaultValidationConfig returns default validation settings
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		MinDisplayNameLength:  3,
		MaxDisplayNameLength:  128,
		RequireHTTPSEndpoints: true,
	}
}

// Validator performs semantic validation on façade inputs
type Validator struct {
	config *ValidationConfig
}

// NewValidator creates a new validator
func NewValidator(config *ValidationConfig) *Validator {
	if config == nil {
		config = DefaultValidationConfig()
	}
	return &Validator{config: config}
}

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	slugRe  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// Email validates an email address shape
func (v *Validator) Email(field, value string) error {
	if value == "" {
		return &identity.ValidationError{Field: field, Reason: "required"}
	}
	if !emailRe.MatchString(value) {
		return &identity.ValidationError{Field: field, Reason: "malformed email address"}
	}
	return nil
}

// EmailInDomains validates an email address against an organization's
// allowed email domains. An empty domain list allows any domain.
func (v *Validator) EmailInDomains(field, value string, domains []string) error {
	if err := v.Email(field, value); err != nil {
		return err
	}
	if len(domains) == 0 {
		return nil
	}
	at := strings.LastIndex(value, "@")
	domain := strings.ToLower(value[at+1:])
	for _, d := range domains {
		if strings.EqualFold(d, domain) {
			return nil
		}
	}
	return &identity.ValidationError{Field: field, Reason: "email domain not allowed for this organization"}
}

// DisplayName validates a display name against configured length bounds
func (v *Validator) DisplayName(field, value string) error {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) < v.config.MinDisplayNameLength {
		return &identity.ValidationError{Field: field, Reason: "display name too short"}
	}
	if len(trimmed) > v.config.MaxDisplayNameLength {
		return &identity.ValidationError{Field: field, Reason: "display name too long"}
	}
	return nil
}

// Slug validates a URL-safe organization slug
func (v *Validator) Slug(field, value string) error {
	if value == "" {
		return &identity.ValidationError{Field: field, Reason: "required"}
	}
	if !slugRe.MatchString(value) {
		return &identity.ValidationError{Field: field, Reason: "slug must be lowercase alphanumeric with hyphens"}
	}
	return nil
}

// EndpointURL validates an IdP endpoint URL. Empty values are accepted so
// callers can validate optional fields without special-casing.
func (v *Validator) EndpointURL(field, value string) error {
	if value == "" {
		return nil
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		return &identity.ValidationError{Field: field, Reason: "malformed URL"}
	}
	if v.config.RequireHTTPSEndpoints && u.Scheme != "https" {
		return &identity.ValidationError{Field: field, Reason: "endpoint must use https"}
	}
	if !v.config.RequireHTTPSEndpoints && u.Scheme != "https" && u.Scheme != "http" {
		return &identity.ValidationError{Field: field, Reason: "endpoint must use http or https"}
	}
	return nil
}

// RoleID validates an assignable role id. The built-in role set is closed;
// the empty string means "default member role" and is accepted.
func (v *Validator) RoleID(field, value string, assignable []string) error {
	if value == "" {
		return nil
	}
	for _, r := range assignable {
		if r == value {
			return nil
		}
	}
	return &identity.ValidationError{Field: field, Reason: "unknown role"}
}
