package audit

import (
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin       EventType = "auth.login"
	EventTypeAuthLoginFailed EventType = "auth.login_failed"
	EventTypeAuthLogout      EventType = "auth.logout"
	EventTypeAuthOrgSwitch   EventType = "auth.org_switch"

	// Discovery events
	EventTypeDiscoveryExchange  EventType = "discovery.exchange"
	EventTypeDiscoveryOrgCreate EventType = "discovery.org_create"

	// Organization events
	EventTypeOrgUpdate EventType = "organization.update"

	// Member events
	EventTypeMemberInvite EventType = "member.invite"
	EventTypeMemberUpdate EventType = "member.update"
	EventTypeMemberDelete EventType = "member.delete"

	// SSO connection events
	EventTypeSSOConnectionCreate EventType = "sso.connection_create"
	EventTypeSSOConnectionUpdate EventType = "sso.connection_update"
	EventTypeSSOConnectionTest   EventType = "sso.connection_test"

	// Authorization events
	EventTypeAccessDenied EventType = "authz.access_denied"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being acted on
type ResourceType string

const (
	ResourceTypeSession      ResourceType = "session"
	ResourceTypeMember       ResourceType = "member"
	ResourceTypeConnection   ResourceType = "connection"
	ResourceTypeOrganization ResourceType = "organization"
)

// Event represents a single audit log entry
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	MemberID       string `json:"member_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`

	// Resource
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	Message      string            `json:"message,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates an event stamped with the current time
func NewEvent(eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
	}
}

// WithActor sets the acting member and organization
func (e *Event) WithActor(memberID, orgID string) *Event {
	e.MemberID = memberID
	e.OrganizationID = orgID
	return e
}

// WithResource sets the resource acted on
func (e *Event) WithResource(resourceType ResourceType, resourceID string) *Event {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithRequest sets request context
func (e *Event) WithRequest(requestID, ipAddress string) *Event {
	e.RequestID = requestID
	e.IPAddress = ipAddress
	return e
}

// WithMessage sets the human-readable message
func (e *Event) WithMessage(message string) *Event {
	e.Message = message
	return e
}

// WithError records a failure message and flips the status
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Status = EventStatusFailure
		e.ErrorMessage = err.Error()
	}
	return e
}
