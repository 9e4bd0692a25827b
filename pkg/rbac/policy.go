package rbac

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Resource identifies a protected resource type
type Resource string

const (
	ResourceMember       Resource = "member"
	ResourceSelf         Resource = "self"
	ResourceSSO          Resource = "sso"
	ResourceOrganization Resource = "organization"
)

// Action identifies an operation on a resource
type Action string

const (
	ActionSearch         Action = "search"
	ActionGet            Action = "get"
	ActionCreate         Action = "create"
	ActionUpdate         Action = "update"
	ActionDelete         Action = "delete"
	ActionUpdateInfoName Action = "update.info.name"
)

// ActionAll grants every action on a resource
const ActionAll Action = "*"

// ResourceAll grants every resource
const ResourceAll Resource = "*"

// Built-in role ids. Every member implicitly holds RoleMember; the other
// roles are explicit assignments.
const (
	RoleMember = "member"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// AssignableRoles are the roles an invite or role change may grant.
// RoleMember is the implicit default and is not assigned explicitly.
var AssignableRoles = []string{RoleEditor, RoleAdmin}

// Grant is one permitted (resource, action) pair
type Grant struct {
	Resource Resource `yaml:"resource" json:"resource"`
	Action   Action   `yaml:"action" json:"action"`
}

func (g Grant) String() string {
	return string(g.Resource) + ":" + string(g.Action)
}

// matches reports whether the grant covers the requested pair, honoring
// wildcards on either component.
func (g Grant) matches(resource Resource, action Action) bool {
	if g.Resource != ResourceAll && g.Resource != resource {
		return false
	}
	return g.Action == ActionAll || g.Action == action
}

// Policy is a static role -> grants table. A Policy value is immutable
// once built; reloads swap in a fresh snapshot.
type Policy struct {
	Roles map[string][]Grant `yaml:"roles"`
}

// DefaultPolicy returns the compiled-in policy table mirroring the
// dashboard's capability gates: admins can do everything, editors manage
// the roster and view SSO config, and plain members can only act on
// themselves.
func DefaultPolicy() *Policy {
	return &Policy{
		Roles: map[string][]Grant{
			RoleMember: {
				{Resource: ResourceSelf, Action: ActionUpdateInfoName},
			},
			RoleEditor: {
				{Resource: ResourceSelf, Action: ActionUpdateInfoName},
				{Resource: ResourceMember, Action: ActionSearch},
				{Resource: ResourceMember, Action: ActionCreate},
				{Resource: ResourceMember, Action: ActionUpdateInfoName},
				{Resource: ResourceSSO, Action: ActionGet},
			},
			RoleAdmin: {
				{Resource: ResourceAll, Action: ActionAll},
			},
		},
	}
}

// LoadPolicyFile reads a YAML policy table from disk. The file fully
// replaces the default table for the roles it names; unnamed built-in
// roles keep their default grants.
func LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses a YAML policy table
func ParsePolicy(data []byte) (*Policy, error) {
	var loaded Policy
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if len(loaded.Roles) == 0 {
		return nil, fmt.Errorf("policy file defines no roles")
	}

	policy := DefaultPolicy()
	for role, grants := range loaded.Roles {
		for _, g := range grants {
			if g.Resource == "" || g.Action == "" {
				return nil, fmt.Errorf("role %q has a grant with empty resource or action", role)
			}
		}
		policy.Roles[role] = grants
	}
	return policy, nil
}
