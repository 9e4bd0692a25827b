// Package rbac implements the authorization evaluator: a pure function of
// a session's granted role ids and a static resource/action/role policy
// table. There is no network call and no side effect, so UI-facing
// handlers can evaluate capabilities on every request.
//
// The compiled-in table covers the built-in roles (member, editor, admin)
// and can be overridden from a YAML file, hot-reloaded with fsnotify.
// Self-action exceptions (view self, edit own name, never delete self)
// are applied by IsAuthorizedForMember on top of the table.
package rbac
