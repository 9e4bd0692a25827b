// Package audit records security-relevant events: logins, logouts,
// organization switches, member and SSO connection mutations, and denied
// authorization attempts.
//
// Events flow through the Logger interface. The file logger keeps a
// durable JSONL trail with size-based rotation; the logrus logger folds
// events into the application log stream; MultiLogger combines them.
package audit
