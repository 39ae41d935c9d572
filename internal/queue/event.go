// Package queue defines message payloads exchanged over the message broker.
package queue

// AuthEvent is published whenever a session changes state: login, refresh
// or logout. It carries enough for downstream consumers to build an audit
// trail without querying the primary database. The token itself is never
// included, only its jti.
type AuthEvent struct {
	Action     string `json:"action"` // "login" | "refresh" | "logout"
	UserID     uint64 `json:"user_id"`
	Username   string `json:"username"`
	JTI        string `json:"jti,omitempty"`
	ClientIP   string `json:"client_ip,omitempty"`
	OccurredAt string `json:"occurred_at"`
}
