// Package authevent defines authentication lifecycle events and a
// named-subscriber bus that fans them out synchronously.
package authevent

// Type tags a single auth lifecycle notification.
type Type string

// Auth event types emitted by the session coordinator.
const (
	SessionRefreshed    Type = "SESSION_REFRESHED"
	SessionExpiringSoon Type = "SESSION_EXPIRING_SOON"
	SessionExpired      Type = "SESSION_EXPIRED"
	TokenRefreshed      Type = "TOKEN_REFRESHED"
	SignedIn            Type = "SIGNED_IN"
	SignedOut           Type = "SIGNED_OUT"
	UserUpdated         Type = "USER_UPDATED"
	UserDeleted         Type = "USER_DELETED"
	AuthStateChanged    Type = "AUTH_STATE_CHANGED"
)

// Payload carries opaque event data. Events are ephemeral; payloads are not
// retained by the bus.
type Payload map[string]any

// Handler receives an event and its payload. Handlers run synchronously on
// the emitter's goroutine.
type Handler func(evt Type, data Payload)
