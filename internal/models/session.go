package models

import "time"

// Session is the peer-issued token authorizing calls against an AppVision
// server, paired with the address it was issued by. Exactly one logical
// session is current per deployment; it is shared between processes through
// the durable session record, never through in-memory ownership.
type Session struct {
	SessionID   string    `json:"sessionId"`
	PeerAddress string    `json:"peerAddress"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// AuthResult classifies the free-text body of a Login response. The peer
// signals failures as sentinel substrings inside an otherwise unstructured
// body; a body with no recognized sentinel means the login succeeded.
type AuthResult int

const (
	AuthSuccess AuthResult = iota
	AuthUnauthorized
	AuthTooManyClients
	AuthPasswordChangeRequired
	AuthInternalServerError
)

// Message returns the human-readable text reported to callers.
func (r AuthResult) Message() string {
	switch r {
	case AuthSuccess:
		return "Connection successful"
	case AuthUnauthorized:
		return "Bad login or password"
	case AuthTooManyClients:
		return "Too many clients connected to the server"
	case AuthPasswordChangeRequired:
		return "Password must be changed before connecting"
	case AuthInternalServerError:
		return "Internal server error on the supervision server"
	default:
		return "Unknown authentication result"
	}
}

// OK reports whether the result allows the session to be used.
func (r AuthResult) OK() bool {
	return r == AuthSuccess
}
