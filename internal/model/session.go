// Package model defines shared types for the gateway.
package model

// SessionUser is the identity recovered from a validated session.
type SessionUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// SessionValidation is the outward result of a session check. User is nil
// whenever Valid is false.
type SessionValidation struct {
	Valid bool         `json:"valid"`
	User  *SessionUser `json:"user"`
}

// InvalidSession is the negative validation result.
func InvalidSession() SessionValidation {
	return SessionValidation{Valid: false, User: nil}
}

// ClientInfo describes the inbound caller for connection tracking.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// ConnectionEvent is the payload sent to the connection tracker.
type ConnectionEvent struct {
	SocketID  string `json:"socketId"`
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
	IPAddress string `json:"ipAddress"`
	UserAgent string `json:"userAgent"`
}
