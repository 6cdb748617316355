package session

import "time"

// State is the lifecycle stage of the WhatsApp session.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StatePairing         State = "pairing"
	StateReady           State = "ready"
	StateDisconnected    State = "disconnected"
)

func (s State) String() string {
	return string(s)
}

// Info is a point-in-time view of the session for status queries.
type Info struct {
	State State     `json:"state"`
	Ready bool      `json:"ready"`
	QR    string    `json:"qr,omitempty"`
	JID   string    `json:"jid,omitempty"`
	Since time.Time `json:"since"`
}
