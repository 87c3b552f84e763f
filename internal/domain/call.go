package domain

import (
	"strconv"
	"time"
)

type CallID int64

func (id CallID) Valid() bool    { return id > 0 }
func (id CallID) String() string { return strconv.FormatInt(int64(id), 10) }

func (id *CallID) UnmarshalJSON(b []byte) error {
	v, err := parseID(b)
	if err != nil {
		return err
	}
	*id = CallID(v)
	return nil
}

type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

func (k CallKind) Valid() bool { return k == CallAudio || k == CallVideo }

type CallStatus string

const (
	CallRinging  CallStatus = "ringing"
	CallAccepted CallStatus = "accepted"
	CallRejected CallStatus = "rejected"
	CallEnded    CallStatus = "ended"
)

func (s CallStatus) Terminal() bool { return s == CallRejected || s == CallEnded }

// CanTransition reports whether a call may move from one status to another.
// rejected and ended have no outgoing edges.
func CanTransition(from, to CallStatus) bool {
	switch from {
	case CallRinging:
		return to == CallAccepted || to == CallRejected || to == CallEnded
	case CallAccepted:
		return to == CallEnded
	}
	return false
}

type EndReason string

const (
	EndHangup     EndReason = "hangup"
	EndRejected   EndReason = "rejected"
	EndDisconnect EndReason = "disconnect"
	EndTimeout    EndReason = "timeout"
)

// Call is the tracked state of one signaling exchange between two users.
// CallerConn and CalleeConn hold the connection ids that issued start and
// accept; empty when the action came over HTTP.
type Call struct {
	ID         CallID     `json:"callId"`
	CallerID   UserID     `json:"callerId"`
	CalleeID   UserID     `json:"calleeId"`
	Kind       CallKind   `json:"kind"`
	Status     CallStatus `json:"status"`
	EndReason  EndReason  `json:"endReason,omitempty"`
	EndedBy    UserID     `json:"endedBy,omitempty"`
	CallerConn string     `json:"-"`
	CalleeConn string     `json:"-"`
	CreatedAt  time.Time  `json:"createdAt"`
	AcceptedAt time.Time  `json:"acceptedAt,omitzero"`
	EndedAt    time.Time  `json:"endedAt,omitzero"`
}

func (c *Call) Involves(u UserID) bool { return c.CallerID == u || c.CalleeID == u }

// Peer returns the other party of the call, zero if u is not a party.
func (c *Call) Peer(u UserID) UserID {
	switch u {
	case c.CallerID:
		return c.CalleeID
	case c.CalleeID:
		return c.CallerID
	}
	return 0
}

// ConnOf returns the connection bound to u for this call.
func (c *Call) ConnOf(u UserID) string {
	switch u {
	case c.CallerID:
		return c.CallerConn
	case c.CalleeID:
		return c.CalleeConn
	}
	return ""
}
