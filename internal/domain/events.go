package domain

// Client to hub events.
const (
	EventJoinUser           = "join-user"
	EventJoinGroup          = "join-group"
	EventLeaveGroup         = "leave-group"
	EventSendPrivateMessage = "send-private-message"
	EventSendGroupMessage   = "send-group-message"
	EventStartCall          = "start-call"
	EventAcceptCall         = "accept-call"
	EventRejectCall         = "reject-call"
	EventEndCall            = "end-call"
	EventPing               = "ping"
	EventWhoAmI             = "whoami"
)

// Relayed in both directions with the same name.
const (
	EventWebRTCOffer        = "webrtc-offer"
	EventWebRTCAnswer       = "webrtc-answer"
	EventWebRTCICECandidate = "webrtc-ice-candidate"
	EventCameraStateChanged = "camera-state-changed"
)

// Hub to client notices.
const (
	EventReceivePrivateMessage = "receive-private-message"
	EventReceiveGroupMessage   = "receive-group-message"
	EventMessageSent           = "message-sent"
	EventMessageError          = "message-error"
	EventIncomingCall          = "incoming-call"
	EventCallStarted           = "call-started"
	EventCallAccepted          = "call-accepted"
	EventCallRejected          = "call-rejected"
	EventCallEnded             = "call-ended"
	EventCallError             = "call-error"
	EventPeerDisconnected      = "peer-disconnected"
	EventJoined                = "joined"
	EventLeft                  = "left"
	EventPong                  = "pong"
	EventError                 = "error"
)

// Server originated notices accepted by the notify endpoint.
const (
	EventTaskCreated = "nueva-tarea"
	EventTaskUpdated = "tarea-actualizada"
	EventTaskDeleted = "tarea-eliminada"
)

type PrivateMessage struct {
	Type       string `json:"type"`
	FromUserID UserID `json:"fromUserId"`
	ToUserID   UserID `json:"toUserId"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
	MessageID  string `json:"messageId"`
}

type GroupMessage struct {
	Type       string `json:"type"`
	ChatID     ChatID `json:"chatId"`
	FromUserID UserID `json:"fromUserId"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
	MessageID  string `json:"messageId"`
}

type IncomingCall struct {
	Type       string   `json:"type"`
	CallID     CallID   `json:"callId"`
	FromUserID UserID   `json:"fromUserId"`
	Kind       CallKind `json:"kind"`
	Timestamp  int64    `json:"timestamp"`
}

type CallAcceptedNotice struct {
	Type       string `json:"type"`
	CallID     CallID `json:"callId"`
	AcceptedBy UserID `json:"acceptedBy"`
}

type CallRejectedNotice struct {
	Type       string `json:"type"`
	CallID     CallID `json:"callId"`
	RejectedBy UserID `json:"rejectedBy"`
}

type CallEndedNotice struct {
	Type    string    `json:"type"`
	CallID  CallID    `json:"callId"`
	EndedBy UserID    `json:"endedBy,omitempty"`
	Reason  EndReason `json:"reason"`
}

type PeerDisconnected struct {
	Type   string `json:"type"`
	CallID CallID `json:"callId"`
	UserID UserID `json:"userId"`
}

type MessageSent struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
	Delivered bool   `json:"delivered"`
}

// ErrorNotice is used for both error and message-error replies.
type ErrorNotice struct {
	Type   string `json:"type"`
	Error  string `json:"error"`
	CallID CallID `json:"callId,omitempty"`
}

type CallStarted struct {
	Type     string   `json:"type"`
	CallID   CallID   `json:"callId"`
	ToUserID UserID   `json:"toUserId"`
	Kind     CallKind `json:"kind"`
}

// ChannelNotice answers joined and left.
type ChannelNotice struct {
	Type    string      `json:"type"`
	Channel ChannelName `json:"channel"`
}
