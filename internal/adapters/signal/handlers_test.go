package signal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dkeye/Fanhub/internal/app"
	"github.com/dkeye/Fanhub/internal/app/orch"
	"github.com/dkeye/Fanhub/internal/core"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newController(limit int) *SignalWSController {
	hub := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Channels: app.NewChannelManager(),
		Policy:   app.SimplePolicy{},
		Calls:    app.NewCallTracker(app.CallTrackerOptions{}),
	}
	return NewSignalWSController(hub, NewRateLimiter(limit, time.Minute), Options{SendBuffer: 64})
}

// attach registers a connection without a socket; frames stay in send.
func attach(ctl *SignalWSController, sid core.SessionID, claimed domain.UserID) *WsSignalConn {
	conn := &WsSignalConn{send: make(chan core.Frame, 64)}
	ctl.Orch.Connect(sid, core.NewMemberSession(domain.NewMember(claimed, ""), conn), func() {})
	return conn
}

func drain(t *testing.T, c *WsSignalConn) []map[string]any {
	t.Helper()
	out := []map[string]any{}
	for {
		select {
		case f := <-c.send:
			var m map[string]any
			require.NoError(t, json.Unmarshal(f, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

func send(ctl *SignalWSController, sid core.SessionID, c *WsSignalConn, v any) {
	b, _ := json.Marshal(v)
	ctl.handleSignal(sid, c, b)
}

func TestJoinUserAndWhoAmI(t *testing.T) {
	ctl := newController(0)
	c := attach(ctl, "s1", 0)

	send(ctl, "s1", c, map[string]any{"type": "join-user", "userId": "5"})
	got := drain(t, c)
	require.Len(t, got, 1)
	assert.Equal(t, "joined", got[0]["type"])
	assert.Equal(t, "user-5", got[0]["channel"])

	send(ctl, "s1", c, map[string]any{"type": "join-user", "userId": 6})
	got = drain(t, c)
	require.Len(t, got, 1)
	assert.Equal(t, errAlreadyBound, got[0]["error"])

	send(ctl, "s1", c, map[string]any{"type": "join-group", "chatId": 3})
	drain(t, c)
	send(ctl, "s1", c, map[string]any{"type": "whoami"})
	got = drain(t, c)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0]["sessionId"])
	assert.EqualValues(t, 5, got[0]["userId"])
	assert.Equal(t, []any{"chat-3", "user-5"}, got[0]["channels"])
}

func TestJoinUserMustMatchToken(t *testing.T) {
	ctl := newController(0)
	c := attach(ctl, "s1", 5)

	send(ctl, "s1", c, map[string]any{"type": "join-user", "userId": 6})
	got := drain(t, c)
	require.Len(t, got, 1)
	assert.Equal(t, errForbidden, got[0]["error"])
	_, bound := ctl.Orch.Registry.UserOf("s1")
	assert.False(t, bound)
}

func TestPrivateMessageFlow(t *testing.T) {
	ctl := newController(0)
	a := attach(ctl, "a", 0)
	b := attach(ctl, "b", 0)

	send(ctl, "a", a, map[string]any{"type": "send-private-message", "toUserId": 2, "message": "hi"})
	got := drain(t, a)
	require.Len(t, got, 1)
	assert.Equal(t, "message-error", got[0]["type"])
	assert.Equal(t, errNotJoined, got[0]["error"])

	send(ctl, "a", a, map[string]any{"type": "join-user", "userId": 1})
	drain(t, a)

	// recipient offline: the sender still gets an ack.
	send(ctl, "a", a, map[string]any{"type": "send-private-message", "toUserId": 2, "message": "hi", "timestamp": 1700000000000})
	got = drain(t, a)
	require.Len(t, got, 1)
	assert.Equal(t, "message-sent", got[0]["type"])
	assert.Equal(t, false, got[0]["delivered"])
	assert.EqualValues(t, 1700000000000, got[0]["timestamp"])

	send(ctl, "b", b, map[string]any{"type": "join-user", "userId": 2})
	drain(t, b)
	send(ctl, "a", a, map[string]any{"type": "send-private-message", "toUserId": 2, "message": "again"})
	ack := drain(t, a)
	require.Len(t, ack, 1)
	assert.Equal(t, true, ack[0]["delivered"])

	recv := drain(t, b)
	require.Len(t, recv, 1)
	assert.Equal(t, "receive-private-message", recv[0]["type"])
	assert.EqualValues(t, 1, recv[0]["fromUserId"])
	assert.Equal(t, "again", recv[0]["message"])
	assert.Equal(t, ack[0]["messageId"], recv[0]["messageId"])

	send(ctl, "a", a, map[string]any{"type": "send-private-message", "toUserId": 2})
	got = drain(t, a)
	require.Len(t, got, 1)
	assert.Equal(t, errBadPayload, got[0]["error"])
}

func TestCallSignalingOverHandlers(t *testing.T) {
	ctl := newController(0)
	a := attach(ctl, "a", 0)
	b := attach(ctl, "b", 0)
	send(ctl, "a", a, map[string]any{"type": "join-user", "userId": 1})
	send(ctl, "b", b, map[string]any{"type": "join-user", "userId": 2})
	drain(t, a)
	drain(t, b)

	send(ctl, "a", a, map[string]any{"type": "start-call", "toUserId": 2, "kind": "video"})
	started := drain(t, a)
	require.Len(t, started, 1)
	assert.Equal(t, "call-started", started[0]["type"])
	callID := started[0]["callId"]

	incoming := drain(t, b)
	require.Len(t, incoming, 1)
	assert.Equal(t, "incoming-call", incoming[0]["type"])
	assert.Equal(t, "video", incoming[0]["kind"])

	send(ctl, "a", a, map[string]any{"type": "accept-call", "callId": callID})
	got := drain(t, a)
	require.Len(t, got, 1)
	assert.Equal(t, "call-error", got[0]["type"])
	assert.Equal(t, errForbidden, got[0]["error"])

	send(ctl, "b", b, map[string]any{"type": "accept-call", "callId": callID})
	assert.Equal(t, "call-accepted", drain(t, a)[0]["type"])

	send(ctl, "a", a, map[string]any{
		"type": "webrtc-offer", "callId": callID, "toUserId": 2,
		"offer": map[string]any{"type": "offer", "sdp": testSDP},
	})
	relayed := drain(t, b)
	require.Len(t, relayed, 1)
	assert.Equal(t, "webrtc-offer", relayed[0]["type"])
	assert.EqualValues(t, 1, relayed[0]["fromUserId"])
	offer := relayed[0]["offer"].(map[string]any)
	assert.Equal(t, "offer", offer["type"])
	assert.Equal(t, testSDP, offer["sdp"])

	// fromUserId comes from the binding, not from the payload.
	send(ctl, "b", b, map[string]any{
		"type": "camera-state-changed", "callId": callID, "toUserId": 1, "fromUserId": 99, "cameraEnabled": false,
	})
	cam := drain(t, a)
	require.Len(t, cam, 1)
	assert.EqualValues(t, 2, cam[0]["fromUserId"])
	assert.Equal(t, false, cam[0]["cameraEnabled"])

	send(ctl, "b", b, map[string]any{"type": "end-call", "callId": callID})
	assert.Equal(t, "call-ended", drain(t, a)[0]["type"])

	// signaling for a finished call is dropped without a reply.
	send(ctl, "a", a, map[string]any{
		"type": "webrtc-ice-candidate", "callId": callID, "toUserId": 2,
		"candidate": map[string]any{"candidate": "candidate:1 1 udp 1 10.0.0.1 5000 typ host"},
	})
	assert.Empty(t, drain(t, b))
	assert.Empty(t, drain(t, a))
}

func TestGroupMessageSkipsSendingConnection(t *testing.T) {
	ctl := newController(0)
	conns := map[core.SessionID]*WsSignalConn{}
	for i, sid := range []core.SessionID{"a", "b", "c"} {
		conns[sid] = attach(ctl, sid, 0)
		send(ctl, sid, conns[sid], map[string]any{"type": "join-user", "userId": i + 1})
		send(ctl, sid, conns[sid], map[string]any{"type": "join-group", "chatId": 9})
		drain(t, conns[sid])
	}

	send(ctl, "a", conns["a"], map[string]any{"type": "send-group-message", "chatId": 9, "message": "hello"})

	sender := drain(t, conns["a"])
	require.Len(t, sender, 1)
	assert.Equal(t, "message-sent", sender[0]["type"])
	for _, sid := range []core.SessionID{"b", "c"} {
		got := drain(t, conns[sid])
		require.Len(t, got, 1, string(sid))
		assert.Equal(t, "receive-group-message", got[0]["type"])
		assert.EqualValues(t, 9, got[0]["chatId"])
	}

	send(ctl, "b", conns["b"], map[string]any{"type": "leave-group", "chatId": 9})
	assert.Equal(t, "left", drain(t, conns["b"])[0]["type"])
	send(ctl, "a", conns["a"], map[string]any{"type": "send-group-message", "chatId": 9, "message": "again"})
	assert.Empty(t, drain(t, conns["b"]))
	assert.Len(t, drain(t, conns["c"]), 1)
}

func TestRateLimitedAndUnknownEvents(t *testing.T) {
	ctl := newController(2)
	c := attach(ctl, "s1", 0)

	send(ctl, "s1", c, map[string]any{"type": "ping"})
	send(ctl, "s1", c, map[string]any{"type": "teleport"})
	send(ctl, "s1", c, map[string]any{"type": "ping"})

	got := drain(t, c)
	require.Len(t, got, 2)
	assert.Equal(t, "pong", got[0]["type"])
	assert.Equal(t, errRateLimited, got[1]["error"])

	ctl.handleSignal("s1", c, []byte("not json"))
	got = drain(t, c)
	require.Len(t, got, 1)
	assert.Equal(t, errRateLimited, got[0]["error"])
}

func TestMalformedFramesCountAgainstRateLimit(t *testing.T) {
	ctl := newController(2)
	c := attach(ctl, "s1", 0)

	for i := 0; i < 5; i++ {
		ctl.handleSignal("s1", c, []byte("not json"))
	}
	got := drain(t, c)
	require.Len(t, got, 5)
	assert.Equal(t, errBadPayload, got[0]["error"])
	assert.Equal(t, errBadPayload, got[1]["error"])
	for _, m := range got[2:] {
		assert.Equal(t, errRateLimited, m["error"])
	}

	send(ctl, "s1", c, map[string]any{"type": "ping"})
	got = drain(t, c)
	require.Len(t, got, 1)
	assert.Equal(t, errRateLimited, got[0]["error"])
}
