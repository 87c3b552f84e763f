package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/Fanhub/internal/core"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/dkeye/Fanhub/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	var ping <-chan time.Time
	if ctl.Opts.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.Opts.PingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.Orch.OnDisconnect(sid)
		ctl.Limiter.Forget(sid)
	}()

	// A kick or shutdown cancels ctx; closing the socket unblocks ReadMessage.
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	if ctl.Opts.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.Opts.ReadLimit)
	}
	var pongWait time.Duration
	if ctl.Opts.PingPeriod > 0 {
		pongWait = ctl.Opts.PingPeriod * 10 / 9
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		if pongWait > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		}
		ctl.handleSignal(sid, c, data)
	}
}

// handleSignal counts every frame against the rate limit, malformed ones
// included, before looking at its type.
func (ctl *SignalWSController) handleSignal(sid core.SessionID, c *WsSignalConn, data []byte) {
	if !ctl.Limiter.Allow(sid) {
		metrics.RecordDropped("unknown", metrics.ReasonRateLimited)
		ctl.sendError(c, domain.EventError, errRateLimited, 0)
		return
	}

	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		metrics.RecordDropped("unknown", metrics.ReasonBadPayload)
		ctl.sendError(c, domain.EventError, errBadPayload, 0)
		return
	}
	metrics.RecordReceived(eventLabel(env.Type))

	switch env.Type {
	case domain.EventJoinUser:
		ctl.handleJoinUser(sid, c, data)
	case domain.EventJoinGroup:
		ctl.handleJoinGroup(sid, c, data)
	case domain.EventLeaveGroup:
		ctl.handleLeaveGroup(sid, c, data)
	case domain.EventSendPrivateMessage:
		ctl.handlePrivateMessage(sid, c, data)
	case domain.EventSendGroupMessage:
		ctl.handleGroupMessage(sid, c, data)
	case domain.EventStartCall:
		ctl.handleStartCall(sid, c, data)
	case domain.EventAcceptCall:
		ctl.handleAcceptCall(sid, c, data)
	case domain.EventRejectCall:
		ctl.handleRejectCall(sid, c, data)
	case domain.EventEndCall:
		ctl.handleEndCall(sid, c, data)
	case domain.EventWebRTCOffer:
		ctl.handleOffer(sid, data)
	case domain.EventWebRTCAnswer:
		ctl.handleAnswer(sid, data)
	case domain.EventWebRTCICECandidate:
		ctl.handleCandidate(sid, data)
	case domain.EventCameraStateChanged:
		ctl.handleCameraState(sid, data)
	case domain.EventPing:
		ctl.handlePing(c)
	case domain.EventWhoAmI:
		ctl.handleWhoAmI(sid, c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		metrics.RecordDropped("unknown", metrics.ReasonUnknownEvent)
	}
}

// eventLabel keeps metric label values to the known event set.
func eventLabel(t string) string {
	if _, ok := knownEvents[t]; ok {
		return t
	}
	return "unknown"
}

var knownEvents = map[string]struct{}{
	domain.EventJoinUser:           {},
	domain.EventJoinGroup:          {},
	domain.EventLeaveGroup:         {},
	domain.EventSendPrivateMessage: {},
	domain.EventSendGroupMessage:   {},
	domain.EventStartCall:          {},
	domain.EventAcceptCall:         {},
	domain.EventRejectCall:         {},
	domain.EventEndCall:            {},
	domain.EventWebRTCOffer:        {},
	domain.EventWebRTCAnswer:       {},
	domain.EventWebRTCICECandidate: {},
	domain.EventCameraStateChanged: {},
	domain.EventPing:               {},
	domain.EventWhoAmI:             {},
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendError(c core.SignalConnection, event, code string, callID domain.CallID) {
	ctl.sendJSON(c, domain.ErrorNotice{Type: event, Error: code, CallID: callID})
}
