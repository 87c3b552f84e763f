package signal

import (
	"time"

	"github.com/dkeye/Fanhub/internal/core"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/dkeye/Fanhub/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePrivateMessage(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	from, ok := ctl.boundUser(sid)
	if !ok {
		metrics.RecordDropped(domain.EventSendPrivateMessage, metrics.ReasonNotJoined)
		ctl.sendError(conn, domain.EventMessageError, errNotJoined, 0)
		return
	}
	var p privateMessagePayload
	if err := decode(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad private message payload")
		metrics.RecordDropped(domain.EventSendPrivateMessage, metrics.ReasonBadPayload)
		ctl.sendError(conn, domain.EventMessageError, errBadPayload, 0)
		return
	}

	msg := domain.PrivateMessage{
		Type:       domain.EventReceivePrivateMessage,
		FromUserID: from,
		ToUserID:   p.ToUserID,
		Message:    p.Message,
		Timestamp:  stamp(p.Timestamp),
		MessageID:  uuid.NewString(),
	}
	n := ctl.Orch.DeliverJSON(domain.UserChannel(p.ToUserID), domain.EventReceivePrivateMessage, msg, "")
	ctl.ack(conn, msg.MessageID, msg.Timestamp, n)
}

// handleGroupMessage fans out to the chat channel. The sending connection is
// excluded; the sender's other connections in the chat get a copy.
func (ctl *SignalWSController) handleGroupMessage(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	from, ok := ctl.boundUser(sid)
	if !ok {
		metrics.RecordDropped(domain.EventSendGroupMessage, metrics.ReasonNotJoined)
		ctl.sendError(conn, domain.EventMessageError, errNotJoined, 0)
		return
	}
	var p groupMessagePayload
	if err := decode(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad group message payload")
		metrics.RecordDropped(domain.EventSendGroupMessage, metrics.ReasonBadPayload)
		ctl.sendError(conn, domain.EventMessageError, errBadPayload, 0)
		return
	}

	msg := domain.GroupMessage{
		Type:       domain.EventReceiveGroupMessage,
		ChatID:     p.ChatID,
		FromUserID: from,
		Message:    p.Message,
		Timestamp:  stamp(p.Timestamp),
		MessageID:  uuid.NewString(),
	}
	n := ctl.Orch.DeliverJSON(domain.ChatChannel(p.ChatID), domain.EventReceiveGroupMessage, msg, sid)
	ctl.ack(conn, msg.MessageID, msg.Timestamp, n)
}

func (ctl *SignalWSController) ack(conn *WsSignalConn, id string, ts int64, delivered int) {
	ctl.sendJSON(conn, domain.MessageSent{
		Type:      domain.EventMessageSent,
		MessageID: id,
		Timestamp: ts,
		Delivered: delivered > 0,
	})
}

// stamp keeps the client timestamp, or uses now in unix millis.
func stamp(ts int64) int64 {
	if ts > 0 {
		return ts
	}
	return time.Now().UnixMilli()
}
