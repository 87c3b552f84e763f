package signal

import (
	"github.com/dkeye/Fanhub/internal/core"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoinGroup(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p groupPayload
	if err := decode(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad join-group payload")
		ctl.sendError(conn, domain.EventError, errBadPayload, 0)
		return
	}
	name := domain.ChatChannel(p.ChatID)
	ctl.Orch.Join(sid, name)
	ctl.sendJSON(conn, domain.ChannelNotice{Type: domain.EventJoined, Channel: name})
}

// handleLeaveGroup leaves the chat channel; the connection stays open.
func (ctl *SignalWSController) handleLeaveGroup(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p groupPayload
	if err := decode(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad leave-group payload")
		ctl.sendError(conn, domain.EventError, errBadPayload, 0)
		return
	}
	name := domain.ChatChannel(p.ChatID)
	ctl.Orch.Leave(sid, name)
	ctl.sendJSON(conn, domain.ChannelNotice{Type: domain.EventLeft, Channel: name})
}
