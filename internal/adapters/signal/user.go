package signal

import (
	"errors"

	"github.com/dkeye/Fanhub/internal/app"
	"github.com/dkeye/Fanhub/internal/core"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleJoinUser binds the connection to a user and subscribes it to the
// user's personal channel. With authentication on, only the token's user
// may be claimed.
func (ctl *SignalWSController) handleJoinUser(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p joinUserPayload
	if err := decode(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad join-user payload")
		ctl.sendError(conn, domain.EventError, errBadPayload, 0)
		return
	}

	if claimed := ctl.claimedUser(sid); claimed.Valid() && claimed != p.UserID {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Int64("claimed", int64(claimed)).Int64("user", int64(p.UserID)).Msg("join-user for foreign user")
		ctl.sendError(conn, domain.EventError, errForbidden, 0)
		return
	}

	if err := ctl.Orch.BindUser(sid, p.UserID); err != nil {
		code := errInternal
		if errors.Is(err, app.ErrAlreadyBound) {
			code = errAlreadyBound
		}
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join-user")
		ctl.sendError(conn, domain.EventError, code, 0)
		return
	}

	ctl.sendJSON(conn, domain.ChannelNotice{
		Type:    domain.EventJoined,
		Channel: domain.UserChannel(p.UserID),
	})
}

func (ctl *SignalWSController) handleWhoAmI(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	uid, _ := ctl.Orch.Registry.UserOf(sid)

	resp := struct {
		Type      string               `json:"type"`
		SessionID core.SessionID       `json:"sessionId"`
		UserID    domain.UserID        `json:"userId,omitempty"`
		Channels  []domain.ChannelName `json:"channels"`
	}{
		Type:      domain.EventWhoAmI,
		SessionID: sid,
		UserID:    uid,
		Channels:  ctl.Orch.Registry.ChannelsOf(sid),
	}
	if resp.Channels == nil {
		resp.Channels = []domain.ChannelName{}
	}
	ctl.sendJSON(conn, resp)
}

func (ctl *SignalWSController) claimedUser(sid core.SessionID) domain.UserID {
	sess, ok := ctl.Orch.Registry.GetSession(sid)
	if !ok || sess.Meta() == nil {
		return 0
	}
	return sess.Meta().Claimed
}

// boundUser returns the user bound by join-user.
func (ctl *SignalWSController) boundUser(sid core.SessionID) (domain.UserID, bool) {
	return ctl.Orch.Registry.UserOf(sid)
}
