package signal

import (
	"errors"

	"github.com/dkeye/Fanhub/internal/app"
	"github.com/dkeye/Fanhub/internal/core"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/dkeye/Fanhub/internal/metrics"
	"github.com/rs/zerolog/log"
)

// CallErrorCode maps call tracker errors to the codes sent to clients.
func CallErrorCode(err error) string {
	switch {
	case errors.Is(err, app.ErrSelfCall):
		return errSelfCall
	case errors.Is(err, app.ErrInvalidKind):
		return errBadPayload
	case errors.Is(err, app.ErrBusy):
		return errBusy
	case errors.Is(err, app.ErrCallNotFound):
		return errUnknownCall
	case errors.Is(err, app.ErrNotParticipant), errors.Is(err, app.ErrNotCallee):
		return errForbidden
	case errors.Is(err, app.ErrInvalidTransition):
		return errInvalidTransition
	}
	return errInternal
}

// callUser returns the bound user or answers call-error not_joined.
func (ctl *SignalWSController) callUser(sid core.SessionID, conn *WsSignalConn, event string) (domain.UserID, bool) {
	uid, ok := ctl.boundUser(sid)
	if !ok {
		metrics.RecordDropped(event, metrics.ReasonNotJoined)
		ctl.sendError(conn, domain.EventCallError, errNotJoined, 0)
	}
	return uid, ok
}

func (ctl *SignalWSController) handleStartCall(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	uid, ok := ctl.callUser(sid, conn, domain.EventStartCall)
	if !ok {
		return
	}
	var p startCallPayload
	if err := decode(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("bad start-call payload")
		ctl.sendError(conn, domain.EventCallError, errBadPayload, 0)
		return
	}

	call, err := ctl.Orch.StartCall(sid, uid, p.ToUserID, p.Kind)
	if err != nil {
		log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("start-call refused")
		ctl.sendError(conn, domain.EventCallError, CallErrorCode(err), 0)
		return
	}
	ctl.sendJSON(conn, domain.CallStarted{
		Type:     domain.EventCallStarted,
		CallID:   call.ID,
		ToUserID: call.CalleeID,
		Kind:     call.Kind,
	})
}

func (ctl *SignalWSController) handleAcceptCall(sid core.SessionID, conn *WsSignalConn, data []byte) {
	ctl.callAction(sid, conn, data, domain.EventAcceptCall, func(uid domain.UserID, id domain.CallID) error {
		_, err := ctl.Orch.AcceptCall(sid, uid, id)
		return err
	})
}

func (ctl *SignalWSController) handleRejectCall(sid core.SessionID, conn *WsSignalConn, data []byte) {
	ctl.callAction(sid, conn, data, domain.EventRejectCall, func(uid domain.UserID, id domain.CallID) error {
		_, err := ctl.Orch.RejectCall(uid, id)
		return err
	})
}

func (ctl *SignalWSController) handleEndCall(sid core.SessionID, conn *WsSignalConn, data []byte) {
	ctl.callAction(sid, conn, data, domain.EventEndCall, func(uid domain.UserID, id domain.CallID) error {
		_, err := ctl.Orch.EndCall(uid, id)
		return err
	})
}

func (ctl *SignalWSController) callAction(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
	event string,
	do func(uid domain.UserID, id domain.CallID) error,
) {
	uid, ok := ctl.callUser(sid, conn, event)
	if !ok {
		return
	}
	var p callActionPayload
	if err := decode(data, &p); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("event", event).Msg("bad call payload")
		ctl.sendError(conn, domain.EventCallError, errBadPayload, 0)
		return
	}
	if err := do(uid, p.CallID); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("event", event).Int64("call", int64(p.CallID)).Msg("call action refused")
		ctl.sendError(conn, domain.EventCallError, CallErrorCode(err), p.CallID)
	}
}
