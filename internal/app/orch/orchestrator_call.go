package orch

import (
	"github.com/dkeye/Fanhub/internal/core"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/dkeye/Fanhub/internal/metrics"
	"github.com/rs/zerolog/log"
)

// StartCall opens a ringing call and rings every connection of the callee.
// sid is empty when the call was started over HTTP.
func (o *Orchestrator) StartCall(sid core.SessionID, caller, callee domain.UserID, kind domain.CallKind) (domain.Call, error) {
	call, err := o.Calls.Start(caller, callee, kind, string(sid))
	if err != nil {
		return call, err
	}
	o.DeliverJSON(domain.UserChannel(callee), domain.EventIncomingCall, domain.IncomingCall{
		Type:       domain.EventIncomingCall,
		CallID:     call.ID,
		FromUserID: caller,
		Kind:       call.Kind,
		Timestamp:  call.CreatedAt.UnixMilli(),
	}, "")
	return call, nil
}

func (o *Orchestrator) AcceptCall(sid core.SessionID, by domain.UserID, id domain.CallID) (domain.Call, error) {
	call, err := o.Calls.Accept(id, by, string(sid))
	if err != nil {
		return call, err
	}
	o.DeliverJSON(domain.UserChannel(call.CallerID), domain.EventCallAccepted, domain.CallAcceptedNotice{
		Type:       domain.EventCallAccepted,
		CallID:     call.ID,
		AcceptedBy: by,
	}, "")
	return call, nil
}

func (o *Orchestrator) RejectCall(by domain.UserID, id domain.CallID) (domain.Call, error) {
	call, err := o.Calls.Reject(id, by)
	if err != nil {
		return call, err
	}
	o.DeliverJSON(domain.UserChannel(call.Peer(by)), domain.EventCallRejected, domain.CallRejectedNotice{
		Type:       domain.EventCallRejected,
		CallID:     call.ID,
		RejectedBy: by,
	}, "")
	return call, nil
}

func (o *Orchestrator) EndCall(by domain.UserID, id domain.CallID) (domain.Call, error) {
	call, err := o.Calls.End(id, by)
	if err != nil {
		return call, err
	}
	o.DeliverJSON(domain.UserChannel(call.Peer(by)), domain.EventCallEnded, domain.CallEndedNotice{
		Type:    domain.EventCallEnded,
		CallID:  call.ID,
		EndedBy: by,
		Reason:  call.EndReason,
	}, "")
	return call, nil
}

// RelayCallEvent forwards a call scoped event from one party to the other.
// Events for unknown or finished calls, or between users that are not the
// two parties of the call, are dropped.
func (o *Orchestrator) RelayCallEvent(from domain.UserID, id domain.CallID, to domain.UserID, event string, v any) bool {
	call, ok := o.Calls.Live(id)
	if !ok || !call.Involves(from) || call.Peer(from) != to {
		metrics.RecordDropped(event, metrics.ReasonUnknownCall)
		log.Debug().Str("module", "orch").Int64("call", int64(id)).Int64("from", int64(from)).Int64("to", int64(to)).Str("event", event).Msg("call event dropped")
		return false
	}
	o.DeliverJSON(domain.UserChannel(to), event, v, "")
	return true
}

// ExpireRinging ends calls that rang past the timeout and tells both parties.
func (o *Orchestrator) ExpireRinging() int {
	expired := o.Calls.ExpireRinging()
	for _, call := range expired {
		notice := domain.CallEndedNotice{Type: domain.EventCallEnded, CallID: call.ID, Reason: domain.EndTimeout}
		o.DeliverJSON(domain.UserChannel(call.CallerID), domain.EventCallEnded, notice, "")
		o.DeliverJSON(domain.UserChannel(call.CalleeID), domain.EventCallEnded, notice, "")
	}
	return len(expired)
}

func (o *Orchestrator) abandonCalls(user domain.UserID, sid core.SessionID, online bool) {
	if o.Calls == nil {
		return
	}
	for _, call := range o.Calls.Abandon(user, string(sid), online) {
		o.DeliverJSON(domain.UserChannel(call.Peer(user)), domain.EventPeerDisconnected, domain.PeerDisconnected{
			Type:   domain.EventPeerDisconnected,
			CallID: call.ID,
			UserID: user,
		}, "")
	}
}
