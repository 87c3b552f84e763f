package signal

import (
	"github.com/dkeye/Fanhub/internal/core"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/dkeye/Fanhub/internal/metrics"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// The hub never terminates media. Offers, answers, candidates and camera
// state are relayed verbatim to the other party of a live call.

type relayHeader struct {
	Type       string        `json:"type"`
	CallID     domain.CallID `json:"callId"`
	FromUserID domain.UserID `json:"fromUserId"`
	ToUserID   domain.UserID `json:"toUserId"`
}

type offerRelay struct {
	relayHeader
	Offer webrtc.SessionDescription `json:"offer"`
}

type answerRelay struct {
	relayHeader
	Answer webrtc.SessionDescription `json:"answer"`
}

type candidateRelay struct {
	relayHeader
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type cameraStateRelay struct {
	relayHeader
	CameraEnabled bool `json:"cameraEnabled"`
}

// relayUser returns the sender of a relayed event. Unbound connections and
// bad payloads are dropped without reply.
func (ctl *SignalWSController) relayUser(sid core.SessionID, event string, data []byte, p payload) (domain.UserID, bool) {
	from, ok := ctl.boundUser(sid)
	if !ok {
		metrics.RecordDropped(event, metrics.ReasonNotJoined)
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Str("event", event).Msg("relay from unbound connection")
		return 0, false
	}
	if err := decode(data, p); err != nil {
		metrics.RecordDropped(event, metrics.ReasonBadPayload)
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("event", event).Msg("bad relay payload")
		return 0, false
	}
	return from, true
}

func header(event string, t relayTarget, from domain.UserID) relayHeader {
	return relayHeader{Type: event, CallID: t.CallID, FromUserID: from, ToUserID: t.ToUserID}
}

func (ctl *SignalWSController) handleOffer(sid core.SessionID, data []byte) {
	var p offerPayload
	from, ok := ctl.relayUser(sid, domain.EventWebRTCOffer, data, &p)
	if !ok {
		return
	}
	ctl.Orch.RelayCallEvent(from, p.CallID, p.ToUserID, domain.EventWebRTCOffer, offerRelay{
		relayHeader: header(domain.EventWebRTCOffer, p.relayTarget, from),
		Offer:       p.Offer,
	})
}

func (ctl *SignalWSController) handleAnswer(sid core.SessionID, data []byte) {
	var p answerPayload
	from, ok := ctl.relayUser(sid, domain.EventWebRTCAnswer, data, &p)
	if !ok {
		return
	}
	ctl.Orch.RelayCallEvent(from, p.CallID, p.ToUserID, domain.EventWebRTCAnswer, answerRelay{
		relayHeader: header(domain.EventWebRTCAnswer, p.relayTarget, from),
		Answer:      p.Answer,
	})
}

func (ctl *SignalWSController) handleCandidate(sid core.SessionID, data []byte) {
	var p candidatePayload
	from, ok := ctl.relayUser(sid, domain.EventWebRTCICECandidate, data, &p)
	if !ok {
		return
	}
	ctl.Orch.RelayCallEvent(from, p.CallID, p.ToUserID, domain.EventWebRTCICECandidate, candidateRelay{
		relayHeader: header(domain.EventWebRTCICECandidate, p.relayTarget, from),
		Candidate:   p.Candidate,
	})
}

func (ctl *SignalWSController) handleCameraState(sid core.SessionID, data []byte) {
	var p cameraStatePayload
	from, ok := ctl.relayUser(sid, domain.EventCameraStateChanged, data, &p)
	if !ok {
		return
	}
	ctl.Orch.RelayCallEvent(from, p.CallID, p.ToUserID, domain.EventCameraStateChanged, cameraStateRelay{
		relayHeader:   header(domain.EventCameraStateChanged, p.relayTarget, from),
		CameraEnabled: *p.CameraEnabled,
	})
}
