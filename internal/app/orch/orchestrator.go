package orch

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/dkeye/Fanhub/internal/app"
	"github.com/dkeye/Fanhub/internal/core"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/dkeye/Fanhub/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Orchestrator is the hub: one instance per process, shared by every
// connection handler. mu serializes membership changes against deliveries,
// so a delivery never observes a half-removed connection.
type Orchestrator struct {
	mu       sync.RWMutex
	Registry *app.Registry
	Channels core.ChannelManager
	Policy   app.Policy
	Calls    *app.CallTracker
}

// Deliver hands frame to every member of target except exclude, one copy
// each. An empty or unknown channel drops the event silently.
func (o *Orchestrator) Deliver(target domain.ChannelName, event string, frame core.Frame, exclude core.SessionID) int {
	o.mu.RLock()
	ch, ok := o.Channels.Get(target)
	if !ok || ch.MemberCount() == 0 {
		o.mu.RUnlock()
		metrics.RecordDropped(event, metrics.ReasonNoMembers)
		log.Debug().Str("module", "orch").Str("channel", string(target)).Str("event", event).Msg("no members, event dropped")
		return 0
	}
	res := ch.Broadcast(exclude, frame)
	o.mu.RUnlock()

	metrics.RecordDelivered(event, res.SendTo)
	o.onDropped(ch, event, res.Dropped)
	return res.SendTo
}

// DeliverJSON encodes v and delivers it like Deliver.
func (o *Orchestrator) DeliverJSON(target domain.ChannelName, event string, v any, exclude core.SessionID) int {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", event).Msg("marshal event")
		return 0
	}
	return o.Deliver(target, event, b, exclude)
}

func (o *Orchestrator) onDropped(ch core.ChannelService, event string, dropped []core.SessionID) {
	for _, sid := range dropped {
		metrics.RecordDropped(event, metrics.ReasonBackpressure)
		if o.Policy == nil {
			continue
		}
		switch o.Policy.OnBackPressure(ch, sid) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("channel", string(ch.Name())).Msg("slow member kicked")
			o.Registry.Cancel(sid)
		case app.DropFrame, app.NoAction:
		}
	}
}

type Stats struct {
	Connections int                `json:"connections"`
	Channels    []core.ChannelInfo `json:"channels"`
	LiveCalls   []domain.Call      `json:"live_calls"`
}

func (o *Orchestrator) Stats() Stats {
	o.mu.RLock()
	channels := o.Channels.List()
	conns := o.Registry.Count()
	o.mu.RUnlock()
	sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })

	st := Stats{Connections: conns, Channels: channels, LiveCalls: []domain.Call{}}
	if o.Calls != nil {
		st.LiveCalls = o.Calls.LiveCalls()
	}
	return st
}
