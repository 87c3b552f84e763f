package orch

import (
	"context"

	"github.com/dkeye/Fanhub/internal/core"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/dkeye/Fanhub/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Connect registers a fresh transport connection. cancel must tear the
// transport down; it is used to kick the connection.
func (o *Orchestrator) Connect(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	o.Registry.Bind(sid, sess, cancel)
	metrics.RecordConnectionOpened()
}

// BindUser ties the connection to uid once and joins its personal channel.
func (o *Orchestrator) BindUser(sid core.SessionID, uid domain.UserID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.Registry.BindUser(sid, uid); err != nil {
		return err
	}
	o.joinLocked(sid, domain.UserChannel(uid))
	return nil
}

// Join adds the connection to the channel. Joining twice changes nothing.
func (o *Orchestrator) Join(sid core.SessionID, name domain.ChannelName) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.joinLocked(sid, name)
}

func (o *Orchestrator) joinLocked(sid core.SessionID, name domain.ChannelName) bool {
	if _, _, err := domain.ParseChannel(name); err != nil {
		log.Warn().Str("module", "orch").Str("channel", string(name)).Msg("refused join of malformed channel")
		return false
	}
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return false
	}
	ch := o.Channels.GetOrCreate(name)
	if ch.AddMember(sid, sess) {
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("channel", string(name)).Msg("joined channel")
	}
	o.Registry.AddChannel(sid, name)
	return true
}

// Leave removes the connection from the channel; absent members are a no-op.
// The channel record itself stays until the next prune.
func (o *Orchestrator) Leave(sid core.SessionID, name domain.ChannelName) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ch, ok := o.Channels.Get(name); ok {
		ch.RemoveMember(sid)
	}
	left := o.Registry.RemoveChannel(sid, name)
	if left {
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("channel", string(name)).Msg("left channel")
	}
	return left
}

func (o *Orchestrator) MembersOf(name domain.ChannelName) []core.SessionID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ch, ok := o.Channels.Get(name)
	if !ok {
		return []core.SessionID{}
	}
	return ch.Members()
}

// OnDisconnect removes the connection from every channel in one step, then
// ends the calls that depended on it and tells the remaining parties.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.mu.Lock()
	channels, user, ok := o.Registry.Unbind(sid)
	if !ok {
		o.mu.Unlock()
		return
	}
	for _, name := range channels {
		if ch, ok := o.Channels.Get(name); ok {
			ch.RemoveMember(sid)
		}
	}
	online := user.Valid() && o.Registry.IsOnline(user)
	o.mu.Unlock()

	metrics.RecordConnectionClosed()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Int("channels", len(channels)).Msg("disconnected")
	if user.Valid() {
		o.abandonCalls(user, sid, online)
	}
}

// PruneChannels drops empty channel records.
func (o *Orchestrator) PruneChannels() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Channels.PruneEmpty()
}
