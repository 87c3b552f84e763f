package core

import (
	"sync"

	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/rs/zerolog/log"
)

// channelImpl is a threadsafe in-memory channel.
// It never closes adapter-owned resources.
type channelImpl struct {
	name    domain.ChannelName
	mu      sync.RWMutex
	members map[SessionID]MemberSession
}

func NewChannelService(name domain.ChannelName) ChannelService {
	return &channelImpl{
		name:    name,
		members: make(map[SessionID]MemberSession),
	}
}

func (c *channelImpl) Name() domain.ChannelName { return c.name }

func (c *channelImpl) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

func (c *channelImpl) Members() []SessionID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SessionID, 0, len(c.members))
	for sid := range c.members {
		out = append(out, sid)
	}
	return out
}

func (c *channelImpl) Has(sid SessionID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[sid]
	return ok
}

func (c *channelImpl) AddMember(sid SessionID, ms MemberSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[sid]; ok {
		return false
	}
	c.members[sid] = ms
	log.Debug().Str("module", "core.channel").Str("channel", string(c.name)).Str("sid", string(sid)).Msg("member added")
	return true
}

func (c *channelImpl) RemoveMember(sid SessionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[sid]; !ok {
		return false
	}
	delete(c.members, sid)
	log.Debug().Str("module", "core.channel").Str("channel", string(c.name)).Str("sid", string(sid)).Msg("member removed")
	return true
}

// Broadcast hands data to every member except exclude, exactly once each.
func (c *channelImpl) Broadcast(exclude SessionID, data Frame) PublishResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range c.members {
		if sid == exclude {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.channel").Str("channel", string(c.name)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
