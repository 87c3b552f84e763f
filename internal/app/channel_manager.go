package app

import (
	"sync"

	"github.com/dkeye/Fanhub/internal/core"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/dkeye/Fanhub/internal/metrics"
	"github.com/rs/zerolog/log"
)

type ChannelManagerImpl struct {
	mu       sync.RWMutex
	channels map[domain.ChannelName]core.ChannelService
}

func NewChannelManager() core.ChannelManager {
	return &ChannelManagerImpl{channels: make(map[domain.ChannelName]core.ChannelService)}
}

func (f *ChannelManagerImpl) GetOrCreate(name domain.ChannelName) core.ChannelService {
	f.mu.RLock()
	ch, ok := f.channels[name]
	f.mu.RUnlock()
	if ok {
		return ch
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok = f.channels[name]; ok {
		return ch
	}
	ch = core.NewChannelService(name)
	f.channels[name] = ch
	metrics.Channels.Set(float64(len(f.channels)))
	return ch
}

func (f *ChannelManagerImpl) Get(name domain.ChannelName) (core.ChannelService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ch, ok := f.channels[name]
	return ch, ok
}

func (f *ChannelManagerImpl) List() []core.ChannelInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.ChannelInfo, 0, len(f.channels))
	for name, ch := range f.channels {
		out = append(out, core.ChannelInfo{Name: name, MemberCount: ch.MemberCount()})
	}
	return out
}

// PruneEmpty drops channel records without members and reports how many went.
func (f *ChannelManagerImpl) PruneEmpty() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	pruned := 0
	for name, ch := range f.channels {
		if ch.MemberCount() == 0 {
			delete(f.channels, name)
			pruned++
		}
	}
	metrics.Channels.Set(float64(len(f.channels)))
	if pruned > 0 {
		metrics.ChannelsPruned.Add(float64(pruned))
		log.Debug().Str("module", "app.channels").Int("pruned", pruned).Int("left", len(f.channels)).Msg("pruned empty channels")
	}
	return pruned
}
