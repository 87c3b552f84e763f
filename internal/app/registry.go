package app

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dkeye/Fanhub/internal/core"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAlreadyBound    = errors.New("session already bound to another user")
	ErrInvalidUser     = errors.New("invalid user id")
)

type sessionEntry struct {
	Session  core.MemberSession
	User     domain.UserID
	Channels map[domain.ChannelName]struct{}
	Cancel   context.CancelFunc
}

// Registry tracks live connections: their user binding and joined channels.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	byUser   map[domain.UserID]map[core.SessionID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		byUser:   make(map[domain.UserID]map[core.SessionID]struct{}),
	}
}

func (r *Registry) Bind(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{
		Session:  sess,
		Channels: make(map[domain.ChannelName]struct{}),
		Cancel:   cancel,
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound session")
}

// Unbind forgets the session and returns the channels it had joined.
func (r *Registry) Unbind(sid core.SessionID) ([]domain.ChannelName, domain.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil, 0, false
	}
	delete(r.sessions, sid)
	if e.User != 0 {
		if set, ok := r.byUser[e.User]; ok {
			delete(set, sid)
			if len(set) == 0 {
				delete(r.byUser, e.User)
			}
		}
	}
	channels := make([]domain.ChannelName, 0, len(e.Channels))
	for name := range e.Channels {
		channels = append(channels, name)
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return channels, e.User, true
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

// BindUser sets the user of a session. It succeeds once; repeating it with
// the same user is a no-op, any other user is refused.
func (r *Registry) BindUser(sid core.SessionID, uid domain.UserID) error {
	if !uid.Valid() {
		return ErrInvalidUser
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return ErrSessionNotFound
	}
	if e.User == uid {
		return nil
	}
	if e.User != 0 {
		return ErrAlreadyBound
	}
	e.User = uid
	set, ok := r.byUser[uid]
	if !ok {
		set = make(map[core.SessionID]struct{})
		r.byUser[uid] = set
	}
	set[sid] = struct{}{}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Int64("user", int64(uid)).Msg("bound user")
	return nil
}

func (r *Registry) UserOf(sid core.SessionID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.User == 0 {
		return 0, false
	}
	return e.User, true
}

func (r *Registry) SessionsOfUser(uid domain.UserID) []core.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.SessionID, 0, len(r.byUser[uid]))
	for sid := range r.byUser[uid] {
		out = append(out, sid)
	}
	return out
}

func (r *Registry) IsOnline(uid domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[uid]) > 0
}

func (r *Registry) AddChannel(sid core.SessionID, name domain.ChannelName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.Channels[name] = struct{}{}
	return true
}

func (r *Registry) RemoveChannel(sid core.SessionID, name domain.ChannelName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	if _, ok := e.Channels[name]; !ok {
		return false
	}
	delete(e.Channels, name)
	return true
}

// ChannelsOf returns the joined channels sorted by name.
func (r *Registry) ChannelsOf(sid core.SessionID) []domain.ChannelName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil
	}
	out := make([]domain.ChannelName, 0, len(e.Channels))
	for name := range e.Channels {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Cancel ends the connection context; the adapter closes the transport and
// runs the disconnect path.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
