package core

import (
	"errors"

	"github.com/dkeye/Fanhub/internal/domain"
)

// Frame is a raw encoded event.
type Frame []byte

type SessionID string

var ErrBackpressure = errors.New("backpressure")

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds domain.Member and its transport endpoint.
// This is what a channel stores and fans out to.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []SessionID
}

// ChannelService is the core-facing API of a channel.
// It owns the membership set but never touches transport resources.
type ChannelService interface {
	Name() domain.ChannelName
	MemberCount() int
	Members() []SessionID
	Has(sid SessionID) bool

	AddMember(sid SessionID, ms MemberSession) bool
	RemoveMember(sid SessionID) bool
	Broadcast(exclude SessionID, data Frame) PublishResult
}

type ChannelInfo struct {
	Name        domain.ChannelName `json:"name"`
	MemberCount int                `json:"member_count"`
}

// ChannelManager is the arena of channel records indexed by name.
// Empty records are only removed by PruneEmpty.
type ChannelManager interface {
	GetOrCreate(name domain.ChannelName) ChannelService
	Get(name domain.ChannelName) (ChannelService, bool)
	List() []ChannelInfo
	PruneEmpty() int
}
