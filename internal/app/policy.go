package app

import "github.com/dkeye/Fanhub/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose send buffer is full.
type Policy interface {
	OnBackPressure(channel core.ChannelService, sid core.SessionID) BackpressureAction
}

// SimplePolicy kicks slow members. The kicked connection goes through the
// regular disconnect path, so its channels and calls are cleaned up.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(channel core.ChannelService, sid core.SessionID) BackpressureAction {
	return KickMember
}

// TolerantPolicy only drops the frame for the slow member.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(channel core.ChannelService, sid core.SessionID) BackpressureAction {
	return DropFrame
}
