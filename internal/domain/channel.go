package domain

import (
	"errors"
	"strconv"
	"strings"
)

type ChannelName string

type ChannelKind int

const (
	ChannelUnknown ChannelKind = iota
	ChannelUser
	ChannelChat
)

const (
	userPrefix = "user-"
	chatPrefix = "chat-"
)

var ErrBadChannel = errors.New("bad channel name")

func UserChannel(id UserID) ChannelName {
	return ChannelName(userPrefix + id.String())
}

func ChatChannel(id ChatID) ChannelName {
	return ChannelName(chatPrefix + id.String())
}

// ParseChannel splits a channel name into its kind and numeric id.
func ParseChannel(name ChannelName) (ChannelKind, int64, error) {
	s := string(name)
	var kind ChannelKind
	switch {
	case strings.HasPrefix(s, userPrefix):
		kind, s = ChannelUser, strings.TrimPrefix(s, userPrefix)
	case strings.HasPrefix(s, chatPrefix):
		kind, s = ChannelChat, strings.TrimPrefix(s, chatPrefix)
	default:
		return ChannelUnknown, 0, ErrBadChannel
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return ChannelUnknown, 0, ErrBadChannel
	}
	return kind, id, nil
}
