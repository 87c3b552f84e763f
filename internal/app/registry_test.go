package app

import (
	"testing"

	"github.com/dkeye/Fanhub/internal/core"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func newSession() core.MemberSession {
	return core.NewMemberSession(domain.NewMember(0, "127.0.0.1"), nopConn{})
}

func TestRegistryBindUser(t *testing.T) {
	r := NewRegistry()
	r.Bind("s1", newSession(), nil)

	assert.ErrorIs(t, r.BindUser("s1", 0), ErrInvalidUser)
	assert.ErrorIs(t, r.BindUser("missing", 1), ErrSessionNotFound)

	require.NoError(t, r.BindUser("s1", 7))
	require.NoError(t, r.BindUser("s1", 7))
	assert.ErrorIs(t, r.BindUser("s1", 8), ErrAlreadyBound)

	uid, ok := r.UserOf("s1")
	require.True(t, ok)
	assert.Equal(t, domain.UserID(7), uid)
	assert.True(t, r.IsOnline(7))
	assert.ElementsMatch(t, []core.SessionID{"s1"}, r.SessionsOfUser(7))
}

func TestRegistryUnbindReturnsChannels(t *testing.T) {
	r := NewRegistry()
	r.Bind("s1", newSession(), nil)
	r.Bind("s2", newSession(), nil)
	require.NoError(t, r.BindUser("s1", 7))
	require.NoError(t, r.BindUser("s2", 7))

	assert.True(t, r.AddChannel("s1", "user-7"))
	assert.True(t, r.AddChannel("s1", "chat-3"))
	assert.Equal(t, []domain.ChannelName{"chat-3", "user-7"}, r.ChannelsOf("s1"))
	assert.True(t, r.RemoveChannel("s1", "chat-3"))
	assert.False(t, r.RemoveChannel("s1", "chat-3"))
	assert.True(t, r.AddChannel("s1", "chat-3"))

	channels, uid, ok := r.Unbind("s1")
	require.True(t, ok)
	assert.Equal(t, domain.UserID(7), uid)
	assert.ElementsMatch(t, []domain.ChannelName{"user-7", "chat-3"}, channels)
	assert.True(t, r.IsOnline(7))
	assert.Equal(t, 1, r.Count())

	_, _, ok = r.Unbind("s1")
	assert.False(t, ok)

	r.Unbind("s2")
	assert.False(t, r.IsOnline(7))
	assert.Equal(t, 0, r.Count())
}

func TestRegistryCancel(t *testing.T) {
	r := NewRegistry()
	canceled := false
	r.Bind("s1", newSession(), func() { canceled = true })

	assert.True(t, r.Cancel("s1"))
	assert.True(t, canceled)
	assert.False(t, r.Cancel("nope"))
}
