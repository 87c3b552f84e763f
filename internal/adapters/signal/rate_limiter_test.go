package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, time.Second)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("a"))
	}
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "limits are per connection")

	now = now.Add(1100 * time.Millisecond)
	assert.True(t, rl.Allow("a"))

	rl.Forget("a")
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("a"))
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	var nilLimiter *RateLimiter
	assert.True(t, nilLimiter.Allow("a"))
	nilLimiter.Forget("a")

	off := NewRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		assert.True(t, off.Allow("a"))
	}
}
