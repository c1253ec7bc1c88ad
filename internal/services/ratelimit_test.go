package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_RejectsBeyondLimit(t *testing.T) {
	rl := NewRateLimiter()
	key := "wa:+5215512345678"
	limit := 3

	for i := 0; i < limit; i++ {
		assert.NoError(t, rl.Check(key, limit, time.Minute))
	}

	err := rl.Check(key, limit, time.Minute)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	// Rejections keep rejecting within the same window.
	err = rl.Check(key, limit, time.Minute)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
}

func TestRateLimiter_CapacityRestoredAfterWindow(t *testing.T) {
	rl := NewRateLimiter()
	current := time.Now()
	rl.now = func() time.Time { return current }

	key := "verify_send:+5215512345678"
	limit := 2

	assert.NoError(t, rl.Check(key, limit, time.Minute))
	assert.NoError(t, rl.Check(key, limit, time.Minute))
	assert.ErrorIs(t, rl.Check(key, limit, time.Minute), ErrRateLimitExceeded)

	current = current.Add(61 * time.Second)
	assert.NoError(t, rl.Check(key, limit, time.Minute))
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter()

	assert.NoError(t, rl.Check("wa:+521", 1, time.Minute))
	assert.ErrorIs(t, rl.Check("wa:+521", 1, time.Minute), ErrRateLimitExceeded)
	assert.NoError(t, rl.Check("wa:+522", 1, time.Minute))
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := NewRateLimiter()

	assert.NoError(t, rl.Check("k", 1, time.Minute))
	assert.ErrorIs(t, rl.Check("k", 1, time.Minute), ErrRateLimitExceeded)

	rl.Reset()
	assert.NoError(t, rl.Check("k", 1, time.Minute))
}
