package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/walletverify/backend/internal/config"
	"github.com/walletverify/backend/internal/models"
)

func newTestPolicy(maxAttempts int, lock time.Duration) *LockoutPolicy {
	return NewLockoutPolicy(&config.OTPConfig{
		MaxAttempts:  maxAttempts,
		LockDuration: lock,
	})
}

func TestLockoutPolicy_LocksAfterMaxDenied(t *testing.T) {
	policy := newTestPolicy(2, time.Minute)
	user := &models.User{Phone: "+5215512345678"}

	policy.RegisterResult(user, OTPDenied)
	assert.Equal(t, 1, user.OTPFailedAttempts)
	assert.Nil(t, user.OTPLockedUntil)
	assert.NoError(t, policy.EnsureNotLocked(user))

	policy.RegisterResult(user, OTPDenied)
	assert.Equal(t, 2, user.OTPFailedAttempts)
	assert.NotNil(t, user.OTPLockedUntil)
	assert.ErrorIs(t, policy.EnsureNotLocked(user), ErrLocked)
	assert.Greater(t, policy.LockRemaining(user), time.Duration(0))
}

func TestLockoutPolicy_ApprovedResetsEverything(t *testing.T) {
	policy := newTestPolicy(2, time.Minute)
	user := &models.User{Phone: "+5215512345678"}

	policy.RegisterResult(user, OTPDenied)
	policy.RegisterResult(user, OTPDenied)
	assert.ErrorIs(t, policy.EnsureNotLocked(user), ErrLocked)

	policy.RegisterResult(user, OTPApproved)
	assert.Equal(t, 0, user.OTPFailedAttempts)
	assert.Nil(t, user.OTPLockedUntil)
	assert.True(t, user.Verified)
	assert.NoError(t, policy.EnsureNotLocked(user))
}

func TestLockoutPolicy_ExpiredLockUnlocksButKeepsCounter(t *testing.T) {
	policy := newTestPolicy(2, time.Minute)
	current := time.Now()
	policy.now = func() time.Time { return current }

	user := &models.User{Phone: "+5215512345678"}
	policy.RegisterResult(user, OTPDenied)
	policy.RegisterResult(user, OTPDenied)
	assert.ErrorIs(t, policy.EnsureNotLocked(user), ErrLocked)

	current = current.Add(2 * time.Minute)
	assert.NoError(t, policy.EnsureNotLocked(user))
	// Counter survives expiry: the very next denial locks again.
	assert.Equal(t, 2, user.OTPFailedAttempts)
	policy.RegisterResult(user, OTPDenied)
	assert.ErrorIs(t, policy.EnsureNotLocked(user), ErrLocked)
}

func TestLockoutPolicy_PendingCountsAsFailure(t *testing.T) {
	policy := newTestPolicy(5, time.Minute)
	user := &models.User{Phone: "+5215512345678"}

	policy.RegisterResult(user, OTPPending)
	assert.Equal(t, 1, user.OTPFailedAttempts)
	assert.False(t, user.Verified)
}
