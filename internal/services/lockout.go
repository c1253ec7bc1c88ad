package services

import (
	"time"

	"github.com/walletverify/backend/internal/config"
	"github.com/walletverify/backend/internal/models"
)

// OTP check outcomes as reported by the verification provider.
const (
	OTPApproved = "approved"
	OTPDenied   = "denied"
	OTPPending  = "pending"
)

// LockoutPolicy is the pure state-transition function over a user's OTP
// failure counters. Persistence is the caller's job (UserStore).
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration

	now func() time.Time
}

func NewLockoutPolicy(cfg *config.OTPConfig) *LockoutPolicy {
	return &LockoutPolicy{
		MaxAttempts:  cfg.MaxAttempts,
		LockDuration: cfg.LockDuration,
		now:          time.Now,
	}
}

// EnsureNotLocked fails with ErrLocked while a lock expiry is set and in
// the future. An expired lock is treated as unlocked, but the failure
// counter is deliberately NOT reset by mere expiry — only an approved
// outcome resets it.
func (p *LockoutPolicy) EnsureNotLocked(u *models.User) error {
	if u.OTPLockedUntil != nil && u.OTPLockedUntil.After(p.now()) {
		return ErrLocked
	}
	return nil
}

// RegisterResult applies one OTP check outcome to the user's counters.
// Approved clears the counter and lock and marks the user verified; any
// other outcome increments the counter and sets the lock expiry once
// the configured maximum is reached.
func (p *LockoutPolicy) RegisterResult(u *models.User, status string) {
	if status == OTPApproved {
		u.OTPFailedAttempts = 0
		u.OTPLockedUntil = nil
		u.Verified = true
		return
	}

	u.OTPFailedAttempts++
	if u.OTPFailedAttempts >= p.MaxAttempts {
		lockedUntil := p.now().Add(p.LockDuration)
		u.OTPLockedUntil = &lockedUntil
	}
}

// LockRemaining reports how long the user must wait, zero when not
// locked. Used to add remaining-time context to Locked replies.
func (p *LockoutPolicy) LockRemaining(u *models.User) time.Duration {
	if u.OTPLockedUntil == nil {
		return 0
	}
	remaining := u.OTPLockedUntil.Sub(p.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}
