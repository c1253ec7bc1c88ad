package models

import "time"

// User is identified by its E.164 phone number. Created lazily on the
// first inbound message or API call for an unseen phone; never deleted.
type User struct {
	ID                string     `json:"id" db:"id"`
	Phone             string     `json:"phone" db:"phone" example:"+5215512345678"`
	Name              string     `json:"name,omitempty" db:"name"`
	Verified          bool       `json:"verified" db:"verified"`
	OTPFailedAttempts int        `json:"otp_failed_attempts" db:"otp_failed_attempts"`
	OTPLockedUntil    *time.Time `json:"otp_locked_until,omitempty" db:"otp_locked_until"`
	RegisteredAt      time.Time  `json:"registered_at" db:"registered_at"`
}
