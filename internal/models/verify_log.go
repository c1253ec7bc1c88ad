package models

import "time"

// VerifyLog records every OTP challenge start and check against the
// verification provider, including provider failures.
type VerifyLog struct {
	ID        int       `json:"id" db:"id"`
	UserID    string    `json:"user_id,omitempty" db:"user_id"`
	Phone     string    `json:"phone" db:"phone"`
	VerifySID string    `json:"verify_sid,omitempty" db:"verify_sid"`
	Channel   string    `json:"channel" db:"channel"`
	Status    string    `json:"status" db:"status"`
	Detail    string    `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// LookupLog records carrier/line-type lookups done before an OTP
// challenge is started for a new inbound request.
type LookupLog struct {
	ID        int       `json:"id" db:"id"`
	UserID    string    `json:"user_id,omitempty" db:"user_id"`
	Phone     string    `json:"phone" db:"phone"`
	LineType  string    `json:"line_type,omitempty" db:"line_type"`
	Detail    string    `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
