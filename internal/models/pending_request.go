package models

import "time"

// PendingRequest statuses. Transitions are monotonic:
// pending -> approved -> executed, with failed reachable from approved.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestExecuted = "executed"
	RequestFailed   = "failed"
)

// PendingRequest is one inbound textual request awaiting OTP approval
// and execution. Rows are kept forever as an audit trail.
type PendingRequest struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Phone       string    `json:"phone" db:"phone"`
	MessageText string    `json:"message_text" db:"message_text"`
	Status      string    `json:"status" db:"status"`
	ResultText  string    `json:"result_text,omitempty" db:"result_text"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
