package services

import (
	"encoding/json"
	"log"
	"time"
)

type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

// AuditLogger emits structured audit lines for funds movements and
// request executions.
type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

func (a *AuditLogger) LogTransfer(transactionID, payerWallet, destination string, amount float64, currency, status string) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "TRANSFER",
		TransactionID: transactionID,
		Status:        status,
		Details: map[string]any{
			"payer_wallet":        payerWallet,
			"destination_account": destination,
			"amount":              amount,
			"currency":            currency,
		},
	})
}

func (a *AuditLogger) LogExecution(requestID, intent, status string) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: "EXECUTION",
		RequestID: requestID,
		Status:    status,
		Details:   map[string]string{"intent": intent},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
