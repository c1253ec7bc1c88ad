package models

import "time"

type Wallet struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Balance   float64   `json:"balance" db:"balance"`
	Currency  string    `json:"currency" db:"currency"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Transaction is the immutable record of a completed ledger operation.
// For a given non-empty ClientTxID at most one row exists; a repeated
// transfer with the same key returns the original row unchanged.
type Transaction struct {
	ID                 string    `json:"id" db:"id"`
	PayerWalletID      string    `json:"payer_wallet_id" db:"payer_wallet_id"`
	DestinationAccount string    `json:"destination_account" db:"destination_account"`
	Amount             float64   `json:"amount" db:"amount"`
	Currency           string    `json:"currency" db:"currency"`
	Concept            string    `json:"concept" db:"concept"`
	Status             string    `json:"status" db:"status"`
	ClientTxID         string    `json:"client_tx_id,omitempty" db:"client_tx_id"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
}
