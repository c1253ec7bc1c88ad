package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/walletverify/backend/internal/models"
)

// PendingRequestStore is the durable table of in-flight requests. All
// transitions are monotonic and guarded by conditional updates so a
// request is approved and executed at most once even when two approval
// signals race. Rows are never deleted.
type PendingRequestStore struct {
	db *sql.DB
}

func NewPendingRequestStore(db *sql.DB) *PendingRequestStore {
	return &PendingRequestStore{db: db}
}

func (s *PendingRequestStore) Create(ctx context.Context, userID, phone, text string) (*models.PendingRequest, error) {
	pr := &models.PendingRequest{
		ID:          uuid.NewString(),
		UserID:      userID,
		Phone:       phone,
		MessageText: text,
		Status:      models.RequestPending,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_requests (id, user_id, phone, message_text, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, pr.ID, pr.UserID, pr.Phone, pr.MessageText, pr.Status, pr.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating pending request: %w", err)
	}
	return pr, nil
}

// OldestPending returns the FIFO head for a phone, nil when none.
// Creation-time order with id as the tie-breaker.
func (s *PendingRequestStore) OldestPending(ctx context.Context, phone string) (*models.PendingRequest, error) {
	var pr models.PendingRequest
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, phone, message_text, status, COALESCE(result_text, ''), created_at
		FROM pending_requests
		WHERE phone = $1 AND status = $2
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, phone, models.RequestPending).Scan(&pr.ID, &pr.UserID, &pr.Phone,
		&pr.MessageText, &pr.Status, &pr.ResultText, &pr.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying oldest pending: %w", err)
	}
	return &pr, nil
}

// MarkApproved transitions pending -> approved. The losing side of a
// duplicate-confirmation race gets ErrRequestConflict.
func (s *PendingRequestStore) MarkApproved(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_requests SET status = $1 WHERE id = $2 AND status = $3
	`, models.RequestApproved, id, models.RequestPending)
	if err != nil {
		return fmt.Errorf("approving request: %w", err)
	}
	return requireOneRow(res)
}

// GetForUpdateTx loads a request inside the caller's transaction with a
// row lock, serializing duplicate execution triggers for the same id.
func (s *PendingRequestStore) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*models.PendingRequest, error) {
	var pr models.PendingRequest
	err := tx.QueryRowContext(ctx, `
		SELECT id, user_id, phone, message_text, status, COALESCE(result_text, ''), created_at
		FROM pending_requests
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&pr.ID, &pr.UserID, &pr.Phone, &pr.MessageText,
		&pr.Status, &pr.ResultText, &pr.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("locking request: %w", err)
	}
	return &pr, nil
}

// MarkExecutedTx transitions approved -> executed within the caller's
// transaction, recording the result text for the audit trail.
func (s *PendingRequestStore) MarkExecutedTx(ctx context.Context, tx *sql.Tx, id, resultText string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE pending_requests SET status = $1, result_text = $2 WHERE id = $3 AND status = $4
	`, models.RequestExecuted, resultText, id, models.RequestApproved)
	if err != nil {
		return fmt.Errorf("marking executed: %w", err)
	}
	return requireOneRow(res)
}

// MarkFailedTx transitions approved -> failed (terminal).
func (s *PendingRequestStore) MarkFailedTx(ctx context.Context, tx *sql.Tx, id, resultText string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE pending_requests SET status = $1, result_text = $2 WHERE id = $3 AND status = $4
	`, models.RequestFailed, resultText, id, models.RequestApproved)
	if err != nil {
		return fmt.Errorf("marking failed: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRequestConflict
	}
	return nil
}
