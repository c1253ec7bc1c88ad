package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/walletverify/backend/internal/models"
)

// UserStore persists phone-identified users and their OTP counters.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// GetOrCreateByPhone resolves the user for an E.164 phone, creating an
// unverified record on first contact.
func (s *UserStore) GetOrCreateByPhone(ctx context.Context, phone string) (*models.User, error) {
	user, err := s.getByPhone(ctx, phone)
	if err == nil {
		return user, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	user = &models.User{
		ID:           uuid.NewString(),
		Phone:        phone,
		Verified:     false,
		RegisteredAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, phone, verified, otp_failed_attempts, registered_at)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (phone) DO NOTHING
	`, user.ID, user.Phone, user.Verified, user.RegisteredAt)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	// Re-read to settle a concurrent create for the same phone.
	return s.getByPhone(ctx, phone)
}

func (s *UserStore) getByPhone(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, phone, COALESCE(name, ''), verified, otp_failed_attempts, otp_locked_until, registered_at
		FROM users
		WHERE phone = $1
	`, phone).Scan(&user.ID, &user.Phone, &user.Name, &user.Verified,
		&user.OTPFailedAttempts, &user.OTPLockedUntil, &user.RegisteredAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SaveOTPState persists the fields LockoutPolicy mutates.
func (s *UserStore) SaveOTPState(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET verified = $1, otp_failed_attempts = $2, otp_locked_until = $3
		WHERE id = $4
	`, u.Verified, u.OTPFailedAttempts, u.OTPLockedUntil, u.ID)
	if err != nil {
		return fmt.Errorf("saving otp state: %w", err)
	}
	return nil
}
