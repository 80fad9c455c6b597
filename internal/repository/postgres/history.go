package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/platewise/cartpay/internal/domain"
	"github.com/platewise/cartpay/pkg/database"
)

// HistoryRepository implements repository.PaymentHistoryRepository on
// PostgreSQL. The payment_attempts table is append-only: this repository
// issues no UPDATE or DELETE statements.
type HistoryRepository struct {
	db database.DBTX
}

// NewHistoryRepository creates a PostgreSQL-backed payment history repository.
func NewHistoryRepository(db database.DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append records one payment attempt.
func (r *HistoryRepository) Append(ctx context.Context, attempt *domain.PaymentAttempt) error {
	query := `
		INSERT INTO payment_attempts (
			id, user_id, gateway_order_id, payment_id,
			status, error_code, attempt_number,
			amount_minor, currency, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10
		)`

	_, err := r.db.Exec(ctx, query,
		attempt.ID,
		attempt.UserID,
		nullableString(attempt.GatewayOrderID),
		nullableString(attempt.PaymentID),
		string(attempt.Status),
		nullableString(attempt.ErrorCode),
		attempt.AttemptNumber,
		attempt.AmountMinor,
		attempt.Currency,
		attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment attempt: %w", err)
	}

	return nil
}

// ListRecent returns a user's most recent attempts, newest first.
func (r *HistoryRepository) ListRecent(ctx context.Context, userID string, limit int) ([]domain.PaymentAttempt, error) {
	query := `
		SELECT id, user_id, gateway_order_id, payment_id,
			status, error_code, attempt_number,
			amount_minor, currency, created_at
		FROM payment_attempts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list payment attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.PaymentAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment attempt row: %w", err)
		}
		attempts = append(attempts, *attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment attempt rows: %w", err)
	}

	if attempts == nil {
		attempts = []domain.PaymentAttempt{}
	}

	return attempts, nil
}

func scanAttempt(rows pgx.Rows) (*domain.PaymentAttempt, error) {
	var (
		attempt        domain.PaymentAttempt
		gatewayOrderID *string
		paymentID      *string
		errorCode      *string
		status         string
	)

	if err := rows.Scan(
		&attempt.ID,
		&attempt.UserID,
		&gatewayOrderID,
		&paymentID,
		&status,
		&errorCode,
		&attempt.AttemptNumber,
		&attempt.AmountMinor,
		&attempt.Currency,
		&attempt.CreatedAt,
	); err != nil {
		return nil, err
	}

	attempt.Status = domain.AttemptStatus(status)
	if gatewayOrderID != nil {
		attempt.GatewayOrderID = *gatewayOrderID
	}
	if paymentID != nil {
		attempt.PaymentID = *paymentID
	}
	if errorCode != nil {
		attempt.ErrorCode = *errorCode
	}

	return &attempt, nil
}

// nullableString returns nil for an empty string, otherwise a pointer.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
