package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"elimu_backend/internal/models"
)

// TerminalUpdate carries the audit fields written together with a terminal
// status transition.
type TerminalUpdate struct {
	ResultDesc    string
	ReceiptNumber string
	PaidAt        *time.Time
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.PaymentTransaction) error
	FindByID(ctx context.Context, id string) (*models.PaymentTransaction, error)
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.PaymentTransaction, error)
	FindByReference(ctx context.Context, reference string) (*models.PaymentTransaction, error)

	// MarkTerminal transitions the transaction to a terminal status only if
	// it is still pending, and reports whether this caller won the write.
	MarkTerminal(ctx context.Context, id string, status models.TransactionStatus, upd TerminalUpdate) (bool, error)

	// SweepStalePending moves pending transactions older than maxAge to
	// timeout and returns how many rows were affected.
	SweepStalePending(ctx context.Context, maxAge time.Duration) (int64, error)
}

type gormTransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &gormTransactionRepository{db: db}
}

func (r *gormTransactionRepository) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *gormTransactionRepository) FindByID(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *gormTransactionRepository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := r.db.WithContext(ctx).First(&tx, "checkout_request_id = ?", checkoutRequestID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *gormTransactionRepository) FindByReference(ctx context.Context, reference string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := r.db.WithContext(ctx).First(&tx, "reference = ?", reference).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *gormTransactionRepository) MarkTerminal(ctx context.Context, id string, status models.TransactionStatus, upd TerminalUpdate) (bool, error) {
	fields := map[string]interface{}{
		"status":      status,
		"result_desc": upd.ResultDesc,
	}
	if upd.ReceiptNumber != "" {
		fields["receipt_number"] = upd.ReceiptNumber
	}
	if upd.PaidAt != nil {
		fields["paid_at"] = upd.PaidAt
	}

	// Conditional transition: only a pending row may move. Losing the race
	// affects zero rows, which the caller treats as "already resolved".
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, models.TransactionPending).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormTransactionRepository) SweepStalePending(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("status = ? AND created_at < ?", models.TransactionPending, cutoff).
		Updates(map[string]interface{}{
			"status":      models.TransactionTimeout,
			"result_desc": "no provider outcome within the pending window",
		})
	return res.RowsAffected, res.Error
}
