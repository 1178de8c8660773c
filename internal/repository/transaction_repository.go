package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sibysi/agent-directory/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrDBNotReady = errors.New("database not initialized")

// TransactionRepository persists transactions. Lifecycle transitions are
// conditional UPDATEs (status guard in the WHERE clause, RowsAffected
// checked by the caller) so concurrent processors can never both move the
// same transaction.
type TransactionRepository interface {
	Create(ctx context.Context, t *model.Transaction) error
	FindByID(ctx context.Context, id string) (*model.Transaction, error)

	// ClaimForProcessing moves pending → processing and stamps the
	// fulfillment start. Zero rows means another caller already claimed it
	// (or the transaction is past pending).
	ClaimForProcessing(ctx context.Context, id string, startedAt time.Time) (int64, error)

	// CompleteDelivery moves processing → completed/delivered with the
	// delivery payload. Zero rows means the transaction was not processing.
	CompleteDelivery(ctx context.Context, id string, delivery datatypes.JSON, completedAt time.Time) (int64, error)

	// MarkPendingManual keeps the transaction processing but flags the
	// fulfillment sub-status as waiting on a human.
	MarkPendingManual(ctx context.Context, id string) error

	MarkFailed(ctx context.Context, id, errMsg string, failedAt time.Time) error
	MarkRefunded(ctx context.Context, id, refundID string, refundedAt time.Time) error
	RecordRefundError(ctx context.Context, id, errMsg string) error

	ListDelivered(ctx context.Context) ([]model.Transaction, error)
	SetDB(db *gorm.DB)
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, t *model.Transaction) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *transactionRepository) FindByID(ctx context.Context, id string) (*model.Transaction, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var t model.Transaction
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transactionRepository) ClaimForProcessing(ctx context.Context, id string, startedAt time.Time) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, model.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":                 model.TransactionStatusProcessing,
			"fulfillment_status":     model.FulfillmentStatusPurchasing,
			"fulfillment_started_at": startedAt,
		})
	return res.RowsAffected, res.Error
}

func (r *transactionRepository) CompleteDelivery(ctx context.Context, id string, delivery datatypes.JSON, completedAt time.Time) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, model.TransactionStatusProcessing).
		Updates(map[string]interface{}{
			"status":                   model.TransactionStatusCompleted,
			"fulfillment_status":       model.FulfillmentStatusDelivered,
			"fulfillment_completed_at": completedAt,
			"delivery":                 delivery,
		})
	return res.RowsAffected, res.Error
}

func (r *transactionRepository) MarkPendingManual(ctx context.Context, id string) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, model.TransactionStatusProcessing).
		Update("fulfillment_status", model.FulfillmentStatusPendingManual).Error
}

func (r *transactionRepository) MarkFailed(ctx context.Context, id, errMsg string, failedAt time.Time) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":                model.TransactionStatusFailed,
			"fulfillment_status":    model.FulfillmentStatusFailed,
			"fulfillment_error":     errMsg,
			"fulfillment_failed_at": failedAt,
		}).Error
}

func (r *transactionRepository) MarkRefunded(ctx context.Context, id, refundID string, refundedAt time.Time) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	// Refunded is reachable only from failed.
	return r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, model.TransactionStatusFailed).
		Updates(map[string]interface{}{
			"status":             model.TransactionStatusRefunded,
			"fulfillment_status": model.FulfillmentStatusRefunded,
			"refund_id":          refundID,
			"refunded_at":        refundedAt,
		}).Error
}

func (r *transactionRepository) RecordRefundError(ctx context.Context, id, errMsg string) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ?", id).
		Update("refund_error", errMsg).Error
}

func (r *transactionRepository) ListDelivered(ctx context.Context) ([]model.Transaction, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Transaction
	if err := r.db.WithContext(ctx).
		Where("fulfillment_status = ?", model.FulfillmentStatusDelivered).
		Order("fulfillment_completed_at DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *transactionRepository) SetDB(db *gorm.DB) {
	r.db = db
}
