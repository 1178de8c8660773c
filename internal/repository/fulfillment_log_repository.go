package repository

import (
	"context"

	"github.com/sibysi/agent-directory/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FulfillmentLogRepository appends audit records. Rows are write-once:
// there is deliberately no update or delete operation here.
type FulfillmentLogRepository interface {
	Append(ctx context.Context, transactionID, status string, details datatypes.JSON) error
	CountByStatus(ctx context.Context, status string) (int64, error)
	ListByTransaction(ctx context.Context, transactionID string) ([]model.FulfillmentLogEntry, error)
	SetDB(db *gorm.DB)
}

type fulfillmentLogRepository struct {
	db *gorm.DB
}

func NewFulfillmentLogRepository(db *gorm.DB) FulfillmentLogRepository {
	return &fulfillmentLogRepository{db: db}
}

func (r *fulfillmentLogRepository) Append(ctx context.Context, transactionID, status string, details datatypes.JSON) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(&model.FulfillmentLogEntry{
		TransactionID: transactionID,
		Status:        status,
		Details:       details,
	}).Error
}

func (r *fulfillmentLogRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.FulfillmentLogEntry{}).
		Where("status = ?", status).
		Count(&n).Error
	return n, err
}

func (r *fulfillmentLogRepository) ListByTransaction(ctx context.Context, transactionID string) ([]model.FulfillmentLogEntry, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var entries []model.FulfillmentLogEntry
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *fulfillmentLogRepository) SetDB(db *gorm.DB) {
	r.db = db
}
