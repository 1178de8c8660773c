package repository

import (
	"context"
	"time"

	"github.com/sibysi/agent-directory/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ManualTaskRepository owns the manual fulfillment queue. Completion is a
// single conditional UPDATE keyed by transaction id, so finishing one task
// can never lose or reorder unrelated pending entries.
type ManualTaskRepository interface {
	Enqueue(ctx context.Context, task *model.ManualFulfillmentTask) error
	ListPending(ctx context.Context) ([]model.ManualFulfillmentTask, error)
	FindPendingByTransactionID(ctx context.Context, transactionID string) (*model.ManualFulfillmentTask, error)

	// Complete flips pending_human_action → completed and stores the
	// delivery. Zero rows means no pending task exists for the transaction.
	Complete(ctx context.Context, transactionID string, delivery datatypes.JSON, completedAt time.Time) (int64, error)

	SetDB(db *gorm.DB)
}

type manualTaskRepository struct {
	db *gorm.DB
}

func NewManualTaskRepository(db *gorm.DB) ManualTaskRepository {
	return &manualTaskRepository{db: db}
}

func (r *manualTaskRepository) Enqueue(ctx context.Context, task *model.ManualFulfillmentTask) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *manualTaskRepository) ListPending(ctx context.Context) ([]model.ManualFulfillmentTask, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var tasks []model.ManualFulfillmentTask
	if err := r.db.WithContext(ctx).
		Where("status = ?", model.ManualTaskStatusPending).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *manualTaskRepository) FindPendingByTransactionID(ctx context.Context, transactionID string) (*model.ManualFulfillmentTask, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var task model.ManualFulfillmentTask
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ? AND status = ?", transactionID, model.ManualTaskStatusPending).
		First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *manualTaskRepository) Complete(ctx context.Context, transactionID string, delivery datatypes.JSON, completedAt time.Time) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.ManualFulfillmentTask{}).
		Where("transaction_id = ? AND status = ?", transactionID, model.ManualTaskStatusPending).
		Updates(map[string]interface{}{
			"status":       model.ManualTaskStatusCompleted,
			"delivery":     delivery,
			"completed_at": completedAt,
		})
	return res.RowsAffected, res.Error
}

func (r *manualTaskRepository) SetDB(db *gorm.DB) {
	r.db = db
}
