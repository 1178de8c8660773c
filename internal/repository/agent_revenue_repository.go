package repository

import (
	"context"
	"errors"

	"github.com/sibysi/agent-directory/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AgentRevenueRepository interface {
	Get(ctx context.Context, agentID string) (*model.AgentRevenue, error)
	Add(ctx context.Context, agentID string, cents int64) error
	SetDB(db *gorm.DB)
}

type agentRevenueRepository struct {
	db *gorm.DB
}

func NewAgentRevenueRepository(db *gorm.DB) AgentRevenueRepository {
	return &agentRevenueRepository{db: db}
}

func (r *agentRevenueRepository) Get(ctx context.Context, agentID string) (*model.AgentRevenue, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var rev model.AgentRevenue
	if err := r.db.WithContext(ctx).First(&rev, "agent_id = ?", agentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.AgentRevenue{AgentID: agentID}, nil
		}
		return nil, err
	}
	return &rev, nil
}

func (r *agentRevenueRepository) Add(ctx context.Context, agentID string, cents int64) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "agent_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"revenue_cents": gorm.Expr("revenue_cents + ?", cents)}),
	}).Create(&model.AgentRevenue{AgentID: agentID, RevenueCents: cents}).Error
}

func (r *agentRevenueRepository) SetDB(db *gorm.DB) {
	r.db = db
}
