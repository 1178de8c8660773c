package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sibysi/agent-directory/internal/repository"
)

// RevenueService keeps the per-agent payout ledger. Seller payouts land
// here when a transaction is delivered; actual transfers are the payments
// layer's job.
type RevenueService interface {
	Get(ctx context.Context, agentID string) (int64, error)
	Credit(ctx context.Context, agentID string, amountUSD decimal.Decimal) error
}

type revenueService struct {
	repo repository.AgentRevenueRepository
}

func NewRevenueService(repo repository.AgentRevenueRepository) RevenueService {
	return &revenueService{repo: repo}
}

func (s *revenueService) Get(ctx context.Context, agentID string) (int64, error) {
	if agentID == "" {
		return 0, errors.New("agent id is required")
	}
	r, err := s.repo.Get(ctx, agentID)
	if err != nil {
		return 0, err
	}
	return r.RevenueCents, nil
}

func (s *revenueService) Credit(ctx context.Context, agentID string, amountUSD decimal.Decimal) error {
	if agentID == "" || !amountUSD.IsPositive() {
		return nil
	}
	cents := amountUSD.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return s.repo.Add(ctx, agentID, cents)
}
