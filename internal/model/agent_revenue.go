package model

import "time"

// AgentRevenue is the per-agent payout ledger. Seller payouts are credited
// here when a transaction is delivered; the actual Stripe transfer is
// handled by the payments layer outside this engine.
type AgentRevenue struct {
	AgentID      string    `gorm:"column:agent_id;primaryKey;size:36"`
	RevenueCents int64     `gorm:"column:revenue_cents;not null;default:0"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (AgentRevenue) TableName() string {
	return "agent_revenues"
}
