package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ManualTaskStatus string

const (
	ManualTaskStatusPending   ManualTaskStatus = "pending_human_action"
	ManualTaskStatusCompleted ManualTaskStatus = "completed"
)

// ManualFulfillmentTask is a durable work item for a human operator: visit
// the source platform, purchase within budget, and forward the delivery.
// One row per transaction; completion is a conditional status flip so two
// operators can never both claim it.
type ManualFulfillmentTask struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	TransactionID string `gorm:"column:transaction_id;size:36;uniqueIndex;not null"`
	BuyerAgentID  string `gorm:"column:buyer_agent_id;size:36;not null"`
	ListingID     string `gorm:"column:listing_id;size:36;not null"`

	ServiceName    string          `gorm:"column:service_name;size:500"`
	SourcePlatform string          `gorm:"column:source_platform;size:64"`
	SourceURL      string          `gorm:"column:source_url;size:500"`
	SourcePrice    decimal.Decimal `gorm:"column:source_price;type:decimal(12,2)"`
	BuyerPaid      decimal.Decimal `gorm:"column:buyer_paid;type:decimal(12,2)"`

	BuyerInput   datatypes.JSONMap `gorm:"column:buyer_input"`
	Instructions string            `gorm:"column:instructions;type:text"`

	Status      ManualTaskStatus `gorm:"column:status;size:32;not null;index"`
	Delivery    datatypes.JSON   `gorm:"column:delivery"`
	CompletedAt *time.Time       `gorm:"column:completed_at"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ManualFulfillmentTask) TableName() string {
	return "manual_fulfillment_tasks"
}
