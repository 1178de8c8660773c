package model

import (
	"time"

	"gorm.io/datatypes"
)

// Fulfillment log status labels. One row is appended per terminal or
// manual-completion event; rows are never updated or deleted.
const (
	LogStatusSuccess        = "success"
	LogStatusFailed         = "failed"
	LogStatusManualComplete = "manual_complete"
)

type FulfillmentLogEntry struct {
	ID            uint64         `gorm:"primaryKey;autoIncrement"`
	TransactionID string         `gorm:"column:transaction_id;size:36;index;not null"`
	Status        string         `gorm:"column:status;size:32;not null;index"`
	Details       datatypes.JSON `gorm:"column:details"`
	CreatedAt     time.Time      `gorm:"autoCreateTime;index"`
}

func (FulfillmentLogEntry) TableName() string {
	return "fulfillment_log"
}
