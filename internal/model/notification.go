package model

import "time"

// Notification types emitted by the fulfillment engine.
const (
	NotificationTypeDelivered = "fulfillment_delivered"
	NotificationTypeFailed    = "fulfillment_failed"
	NotificationTypeRefunded  = "fulfillment_refunded"
)

type Notification struct {
	ID            uint64     `gorm:"primaryKey;autoIncrement"`
	AgentID       string     `gorm:"column:agent_id;size:36;index;not null"`
	Type          string     `gorm:"column:type;size:64;not null"`
	Title         string     `gorm:"column:title;size:255"`
	Body          string     `gorm:"column:body;type:text"`
	TransactionID *string    `gorm:"column:transaction_id;size:36;index"`
	ReadAt        *time.Time `gorm:"column:read_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
}

func (Notification) TableName() string {
	return "notifications"
}
