package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusRefunded   TransactionStatus = "refunded"
)

type FulfillmentStatus string

const (
	FulfillmentStatusPending       FulfillmentStatus = "pending"
	FulfillmentStatusPurchasing    FulfillmentStatus = "purchasing"
	FulfillmentStatusPendingManual FulfillmentStatus = "pending_manual"
	FulfillmentStatusDelivered     FulfillmentStatus = "delivered"
	FulfillmentStatusFailed        FulfillmentStatus = "failed"
	FulfillmentStatusRefunded      FulfillmentStatus = "refunded"
)

// Fulfillment tracks progress through the sourcing/delivery pipeline,
// independent of (but consistent with) the payment status. It replaces the
// free-form metadata bag the strategies used to write into: every field the
// pipeline touches is typed and updated individually.
type Fulfillment struct {
	Status      FulfillmentStatus `gorm:"column:fulfillment_status;size:32;index"`
	StartedAt   *time.Time        `gorm:"column:fulfillment_started_at"`
	CompletedAt *time.Time        `gorm:"column:fulfillment_completed_at"`
	FailedAt    *time.Time        `gorm:"column:fulfillment_failed_at"`
	LastError   string            `gorm:"column:fulfillment_error;type:text"`
	Delivery    datatypes.JSON    `gorm:"column:delivery"`
	RefundID    string            `gorm:"column:refund_id;size:255"`
	RefundedAt  *time.Time        `gorm:"column:refunded_at"`
	RefundError string            `gorm:"column:refund_error;type:text"`
}

type Transaction struct {
	ID            string `gorm:"primaryKey;size:36"`
	BuyerAgentID  string `gorm:"column:buyer_agent_id;size:36;index;not null"`
	SellerAgentID string `gorm:"column:seller_agent_id;size:36;index;not null"`
	ListingID     string `gorm:"column:listing_id;size:36;index;not null"`

	AmountUSD       decimal.Decimal `gorm:"column:amount_usd;type:decimal(12,2);not null"`
	CommissionRate  decimal.Decimal `gorm:"column:commission_rate;type:decimal(6,4);not null"`
	CommissionUSD   decimal.Decimal `gorm:"column:commission_usd;type:decimal(12,2)"`
	SellerPayoutUSD decimal.Decimal `gorm:"column:seller_payout_usd;type:decimal(12,2)"`

	PaymentIntentID string `gorm:"column:payment_intent_id;size:255;index"`

	Status TransactionStatus `gorm:"column:status;size:32;not null;index"`

	// InputData is what the buyer supplied at purchase time; it is forwarded
	// verbatim to the source platform.
	InputData datatypes.JSONMap `gorm:"column:input_data"`

	Fulfillment Fulfillment `gorm:"embedded"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TransactionStatusPending
	}
	if t.Fulfillment.Status == "" {
		t.Fulfillment.Status = FulfillmentStatusPending
	}
	return nil
}

// ComputeCommission fills the commission and seller payout from the amount
// and commission rate.
func (t *Transaction) ComputeCommission() {
	t.CommissionUSD = t.AmountUSD.Mul(t.CommissionRate).Round(2)
	t.SellerPayoutUSD = t.AmountUSD.Sub(t.CommissionUSD)
}
