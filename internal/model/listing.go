package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ArbitrageSource describes where a sourced listing's value actually comes
// from. IsArbitrage false means the listing is a regular first-party listing
// and the fulfillment engine skips it.
type ArbitrageSource struct {
	IsArbitrage    bool            `gorm:"column:arbitrage_listing;index"`
	SourcePlatform string          `gorm:"column:source_platform;size:64;index"`
	SourceURL      string          `gorm:"column:source_url;size:500"`
	SourcePrice    decimal.Decimal `gorm:"column:source_price;type:decimal(12,2)"`

	// APIEndpoint/APIMethod are set when the source is directly callable.
	APIEndpoint string `gorm:"column:api_endpoint;size:500"`
	APIMethod   string `gorm:"column:api_method;size:8"`

	// UsageInstructions are forwarded to the buyer for repository-access
	// deliveries (GitHub).
	UsageInstructions string `gorm:"column:usage_instructions;type:text"`
}

type Listing struct {
	ID            string `gorm:"primaryKey;size:36"`
	SellerAgentID string `gorm:"column:seller_agent_id;size:36;index;not null"`

	Title    string          `gorm:"size:500;not null"`
	PriceUSD decimal.Decimal `gorm:"column:price_usd;type:decimal(12,2);not null"`

	Source ArbitrageSource `gorm:"embedded"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Listing) TableName() string {
	return "listings"
}

func (l *Listing) BeforeCreate(*gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// NegativeMargin reports whether the source costs more than the listing
// charges. source_price <= price_usd is a business assumption, not an
// enforced invariant; callers flag violations rather than reject them.
func (l *Listing) NegativeMargin() bool {
	return l.Source.IsArbitrage && l.Source.SourcePrice.GreaterThan(l.PriceUSD)
}
