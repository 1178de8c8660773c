// Package profit computes net arbitrage profit after layered fees.
//
// All monetary values use shopspring/decimal — never float64 for money.
// The calculator is pure: no I/O, safe for concurrent use.
package profit

import "github.com/shopspring/decimal"

var (
	// CommissionRate is the directory's cut of the buyer payment.
	CommissionRate = decimal.NewFromFloat(0.06)

	// ProcessorRate and ProcessorFixed are the payment-processor fee:
	// 2.9% + $0.30 per charge. This is the single canonical rate; earlier
	// revisions of the system used 3% in one code path, which was an
	// inconsistency rather than a two-tier fee.
	ProcessorRate  = decimal.NewFromFloat(0.029)
	ProcessorFixed = decimal.NewFromFloat(0.30)
)

// sourceFeeRates are the fees the source platforms charge us, as a fraction
// of the source cost. Unknown platforms pay no source-side fee.
var sourceFeeRates = map[string]decimal.Decimal{
	"fiverr":      decimal.NewFromFloat(0.05),
	"upwork":      decimal.NewFromFloat(0.03),
	"rapidapi":    decimal.Zero, // pay-per-call, already in source cost
	"huggingface": decimal.Zero,
	"github":      decimal.Zero,
}

// Breakdown is the full fee and margin decomposition of one arbitrage deal.
type Breakdown struct {
	BuyerPaid  decimal.Decimal `json:"buyer_paid"`
	SourceCost decimal.Decimal `json:"source_cost"`

	Commission   decimal.Decimal `json:"commission"`
	ProcessorFee decimal.Decimal `json:"processor_fee"`
	PlatformFee  decimal.Decimal `json:"platform_fee"`
	TotalCosts   decimal.Decimal `json:"total_costs"`

	GrossProfit decimal.Decimal `json:"gross_profit"`
	NetProfit   decimal.Decimal `json:"net_profit"`

	// ProfitMarginPercent is net profit over buyer payment, times 100.
	// Zero when the buyer paid nothing.
	ProfitMarginPercent decimal.Decimal `json:"profit_margin_percent"`
}

// ComputeNetProfit calculates what the directory actually keeps from a deal:
// buyer payment minus source cost, commission, processor fee, and the source
// platform's own fee.
func ComputeNetProfit(buyerPaid, sourceCost decimal.Decimal, platform string) Breakdown {
	commission := buyerPaid.Mul(CommissionRate)
	processorFee := buyerPaid.Mul(ProcessorRate).Add(ProcessorFixed)

	platformFee := decimal.Zero
	if rate, ok := sourceFeeRates[platform]; ok {
		platformFee = sourceCost.Mul(rate)
	}

	totalCosts := sourceCost.Add(commission).Add(processorFee).Add(platformFee)
	grossProfit := buyerPaid.Sub(sourceCost)
	netProfit := buyerPaid.Sub(totalCosts)

	margin := decimal.Zero
	if buyerPaid.IsPositive() {
		margin = netProfit.Div(buyerPaid).Mul(decimal.NewFromInt(100))
	}

	return Breakdown{
		BuyerPaid:           buyerPaid,
		SourceCost:          sourceCost,
		Commission:          commission,
		ProcessorFee:        processorFee,
		PlatformFee:         platformFee,
		TotalCosts:          totalCosts,
		GrossProfit:         grossProfit,
		NetProfit:           netProfit,
		ProfitMarginPercent: margin,
	}
}
