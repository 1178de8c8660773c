// Package payment wraps the payment processor for the one operation the
// fulfillment engine needs: compensating refunds.
package payment

import "context"

// Refund is the processor's record of a completed refund.
type Refund struct {
	ID string
}

// Client is injected into the fulfillment engine so tests can substitute a
// fake and so no package-level processor state exists.
type Client interface {
	// CreateRefund refunds the full captured payment. reason is recorded
	// with the refund for reconciliation; it is not retried on failure.
	CreateRefund(ctx context.Context, paymentIntentID, reason string) (*Refund, error)
}
