package payment

import (
	"context"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// StripeClient implements Client against the Stripe API.
type StripeClient struct {
	api *client.API
}

// NewStripeClient builds a Stripe-backed payment client. The key is required;
// construction fails rather than producing a client that errors on first use.
func NewStripeClient(secretKey string) (*StripeClient, error) {
	if secretKey == "" {
		return nil, errors.New("payment: stripe secret key not configured")
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeClient{api: api}, nil
}

func (c *StripeClient) CreateRefund(ctx context.Context, paymentIntentID, reason string) (*Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.AddMetadata("failure_reason", reason)

	r, err := c.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe refund for %s: %w", paymentIntentID, err)
	}
	return &Refund{ID: r.ID}, nil
}
