package wallet

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeGateway charges top-ups with a confirmed PaymentIntent.
type StripeGateway struct {
	currency string
}

func NewStripeGateway(apiKey, currency string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{currency: currency}
}

// Charge returns the PaymentIntent id once the charge has succeeded.
func (g *StripeGateway) Charge(ctx context.Context, c Charge) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(c.Amount * 100),
		Currency:      stripe.String(g.currency),
		PaymentMethod: stripe.String(c.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String("wallet top-up"),
	}
	params.Context = ctx
	params.AddMetadata("user_id", string(c.UserID))
	if c.IdempotencyKey != "" {
		params.SetIdempotencyKey(c.IdempotencyKey)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return "", fmt.Errorf("payment intent %s is %s", pi.ID, pi.Status)
	}
	return pi.ID, nil
}
