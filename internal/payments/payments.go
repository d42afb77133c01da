// Package payments gates subscription activation on a successful charge.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

var (
	ErrNotConfigured = errors.New("payment processor not configured")
	ErrDeclined      = errors.New("payment declined")
)

type Processor interface {
	// Charge attempts to collect amountCents with the given payment method
	// and returns the processor's payment id. ErrDeclined means the method
	// was rejected; anything else is a processor failure.
	Charge(ctx context.Context, method string, amountCents int, currency, description string) (string, error)
}

// Stripe charges through a confirmed PaymentIntent.
type Stripe struct {
	secretKey string
}

func NewStripe(secretKey string) *Stripe {
	return &Stripe{secretKey: secretKey}
}

func (s *Stripe) Charge(ctx context.Context, method string, amountCents int, currency, description string) (string, error) {
	if s.secretKey == "" {
		return "", ErrNotConfigured
	}
	stripe.Key = s.secretKey

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(int64(amountCents)),
		Currency:      stripe.String(currency),
		PaymentMethod: stripe.String(method),
		Description:   stripe.String(description),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx

	intent, err := paymentintent.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeCardDeclined {
			return "", fmt.Errorf("%w: %s", ErrDeclined, stripeErr.Msg)
		}
		return "", err
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return "", fmt.Errorf("%w: intent status %s", ErrDeclined, intent.Status)
	}
	return intent.ID, nil
}
