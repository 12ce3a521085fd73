package stripe

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
)

// Correlation metadata keys written on every checkout session.
const (
	MetadataOrderID        = "order_id"
	MetadataOrderReference = "order_reference"
	MetadataBasketSession  = "basket_session"
)

// CheckoutLine is one priced line on the hosted payment page.
type CheckoutLine struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// CheckoutSessionInput describes a hosted checkout session for one order.
type CheckoutSessionInput struct {
	Lines             []CheckoutLine
	CustomerEmail     string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	Metadata          map[string]string
}

// CheckoutSession is the handle returned by the gateway.
type CheckoutSession struct {
	ID  string
	URL string
}

// CreateCheckoutSession opens a hosted payment session for the given lines.
func (c *Client) CreateCheckoutSession(ctx context.Context, input CheckoutSessionInput) (*CheckoutSession, error) {
	if c == nil || c.createSession == nil {
		return nil, errors.New("stripe client not initialized")
	}
	if len(input.Lines) == 0 {
		return nil, errors.New("checkout session requires at least one line")
	}
	if input.SuccessURL == "" || input.CancelURL == "" {
		return nil, errors.New("checkout session requires success and cancel urls")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(input.SuccessURL),
		CancelURL:  stripe.String(input.CancelURL),
	}
	params.Context = ctx
	if input.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(input.CustomerEmail)
	}
	if input.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(input.ClientReferenceID)
	}
	for key, value := range input.Metadata {
		params.AddMetadata(key, value)
	}

	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			continue
		}
		amount, err := ToMinorUnits(line.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("line %q: %w", line.Name, err)
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(line.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(c.currency),
				UnitAmount: stripe.Int64(amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
			},
		})
	}

	created, err := c.createSession(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe checkout session: %w", err)
	}
	return &CheckoutSession{ID: created.ID, URL: created.URL}, nil
}

// ToMinorUnits converts a two-decimal currency amount into integer minor units.
// Amounts with sub-penny precision are rejected rather than rounded.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount %s is negative", amount.String())
	}
	shifted := amount.Shift(2)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than two decimal places", amount.String())
	}
	return shifted.IntPart(), nil
}
