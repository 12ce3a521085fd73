package stripe

import (
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

// Checkout session event types the storefront reacts to.
const (
	EventCheckoutSessionCompleted             = "checkout.session.completed"
	EventCheckoutSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventCheckoutSessionAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventCheckoutSessionExpired               = "checkout.session.expired"
)

const paymentStatusUnpaid = "unpaid"

// Notification is the verified content of an inbound payment event.
type Notification struct {
	EventID          string
	EventType        string
	SessionID        string
	PaymentReference string
	PaymentStatus    string
	Metadata         map[string]string
}

// OrderID returns the order correlation id carried in the session metadata.
func (n Notification) OrderID() string {
	return strings.TrimSpace(n.Metadata[MetadataOrderID])
}

// OrderReference returns the customer-facing order reference from the metadata.
func (n Notification) OrderReference() string {
	return strings.TrimSpace(n.Metadata[MetadataOrderReference])
}

// BasketSession returns the browser session that started the checkout.
func (n Notification) BasketSession() string {
	return strings.TrimSpace(n.Metadata[MetadataBasketSession])
}

// AwaitingPayment reports whether the session completed without funds captured
// yet, as happens with delayed payment methods.
func (n Notification) AwaitingPayment() bool {
	return n.PaymentStatus == paymentStatusUnpaid
}

// VerifyNotification authenticates payload against the webhook signing secret
// and decodes it. The second return value is false for any payload that fails
// signature verification or cannot be decoded.
func (c *Client) VerifyNotification(payload []byte, signatureHeader string) (Notification, bool) {
	if c == nil {
		return Notification{}, false
	}
	return verifyNotification(payload, signatureHeader, c.signingSecret)
}

func verifyNotification(payload []byte, signatureHeader, secret string) (Notification, bool) {
	if secret == "" || strings.TrimSpace(signatureHeader) == "" || len(payload) == 0 {
		return Notification{}, false
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil || event.ID == "" {
		return Notification{}, false
	}

	notification := Notification{
		EventID:   event.ID,
		EventType: string(event.Type),
	}
	if !strings.HasPrefix(notification.EventType, "checkout.session.") {
		return notification, true
	}
	if event.Data == nil {
		return Notification{}, false
	}

	var checkoutSession stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &checkoutSession); err != nil {
		return Notification{}, false
	}
	notification.SessionID = checkoutSession.ID
	notification.PaymentStatus = string(checkoutSession.PaymentStatus)
	notification.Metadata = checkoutSession.Metadata
	if checkoutSession.PaymentIntent != nil {
		notification.PaymentReference = checkoutSession.PaymentIntent.ID
	}
	return notification, true
}
