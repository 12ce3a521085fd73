package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/emberandwick/storefront-backend/api/responses"
	stripewebhook "github.com/emberandwick/storefront-backend/internal/webhooks/stripe"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
	"github.com/emberandwick/storefront-backend/pkg/logger"
	"github.com/emberandwick/storefront-backend/pkg/metrics"
	pkgstripe "github.com/emberandwick/storefront-backend/pkg/stripe"
)

const maxPayloadBytes = 64 << 10

const resultDuplicate = "duplicate"

type StripeWebhookService interface {
	HandleNotification(ctx context.Context, n pkgstripe.Notification) (stripewebhook.Result, error)
}

type WebhookGuard interface {
	Claim(ctx context.Context, eventID string) (stripewebhook.ClaimState, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type NotificationVerifier interface {
	VerifyNotification(payload []byte, signatureHeader string) (pkgstripe.Notification, bool)
}

type webhookAck struct {
	Received bool   `json:"received"`
	Result   string `json:"result"`
}

// StripeWebhook receives checkout session notifications. Unverified payloads
// are rejected before anything else is read. Redeliveries of a finished event
// are acknowledged without reprocessing.
func StripeWebhook(svc StripeWebhookService, verifier NotificationVerifier, guard WebhookGuard, m *metrics.OrderMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || verifier == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment webhook not configured"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		notification, ok := verifier.VerifyNotification(payload, r.Header.Get("Stripe-Signature"))
		if !ok {
			m.WebhookEvent("unverified", metrics.OutcomeFailure)
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInvalidSignature, "payment notification failed verification"))
			return
		}
		if logg != nil {
			ctx = logg.WithEvent(ctx, notification.EventID, notification.EventType)
		}

		claim, err := guard.Claim(ctx, notification.EventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		switch claim {
		case stripewebhook.ClaimProcessed:
			m.WebhookEvent(notification.EventType, metrics.OutcomeSkipped)
			responses.WriteSuccess(w, webhookAck{Received: true, Result: resultDuplicate})
			return
		case stripewebhook.ClaimInFlight:
			// Non-2xx makes the gateway redeliver once the first attempt settles.
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "event is being processed"))
			return
		}

		result, err := svc.HandleNotification(ctx, notification)
		if err != nil {
			if relErr := guard.Release(ctx, notification.EventID); relErr != nil && logg != nil {
				logg.Error(ctx, "release webhook event claim", relErr)
			}
			m.WebhookEvent(notification.EventType, metrics.OutcomeFailure)
			if pkgerrors.As(err) == nil {
				err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "process payment notification")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := guard.Complete(ctx, notification.EventID); err != nil && logg != nil {
			logg.Error(ctx, "mark webhook event processed", err)
		}

		m.WebhookEvent(notification.EventType, metrics.OutcomeSuccess)
		if logg != nil {
			logg.Info(logg.WithField(ctx, "result", string(result)), "payment notification processed")
		}
		responses.WriteSuccess(w, webhookAck{Received: true, Result: string(result)})
	}
}
