package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	"github.com/emberandwick/storefront-backend/pkg/config"
	"github.com/emberandwick/storefront-backend/pkg/logger"
)

const defaultCurrency = "gbp"

// keyRules lists the accepted secret and publishable key prefixes per Stripe
// environment. Restricted keys (rk_) are allowed alongside secret keys.
var keyRules = map[string]struct {
	secret      []string
	publishable string
}{
	"test": {secret: []string{"sk_test_", "rk_test_"}, publishable: "pk_test_"},
	"live": {secret: []string{"sk_live_", "rk_live_"}, publishable: "pk_live_"},
}

var (
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = errors.New(`stripe environment must be "test" or "live"`)
)

type sessionCreator func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

// Client is the payment gateway adapter. It opens hosted checkout sessions
// and verifies inbound payment notifications.
type Client struct {
	environment    string
	signingSecret  string
	publishableKey string
	currency       string
	createSession  sessionCreator
}

// NewClient checks that the configured keys belong to the configured
// environment and sets the process-wide Stripe API key.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	rules, ok := keyRules[env]
	if !ok {
		return nil, errInvalidStripeEnv
	}

	secretKey := strings.TrimSpace(cfg.SecretKey)
	publishable := strings.TrimSpace(cfg.PublishableKey)
	signing := strings.TrimSpace(cfg.WebhookSecret)

	var problems []error
	if !hasAnyPrefix(secretKey, rules.secret...) {
		problems = append(problems, fmt.Errorf("secret key must start with one of %v in %s mode", rules.secret, env))
	}
	if !strings.HasPrefix(publishable, rules.publishable) {
		problems = append(problems, fmt.Errorf("publishable key must start with %s in %s mode", rules.publishable, env))
	}
	if signing == "" {
		problems = append(problems, errSecretRequired)
	}
	if err := errors.Join(problems...); err != nil {
		return nil, fmt.Errorf("stripe config: %w", err)
	}

	stripe.Key = secretKey

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"stripe_env": env, "currency": currency}), "stripe client ready")
	}

	return &Client{
		environment:    env,
		signingSecret:  signing,
		publishableKey: publishable,
		currency:       currency,
		createSession:  session.New,
	}, nil
}

// Environment reports "test" or "live".
func (c *Client) Environment() string { return c.environment }

// PublishableKey is handed to the browser to open the hosted payment page.
func (c *Client) PublishableKey() string { return c.publishableKey }

// Currency is the lowercase ISO code used for every checkout session.
func (c *Client) Currency() string { return c.currency }

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
