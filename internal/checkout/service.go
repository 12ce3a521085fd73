package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emberandwick/storefront-backend/internal/basket"
	"github.com/emberandwick/storefront-backend/internal/orders"
	"github.com/emberandwick/storefront-backend/internal/pricing"
	"github.com/emberandwick/storefront-backend/internal/products"
	"github.com/emberandwick/storefront-backend/pkg/db/models"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
	"github.com/emberandwick/storefront-backend/pkg/logger"
	"github.com/emberandwick/storefront-backend/pkg/metrics"
	"github.com/emberandwick/storefront-backend/pkg/stripe"
)

const deliveryLineName = "Delivery"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type settingsSource interface {
	Settings(ctx context.Context) (pricing.Settings, error)
}

type paymentGateway interface {
	CreateCheckoutSession(ctx context.Context, input stripe.CheckoutSessionInput) (*stripe.CheckoutSession, error)
	PublishableKey() string
}

// Service turns a basket into a pending order and a hosted payment session.
type Service interface {
	Start(ctx context.Context, sessionID string, items basket.Basket, customer CustomerInfo) (*Result, error)
	Status(ctx context.Context, sessionID string) (*models.Order, error)
}

// CustomerInfo is the delivery and contact detail captured at checkout.
type CustomerInfo struct {
	Email        string `json:"email" validate:"required,email,max=254"`
	FullName     string `json:"full_name" validate:"required,max=200"`
	AddressLine1 string `json:"address_line1" validate:"required,max=200"`
	AddressLine2 string `json:"address_line2" validate:"max=200"`
	City         string `json:"city" validate:"required,max=100"`
	PostalCode   string `json:"postal_code" validate:"required,max=20"`
	Country      string `json:"country" validate:"required,max=100"`
}

func (c CustomerInfo) normalized() CustomerInfo {
	return CustomerInfo{
		Email:        strings.ToLower(strings.TrimSpace(c.Email)),
		FullName:     strings.TrimSpace(c.FullName),
		AddressLine1: strings.TrimSpace(c.AddressLine1),
		AddressLine2: strings.TrimSpace(c.AddressLine2),
		City:         strings.TrimSpace(c.City),
		PostalCode:   strings.ToUpper(strings.TrimSpace(c.PostalCode)),
		Country:      strings.TrimSpace(c.Country),
	}
}

// Result is handed back to the browser to continue to the payment page.
type Result struct {
	OrderID        uuid.UUID        `json:"order_id"`
	Reference      string           `json:"reference"`
	SessionID      string           `json:"session_id"`
	CheckoutURL    string           `json:"checkout_url"`
	PublishableKey string           `json:"publishable_key"`
	Pricing        pricing.Snapshot `json:"-"`
}

// ServiceParams groups the collaborators of the checkout service.
type ServiceParams struct {
	Tx          txRunner
	Orders      orders.Repository
	Products    products.Repository
	Pricing     settingsSource
	Gateway     paymentGateway
	Baskets     basket.Store
	Logger      *logger.Logger
	Metrics     *metrics.OrderMetrics
	SiteURL     string
	SuccessPath string
	CancelPath  string
}

type service struct {
	tx         txRunner
	orders     orders.Repository
	products   products.Repository
	pricing    settingsSource
	gateway    paymentGateway
	baskets    basket.Store
	logg       *logger.Logger
	metrics    *metrics.OrderMetrics
	successURL string
	cancelURL  string
	validate   *validator.Validate
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.Pricing == nil {
		return nil, fmt.Errorf("pricing settings source required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Baskets == nil {
		return nil, fmt.Errorf("basket store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	successURL, err := siteURL(params.SiteURL, params.SuccessPath)
	if err != nil {
		return nil, err
	}
	cancelURL, err := siteURL(params.SiteURL, params.CancelPath)
	if err != nil {
		return nil, err
	}
	return &service{
		tx:         params.Tx,
		orders:     params.Orders,
		products:   params.Products,
		pricing:    params.Pricing,
		gateway:    params.Gateway,
		baskets:    params.Baskets,
		logg:       params.Logger,
		metrics:    params.Metrics,
		successURL: successURL,
		cancelURL:  cancelURL,
		validate:   validator.New(),
	}, nil
}

// Start prices the basket against locked product rows, records a pending
// order and opens a payment session for it. The order is committed before the
// gateway is called; if the gateway fails the pending order is left for the
// expiry job.
func (s *service) Start(ctx context.Context, sessionID string, items basket.Basket, customer CustomerInfo) (*Result, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "basket session required")
	}
	if items.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "basket is empty")
	}
	customer = customer.normalized()
	if err := s.validateCustomer(customer); err != nil {
		return nil, err
	}

	settings, err := s.pricing.Settings(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pricing settings")
	}

	var (
		order    *models.Order
		snapshot pricing.Snapshot
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.products.WithTx(tx).LockByIDs(ctx, pricing.ProductIDs(items))
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}
		snapshot = pricing.Price(items, pricing.Catalog(locked), settings)
		if snapshot.IsEmpty() {
			return pkgerrors.New(pkgerrors.CodeValidation, "basket has no purchasable items").
				WithDetails(map[string]any{"dropped_product_ids": snapshot.DroppedProductIDs})
		}

		order = newOrder(customer, snapshot)
		repo := s.orders.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		lines := newOrderItems(order.ID, snapshot)
		if err := repo.CreateItems(ctx, lines); err != nil {
			return fmt.Errorf("create order items: %w", err)
		}
		order.Items = lines
		return nil
	})
	if err != nil {
		s.metrics.CheckoutStarted(metrics.OutcomeFailure)
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":        order.ID.String(),
		"order_reference": order.Reference,
	})
	if len(snapshot.DroppedProductIDs) > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "dropped_product_ids", snapshot.DroppedProductIDs),
			"unavailable products dropped from checkout")
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, s.sessionInput(sessionID, order, snapshot))
	if err != nil {
		s.metrics.CheckoutStarted(metrics.OutcomeFailure)
		s.logg.Error(ctx, "payment session creation failed; order left pending", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment session")
	}

	if err := s.orders.SetStripeSession(ctx, order.ID, session.ID); err != nil {
		s.logg.Error(ctx, "failed to record payment session on order", err)
	}
	ref := basket.CheckoutRef{OrderID: order.ID, Reference: order.Reference, StripeSessionID: session.ID}
	if err := s.baskets.SaveCheckout(ctx, sessionID, ref); err != nil {
		s.logg.Error(ctx, "failed to store checkout correlation", err)
	}

	s.metrics.CheckoutStarted(metrics.OutcomeSuccess)
	s.logg.Info(ctx, "checkout started")
	return &Result{
		OrderID:        order.ID,
		Reference:      order.Reference,
		SessionID:      session.ID,
		CheckoutURL:    session.URL,
		PublishableKey: s.gateway.PublishableKey(),
		Pricing:        snapshot,
	}, nil
}

// Status returns the order created by the most recent checkout of sessionID.
func (s *service) Status(ctx context.Context, sessionID string) (*models.Order, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "basket session required")
	}
	ref, err := s.baskets.LoadCheckout(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout correlation")
	}
	if ref == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no checkout for this session")
	}
	return s.orders.FindByID(ctx, ref.OrderID)
}

func (s *service) validateCustomer(customer CustomerInfo) error {
	err := s.validate.Struct(customer)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer details")
	}
	details := map[string]string{}
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid customer details").WithDetails(details)
}

func (s *service) sessionInput(sessionID string, order *models.Order, snapshot pricing.Snapshot) stripe.CheckoutSessionInput {
	lines := make([]stripe.CheckoutLine, 0, len(snapshot.LineItems)+1)
	for _, item := range snapshot.LineItems {
		lines = append(lines, stripe.CheckoutLine{Name: item.Title, UnitPrice: item.UnitPrice, Quantity: item.Quantity})
	}
	if snapshot.DeliveryFee.IsPositive() {
		lines = append(lines, stripe.CheckoutLine{Name: deliveryLineName, UnitPrice: snapshot.DeliveryFee, Quantity: 1})
	}

	success, _ := url.Parse(s.successURL)
	query := success.Query()
	query.Set("order", order.Reference)
	success.RawQuery = query.Encode()

	return stripe.CheckoutSessionInput{
		Lines:             lines,
		CustomerEmail:     order.Email,
		SuccessURL:        success.String(),
		CancelURL:         s.cancelURL,
		ClientReferenceID: order.Reference,
		Metadata: map[string]string{
			stripe.MetadataOrderID:        order.ID.String(),
			stripe.MetadataOrderReference: order.Reference,
			stripe.MetadataBasketSession:  sessionID,
		},
	}
}

func newOrder(customer CustomerInfo, snapshot pricing.Snapshot) *models.Order {
	return &models.Order{
		ID:           uuid.New(),
		Reference:    models.NewOrderReference(),
		Email:        customer.Email,
		FullName:     customer.FullName,
		AddressLine1: customer.AddressLine1,
		AddressLine2: customer.AddressLine2,
		City:         customer.City,
		PostalCode:   customer.PostalCode,
		Country:      customer.Country,
		Subtotal:     snapshot.Subtotal,
		DeliveryFee:  snapshot.DeliveryFee,
		Total:        snapshot.FinalTotal,
	}
}

func newOrderItems(orderID uuid.UUID, snapshot pricing.Snapshot) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(snapshot.LineItems))
	for _, line := range snapshot.LineItems {
		items = append(items, models.OrderItem{
			ID:           uuid.New(),
			OrderID:      orderID,
			ProductID:    line.ProductID,
			ProductTitle: line.Title,
			UnitPrice:    line.UnitPrice,
			Quantity:     line.Quantity,
		})
	}
	return items
}

func siteURL(base, path string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(base))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid site url %q", base)
	}
	return parsed.JoinPath(path).String(), nil
}
