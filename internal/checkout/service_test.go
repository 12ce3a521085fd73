package checkout

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/emberandwick/storefront-backend/internal/basket"
	"github.com/emberandwick/storefront-backend/internal/dbtest"
	"github.com/emberandwick/storefront-backend/internal/orders"
	"github.com/emberandwick/storefront-backend/internal/pricing"
	"github.com/emberandwick/storefront-backend/internal/products"
	"github.com/emberandwick/storefront-backend/pkg/db/models"
	"github.com/emberandwick/storefront-backend/pkg/enums"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
	"github.com/emberandwick/storefront-backend/pkg/logger"
	"github.com/emberandwick/storefront-backend/pkg/stripe"
)

type gormTx struct {
	db *gorm.DB
}

func (g gormTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type stubSettings struct {
	settings pricing.Settings
}

func (s stubSettings) Settings(context.Context) (pricing.Settings, error) {
	return s.settings, nil
}

type stubGateway struct {
	inputs []stripe.CheckoutSessionInput
	err    error
}

func (g *stubGateway) CreateCheckoutSession(_ context.Context, input stripe.CheckoutSessionInput) (*stripe.CheckoutSession, error) {
	g.inputs = append(g.inputs, input)
	if g.err != nil {
		return nil, g.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_42", URL: "https://checkout.stripe.test/cs_test_42"}, nil
}

func (g *stubGateway) PublishableKey() string { return "pk_test_abc" }

type memoryBaskets struct {
	baskets   map[string]basket.Basket
	checkouts map[string]basket.CheckoutRef
}

func newMemoryBaskets() *memoryBaskets {
	return &memoryBaskets{baskets: map[string]basket.Basket{}, checkouts: map[string]basket.CheckoutRef{}}
}

func (m *memoryBaskets) Load(_ context.Context, sessionID string) (basket.Basket, error) {
	return m.baskets[sessionID].Clone(), nil
}

func (m *memoryBaskets) Save(_ context.Context, sessionID string, b basket.Basket) error {
	m.baskets[sessionID] = b.Clone()
	return nil
}

func (m *memoryBaskets) Clear(_ context.Context, sessionID string) error {
	delete(m.baskets, sessionID)
	return nil
}

func (m *memoryBaskets) SaveCheckout(_ context.Context, sessionID string, ref basket.CheckoutRef) error {
	m.checkouts[sessionID] = ref
	return nil
}

func (m *memoryBaskets) LoadCheckout(_ context.Context, sessionID string) (*basket.CheckoutRef, error) {
	ref, ok := m.checkouts[sessionID]
	if !ok {
		return nil, nil
	}
	return &ref, nil
}

type fixture struct {
	conn    *gorm.DB
	orders  orders.Repository
	gateway *stubGateway
	baskets *memoryBaskets
	svc     Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	threshold := decimal.RequireFromString("50.00")
	f := &fixture{
		conn:    conn,
		orders:  orders.NewRepository(conn),
		gateway: &stubGateway{},
		baskets: newMemoryBaskets(),
	}
	svc, err := NewService(ServiceParams{
		Tx:       gormTx{db: conn},
		Orders:   f.orders,
		Products: products.NewRepository(conn),
		Pricing: stubSettings{settings: pricing.Settings{
			DeliveryFee:      decimal.RequireFromString("3.95"),
			FreeDeliveryOver: &threshold,
		}},
		Gateway:     f.gateway,
		Baskets:     f.baskets,
		Logger:      logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard}),
		SiteURL:     "https://shop.test",
		SuccessPath: "/checkout/success",
		CancelPath:  "/basket",
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) orderCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
	return count
}

func validCustomer() CustomerInfo {
	return CustomerInfo{
		Email:        " Jo@Example.com ",
		FullName:     "Jo Bloggs",
		AddressLine1: "1 Wick Lane",
		City:         "Bristol",
		PostalCode:   "bs1 4dj",
		Country:      " United Kingdom ",
	}
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestStartCreatesPendingOrderAndPaymentSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fig := dbtest.CreateProduct(t, f.conn, "Fig & Cedar", "10.00", 5)
	melt := dbtest.CreateProduct(t, f.conn, "Vanilla Melt", "5.00", 5)

	res, err := f.svc.Start(ctx, "sess-1", basket.Basket{fig.ID: 2, melt.ID: 1}, validCustomer())
	require.NoError(t, err)
	assert.Equal(t, "cs_test_42", res.SessionID)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_42", res.CheckoutURL)
	assert.Equal(t, "pk_test_abc", res.PublishableKey)
	assert.Equal(t, "28.95", res.Pricing.FinalTotal.StringFixed(2))

	stored, err := f.orders.FindByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, stored.Status)
	assert.Equal(t, res.Reference, stored.Reference)
	assert.Equal(t, "jo@example.com", stored.Email)
	assert.Equal(t, "BS1 4DJ", stored.PostalCode)
	assert.Equal(t, "United Kingdom", stored.Country, "country is kept as entered")
	assert.Equal(t, "25.00", stored.Subtotal.StringFixed(2))
	assert.Equal(t, "3.95", stored.DeliveryFee.StringFixed(2))
	assert.Equal(t, "28.95", stored.Total.StringFixed(2))
	require.Len(t, stored.Items, 2)
	require.NotNil(t, stored.StripeSessionID)
	assert.Equal(t, "cs_test_42", *stored.StripeSessionID)

	require.Len(t, f.gateway.inputs, 1)
	input := f.gateway.inputs[0]
	require.Len(t, input.Lines, 3)
	assert.Equal(t, deliveryLineName, input.Lines[2].Name)
	assert.Equal(t, "3.95", input.Lines[2].UnitPrice.StringFixed(2))
	assert.Equal(t, res.OrderID.String(), input.Metadata[stripe.MetadataOrderID])
	assert.Equal(t, res.Reference, input.Metadata[stripe.MetadataOrderReference])
	assert.Equal(t, "sess-1", input.Metadata[stripe.MetadataBasketSession])
	assert.Equal(t, "https://shop.test/checkout/success?order="+res.Reference, input.SuccessURL)
	assert.Equal(t, "https://shop.test/basket", input.CancelURL)

	status, err := f.svc.Status(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, res.OrderID, status.ID)

	assert.Equal(t, 5, f.stock(t, fig), "stock is only adjusted on payment")
}

func TestStartOmitsDeliveryLineWhenFree(t *testing.T) {
	f := newFixture(t)
	lamp := dbtest.CreateProduct(t, f.conn, "Grand Jar", "60.00", 1)

	res, err := f.svc.Start(context.Background(), "sess-2", basket.Basket{lamp.ID: 1}, validCustomer())
	require.NoError(t, err)
	assert.True(t, res.Pricing.FreeDeliveryApplied)
	require.Len(t, f.gateway.inputs[0].Lines, 1)
}

func TestStartRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fig := dbtest.CreateProduct(t, f.conn, "Fig", "10.00", 5)

	_, err := f.svc.Start(ctx, "sess", basket.Basket{}, validCustomer())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Start(ctx, "", basket.Basket{fig.ID: 1}, validCustomer())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	bad := validCustomer()
	bad.Email = "not-an-email"
	_, err = f.svc.Start(ctx, "sess", basket.Basket{fig.ID: 1}, bad)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "email", details["Email"])

	longCountry := validCustomer()
	longCountry.Country = strings.Repeat("x", 101)
	_, err = f.svc.Start(ctx, "sess", basket.Basket{fig.ID: 1}, longCountry)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	missing := validCustomer()
	missing.City = " "
	_, err = f.svc.Start(ctx, "sess", basket.Basket{fig.ID: 1}, missing)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Zero(t, f.orderCount(t))
	assert.Empty(t, f.gateway.inputs)
}

func TestStartRejectsBasketWithoutPurchasableItems(t *testing.T) {
	f := newFixture(t)
	retired := dbtest.CreateProduct(t, f.conn, "Retired", "10.00", 5)
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", retired.ID).Update("is_active", false).Error)

	_, err := f.svc.Start(context.Background(), "sess", basket.Basket{retired.ID: 1, uuid.New(): 2}, validCustomer())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Zero(t, f.orderCount(t))
}

func TestStartDropsUnavailableProducts(t *testing.T) {
	f := newFixture(t)
	fig := dbtest.CreateProduct(t, f.conn, "Fig", "10.00", 5)

	res, err := f.svc.Start(context.Background(), "sess", basket.Basket{fig.ID: 1, uuid.New(): 3}, validCustomer())
	require.NoError(t, err)
	require.Len(t, res.Pricing.DroppedProductIDs, 1)

	stored, err := f.orders.FindByID(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, fig.ID, stored.Items[0].ProductID)
}

func TestStartGatewayFailureLeavesPendingOrder(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = errors.New("gateway timeout")
	fig := dbtest.CreateProduct(t, f.conn, "Fig", "10.00", 5)

	_, err := f.svc.Start(context.Background(), "sess", basket.Basket{fig.ID: 1}, validCustomer())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.EqualValues(t, 1, f.orderCount(t))

	_, err = f.svc.Status(context.Background(), "sess")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func (f *fixture) stock(t *testing.T, product models.Product) int {
	t.Helper()
	var stored models.Product
	require.NoError(t, f.conn.First(&stored, "id = ?", product.ID).Error)
	return stored.StockQuantity
}

type countingNotifier struct {
	confirmations int
	admin         int
}

func (n *countingNotifier) SendOrderConfirmation(context.Context, *models.Order) error {
	n.confirmations++
	return nil
}

func (n *countingNotifier) SendAdminOrderNotification(context.Context, *models.Order) error {
	n.admin++
	return nil
}

func (n *countingNotifier) SendShippingNotification(context.Context, *models.Order) error {
	return nil
}

func TestCheckoutThroughPaymentKeepsFrozenTotals(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard})
	orderRepo := orders.NewRepository(conn)
	productRepo := products.NewRepository(conn)
	notifier := &countingNotifier{}

	svc, err := NewService(ServiceParams{
		Tx:          gormTx{db: conn},
		Orders:      orderRepo,
		Products:    productRepo,
		Pricing:     stubSettings{settings: pricing.Settings{DeliveryFee: decimal.RequireFromString("3.00")}},
		Gateway:     &stubGateway{},
		Baskets:     newMemoryBaskets(),
		Logger:      logg,
		SiteURL:     "https://shop.test",
		SuccessPath: "/checkout/success",
		CancelPath:  "/basket",
	})
	require.NoError(t, err)
	finalizer, err := orders.NewFinalizer(orders.FinalizerParams{
		Tx:       gormTx{db: conn},
		Orders:   orderRepo,
		Products: productRepo,
		Notifier: notifier,
		Logger:   logg,
	})
	require.NoError(t, err)

	productA := dbtest.CreateProduct(t, conn, "Fig & Cedar", "10.00", 8)
	productB := dbtest.CreateProduct(t, conn, "Vanilla Melt", "5.00", 4)

	res, err := svc.Start(ctx, "sess-e2e", basket.Basket{productA.ID: 2, productB.ID: 1}, validCustomer())
	require.NoError(t, err)

	pending, err := orderRepo.FindByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, pending.Status)
	assert.Equal(t, "25.00", pending.Subtotal.StringFixed(2))
	assert.Equal(t, "3.00", pending.DeliveryFee.StringFixed(2))
	assert.Equal(t, "28.00", pending.Total.StringFixed(2))
	require.Len(t, pending.Items, 2)

	require.NoError(t, conn.Model(&models.Product{}).Where("id = ?", productA.ID).
		Update("price", decimal.RequireFromString("12.50")).Error)

	outcome, err := finalizer.HandlePaymentCompleted(ctx, res.OrderID, "pi_e2e")
	require.NoError(t, err)
	assert.Equal(t, orders.OutcomePaid, outcome)

	paid, err := orderRepo.FindByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, paid.Status)
	assert.NotNil(t, paid.EmailsSentAt)
	assert.Equal(t, "25.00", paid.Subtotal.StringFixed(2), "totals frozen at checkout")
	assert.Equal(t, "28.00", paid.Total.StringFixed(2))
	for _, item := range paid.Items {
		if item.ProductID == productA.ID {
			assert.Equal(t, "10.00", item.UnitPrice.StringFixed(2))
		}
	}

	var stockA, stockB models.Product
	require.NoError(t, conn.First(&stockA, "id = ?", productA.ID).Error)
	require.NoError(t, conn.First(&stockB, "id = ?", productB.ID).Error)
	assert.Equal(t, 6, stockA.StockQuantity)
	assert.Equal(t, 3, stockB.StockQuantity)
	assert.Equal(t, 1, notifier.confirmations)
	assert.Equal(t, 1, notifier.admin)
}
