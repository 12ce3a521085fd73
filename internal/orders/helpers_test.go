package orders

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/emberandwick/storefront-backend/internal/dbtest"
	"github.com/emberandwick/storefront-backend/internal/products"
	"github.com/emberandwick/storefront-backend/pkg/db/models"
	"github.com/emberandwick/storefront-backend/pkg/logger"
)

type gormTx struct {
	db *gorm.DB
}

func (g gormTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

type stubNotifier struct {
	mu            sync.Mutex
	confirmations []string
	adminAttempts int
	shipping      []string
	confirmErr    error
	adminErr      error
	shippingErr   error
}

func (s *stubNotifier) SendOrderConfirmation(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirmErr != nil {
		return s.confirmErr
	}
	s.confirmations = append(s.confirmations, order.Reference)
	return nil
}

func (s *stubNotifier) SendAdminOrderNotification(context.Context, *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminAttempts++
	return s.adminErr
}

func (s *stubNotifier) SendShippingNotification(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shippingErr != nil {
		return s.shippingErr
	}
	s.shipping = append(s.shipping, order.Reference)
	return nil
}

func (s *stubNotifier) confirmationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.confirmations)
}

func (s *stubNotifier) adminCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adminAttempts
}

func (s *stubNotifier) shippingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shipping)
}

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type fixture struct {
	conn      *gorm.DB
	orders    Repository
	products  products.Repository
	notifier  *stubNotifier
	finalizer *Finalizer
	admin     *AdminService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	f := &fixture{
		conn:     conn,
		orders:   NewRepository(conn),
		products: products.NewRepository(conn),
		notifier: &stubNotifier{},
	}

	finalizer, err := NewFinalizer(FinalizerParams{
		Tx:       gormTx{db: conn},
		Orders:   f.orders,
		Products: f.products,
		Notifier: f.notifier,
		Logger:   logg,
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	f.finalizer = finalizer

	admin, err := NewAdminService(AdminParams{
		Orders:    f.orders,
		Finalizer: finalizer,
		Notifier:  f.notifier,
		Logger:    logg,
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	f.admin = admin
	return f
}

func (f *fixture) reload(t *testing.T, order models.Order) *models.Order {
	t.Helper()
	stored, err := f.orders.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	return stored
}

func (f *fixture) stock(t *testing.T, product models.Product) int {
	t.Helper()
	stored, err := f.products.FindByID(context.Background(), product.ID)
	require.NoError(t, err)
	return stored.StockQuantity
}
