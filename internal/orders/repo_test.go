package orders

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberandwick/storefront-backend/internal/dbtest"
	"github.com/emberandwick/storefront-backend/pkg/db/models"
	"github.com/emberandwick/storefront-backend/pkg/enums"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
)

func TestRepositoryCreateAndFind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	candle := dbtest.CreateProduct(t, f.conn, "Smoked Oud", "22.00", 3)

	order := &models.Order{
		Email:        "sam@example.com",
		FullName:     "Sam Carter",
		AddressLine1: "4 Beacon Road",
		City:         "Leeds",
		PostalCode:   "LS1 1AA",
		Country:      "GB",
	}
	order.Subtotal = candle.Price.Mul(decimal.NewFromInt(2))
	order.DeliveryFee = decimal.Zero
	order.Total = order.Subtotal
	require.NoError(t, f.orders.Create(ctx, order))
	require.NoError(t, f.orders.CreateItems(ctx, []models.OrderItem{{
		OrderID:      order.ID,
		ProductID:    candle.ID,
		ProductTitle: candle.Title,
		UnitPrice:    candle.Price,
		Quantity:     2,
	}}))

	found, err := f.orders.FindByReference(ctx, "  "+strings.ToLower(order.Reference)+" ")
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
	assert.Equal(t, enums.OrderStatusPending, found.Status)
	require.Len(t, found.Items, 1)
	assert.Equal(t, "44.00", found.Items[0].LineTotal().StringFixed(2))
	assert.Equal(t, 2, found.ItemCount())
	assert.Len(t, found.Reference, 10)

	_, err = f.orders.FindByReference(ctx, "NOPE")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	require.NoError(t, f.orders.SetStripeSession(ctx, order.ID, "cs_test_9"))
	found, err = f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, found.StripeSessionID)
	assert.Equal(t, "cs_test_9", *found.StripeSessionID)
}

func TestRepositoryMarkPaidIsConditional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := dbtest.CreateOrder(t, f.conn, enums.OrderStatusPending, nil)
	shipped := dbtest.CreateOrder(t, f.conn, enums.OrderStatusShipped, nil)

	ok, err := f.orders.MarkPaid(ctx, order.ID, "pi_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.orders.MarkPaid(ctx, order.ID, "pi_1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.orders.MarkPaid(ctx, shipped.ID, "pi_2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, enums.OrderStatusShipped, f.reload(t, shipped).Status)
}

func TestRepositoryUpdateStatusChecksCurrentStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := dbtest.CreateOrder(t, f.conn, enums.OrderStatusPaid, nil)

	ok, err := f.orders.UpdateStatus(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPending}, enums.OrderStatusFailed, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.orders.UpdateStatus(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPaid}, enums.OrderStatusRefunded,
		map[string]any{"refunded_at": fixedNow})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, f.reload(t, order).RefundedAt)
}

func TestRepositoryScans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := dbtest.CreateOrder(t, f.conn, enums.OrderStatusPending, nil)
	fresh := dbtest.CreateOrder(t, f.conn, enums.OrderStatusPending, nil)
	paid := dbtest.CreateOrder(t, f.conn, enums.OrderStatusPaid, nil)
	emailed := dbtest.CreateOrder(t, f.conn, enums.OrderStatusPaid, nil)

	past := time.Now().UTC().Add(-2 * time.Hour)
	for _, id := range []any{old.ID, paid.ID, emailed.ID} {
		require.NoError(t, f.conn.Exec("UPDATE orders SET created_at = ?, updated_at = ? WHERE id = ?", past, past, id).Error)
	}
	require.NoError(t, f.conn.Exec("UPDATE orders SET emails_sent_at = ? WHERE id = ?", past, emailed.ID).Error)

	cutoff := time.Now().UTC().Add(-time.Hour)
	pending, err := f.orders.FindPendingBefore(ctx, cutoff, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, old.ID, pending[0].ID)
	assert.NotEqual(t, fresh.ID, pending[0].ID)

	unsent, err := f.orders.FindPaidWithoutEmails(ctx, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, unsent, 1)
	assert.Equal(t, paid.ID, unsent[0].ID)
}
