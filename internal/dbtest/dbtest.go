// Package dbtest opens throwaway sqlite databases carrying the storefront
// schema for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/emberandwick/storefront-backend/pkg/db/models"
	"github.com/emberandwick/storefront-backend/pkg/enums"
)

const schema = `
CREATE TABLE products (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  price NUMERIC NOT NULL,
  discount_price NUMERIC,
  stock_quantity INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE store_pricing_settings (
  id INTEGER PRIMARY KEY,
  delivery_fee NUMERIC NOT NULL,
  free_delivery_over NUMERIC,
  updated_at DATETIME
);
CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  reference TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'pending',
  email TEXT NOT NULL,
  full_name TEXT NOT NULL,
  address_line1 TEXT NOT NULL,
  address_line2 TEXT NOT NULL DEFAULT '',
  city TEXT NOT NULL,
  postal_code TEXT NOT NULL,
  country TEXT NOT NULL,
  subtotal NUMERIC NOT NULL,
  delivery_fee NUMERIC NOT NULL,
  total NUMERIC NOT NULL,
  stripe_payment_intent TEXT,
  stripe_session_id TEXT,
  emails_sent_at DATETIME,
  refunded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE RESTRICT,
  product_id TEXT NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
  product_title TEXT NOT NULL,
  unit_price NUMERIC NOT NULL,
  quantity INTEGER NOT NULL,
  refunded_quantity INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE shipments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL UNIQUE REFERENCES orders(id) ON DELETE RESTRICT,
  carrier TEXT NOT NULL,
  tracking_number TEXT NOT NULL DEFAULT '',
  estimated_delivery DATE,
  email_sent_at DATETIME,
  created_at DATETIME
);`

// Open returns an isolated in-memory database with foreign keys enforced.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, conn.Exec(stmt).Error)
	}

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// CreateProduct inserts an active candle with the given price and stock.
func CreateProduct(t testing.TB, conn *gorm.DB, title, price string, stock int) models.Product {
	t.Helper()
	p := models.Product{
		Type:          enums.ProductTypeCandle,
		Title:         title,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		IsActive:      true,
	}
	require.NoError(t, conn.Create(&p).Error)
	return p
}

// CreatePricingSettings stores the single settings row.
func CreatePricingSettings(t testing.TB, conn *gorm.DB, deliveryFee string, freeOver *string) {
	t.Helper()
	row := models.StorePricingSettings{ID: 1, DeliveryFee: decimal.RequireFromString(deliveryFee)}
	if freeOver != nil {
		row.FreeDeliveryOver = decimal.NewNullDecimal(decimal.RequireFromString(*freeOver))
	}
	require.NoError(t, conn.Create(&row).Error)
}

// CreateOrder inserts an order in status with one item per product and
// quantity pair. Totals are derived from product list prices.
func CreateOrder(t testing.TB, conn *gorm.DB, status enums.OrderStatus, lines map[*models.Product]int) models.Order {
	t.Helper()
	order := models.Order{
		Status:       status,
		Email:        "jo@example.com",
		FullName:     "Jo Bloggs",
		AddressLine1: "1 Wick Lane",
		City:         "Bristol",
		PostalCode:   "BS1 4DJ",
		Country:      "GB",
		Subtotal:     decimal.Zero,
		DeliveryFee:  decimal.RequireFromString("3.00"),
	}
	for p, qty := range lines {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:    p.ID,
			ProductTitle: p.Title,
			UnitPrice:    p.Price,
			Quantity:     qty,
		})
		order.Subtotal = order.Subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(qty))))
	}
	order.Total = order.Subtotal.Add(order.DeliveryFee)
	require.NoError(t, conn.Create(&order).Error)
	return order
}
