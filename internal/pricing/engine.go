package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/emberandwick/storefront-backend/pkg/config"
	"github.com/emberandwick/storefront-backend/pkg/db/models"
)

type productFinder interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type settingsLoader interface {
	Load(ctx context.Context) (*models.StorePricingSettings, error)
}

// Engine prices baskets against the live catalog.
type Engine struct {
	products productFinder
	settings settingsLoader
	fallback Settings
}

// NewEngine wires the catalog and settings sources. fallback is used when the
// settings row has not been created yet.
func NewEngine(products productFinder, settings settingsLoader, fallback Settings) (*Engine, error) {
	if products == nil {
		return nil, errors.New("product finder required")
	}
	if settings == nil {
		return nil, errors.New("settings loader required")
	}
	return &Engine{products: products, settings: settings, fallback: fallback}, nil
}

// SettingsFromConfig builds fallback settings from environment configuration.
func SettingsFromConfig(cfg config.PricingConfig) (Settings, error) {
	threshold, err := cfg.FreeDeliveryThreshold()
	if err != nil {
		return Settings{}, err
	}
	return Settings{DeliveryFee: cfg.DeliveryFee, FreeDeliveryOver: threshold}, nil
}

// Settings returns the stored pricing settings or the fallback.
func (e *Engine) Settings(ctx context.Context) (Settings, error) {
	row, err := e.settings.Load(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("load pricing settings: %w", err)
	}
	if row == nil {
		return e.fallback, nil
	}
	return FromModel(*row), nil
}

// FromModel converts the persisted settings row.
func FromModel(row models.StorePricingSettings) Settings {
	out := Settings{DeliveryFee: row.DeliveryFee}
	if row.FreeDeliveryOver.Valid {
		threshold := row.FreeDeliveryOver.Decimal
		out.FreeDeliveryOver = &threshold
	}
	return out
}

// Calculate prices lines against current products and settings.
func (e *Engine) Calculate(ctx context.Context, lines map[uuid.UUID]int) (Snapshot, error) {
	settings, err := e.Settings(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	ids := ProductIDs(lines)
	catalog := map[uuid.UUID]models.Product{}
	if len(ids) > 0 {
		products, err := e.products.FindByIDs(ctx, ids)
		if err != nil {
			return Snapshot{}, fmt.Errorf("load basket products: %w", err)
		}
		catalog = Catalog(products)
	}
	return Price(lines, catalog, settings), nil
}

// Catalog indexes products by id.
func Catalog(products []models.Product) map[uuid.UUID]models.Product {
	out := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out
}
