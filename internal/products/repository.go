package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emberandwick/storefront-backend/pkg/db"
	"github.com/emberandwick/storefront-backend/pkg/db/models"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
)

// Repository reads and adjusts catalog rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	LockByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	SetStock(ctx context.Context, id uuid.UUID, quantity int) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByID loads a single product.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, err
	}
	return &product, nil
}

// FindByIDs returns the products that exist among ids, in id order. Missing
// ids are simply absent from the result.
func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&rows).
		Error
	return rows, err
}

// LockByIDs selects the products FOR UPDATE in id order so concurrent
// transactions acquire row locks in the same sequence. It must run inside a
// transaction obtained through WithTx.
func (r *repository) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&rows).
		Error
	return rows, err
}

// SetStock writes the absolute stock level for a product.
func (r *repository) SetStock(ctx context.Context, id uuid.UUID, quantity int) error {
	if quantity < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock quantity cannot be negative")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Update("stock_quantity", quantity)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

// Delete removes a product that no order line references. Referenced products
// are kept so historical orders stay intact; retire them with is_active instead.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	var refs int64
	if err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("product_id = ?", id).
		Count(&refs).Error; err != nil {
		return err
	}
	if refs > 0 {
		return referencedError(id, refs)
	}

	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{})
	if res.Error != nil {
		if db.IsForeignKeyViolation(res.Error, "") {
			return referencedError(id, 0)
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

func referencedError(id uuid.UUID, refs int64) error {
	details := map[string]any{"product_id": id.String()}
	if refs > 0 {
		details["order_items"] = refs
	}
	return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("product %s is referenced by existing orders", id)).
		WithDetails(details)
}

// PricingSettingsRepository loads the store-wide delivery settings row.
type PricingSettingsRepository struct {
	db *gorm.DB
}

// NewPricingSettingsRepository builds a settings repository.
func NewPricingSettingsRepository(db *gorm.DB) *PricingSettingsRepository {
	return &PricingSettingsRepository{db: db}
}

// Load returns the settings row, or nil when none has been stored.
func (r *PricingSettingsRepository) Load(ctx context.Context) (*models.StorePricingSettings, error) {
	var row models.StorePricingSettings
	err := r.db.WithContext(ctx).Order("id ASC").Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}
