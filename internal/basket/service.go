package basket

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/emberandwick/storefront-backend/internal/pricing"
	"github.com/emberandwick/storefront-backend/pkg/db/models"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
)

type productLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type calculator interface {
	Calculate(ctx context.Context, lines map[uuid.UUID]int) (pricing.Snapshot, error)
}

// Quote pairs a basket with its current pricing.
type Quote struct {
	Basket  Basket
	Pricing pricing.Snapshot
}

// ServiceParams groups the collaborators of Service.
type ServiceParams struct {
	Store    Store
	Products productLookup
	Pricing  calculator
}

// Service applies basket edits for a browser session.
type Service struct {
	store    Store
	products productLookup
	pricing  calculator
}

// NewService validates and wires the basket service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, errors.New("basket store required")
	}
	if params.Products == nil {
		return nil, errors.New("product lookup required")
	}
	if params.Pricing == nil {
		return nil, errors.New("pricing calculator required")
	}
	return &Service{store: params.Store, products: params.Products, pricing: params.Pricing}, nil
}

// Get returns the session's basket.
func (s *Service) Get(ctx context.Context, sessionID string) (Basket, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	return s.load(ctx, sessionID)
}

// Add puts qty units of an active product in the basket.
func (s *Service) Add(ctx context.Context, sessionID string, productID uuid.UUID, qty int) (Basket, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return s.mutate(ctx, sessionID, func(b Basket) error {
		return b.Add(productID, qty)
	})
}

// Update sets the quantity of a line; zero or less removes it.
func (s *Service) Update(ctx context.Context, sessionID string, productID uuid.UUID, qty int) (Basket, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, sessionID, func(b Basket) error {
		if qty > 0 {
			if _, ok := b[productID]; !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the basket")
			}
		}
		return b.Set(productID, qty)
	})
}

// Remove drops a line from the basket.
func (s *Service) Remove(ctx context.Context, sessionID string, productID uuid.UUID) (Basket, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, sessionID, func(b Basket) error {
		b.Remove(productID)
		return nil
	})
}

// Clear empties the basket.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := requireSession(sessionID); err != nil {
		return err
	}
	if err := s.store.Clear(ctx, sessionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "basket store unavailable")
	}
	return nil
}

// Quote prices the session's basket against the current catalog.
func (s *Service) Quote(ctx context.Context, sessionID string) (*Quote, error) {
	b, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap, err := s.pricing.Calculate(ctx, b)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "price basket")
	}
	return &Quote{Basket: b, Pricing: snap}, nil
}

func (s *Service) mutate(ctx context.Context, sessionID string, fn func(Basket) error) (Basket, error) {
	b, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next := b.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, sessionID, next); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "basket store unavailable")
	}
	return next, nil
}

func (s *Service) load(ctx context.Context, sessionID string) (Basket, error) {
	b, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "basket store unavailable")
	}
	if b == nil {
		b = Basket{}
	}
	return b, nil
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "basket session is required")
	}
	return nil
}
