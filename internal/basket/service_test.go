package basket

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberandwick/storefront-backend/internal/pricing"
	"github.com/emberandwick/storefront-backend/pkg/db/models"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
)

type memoryStore struct {
	baskets map[string]Basket
	refs    map[string]CheckoutRef
	saveErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{baskets: map[string]Basket{}, refs: map[string]CheckoutRef{}}
}

func (m *memoryStore) Load(ctx context.Context, sessionID string) (Basket, error) {
	return m.baskets[sessionID].Clone(), nil
}

func (m *memoryStore) Save(ctx context.Context, sessionID string, b Basket) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.baskets[sessionID] = b.Clone()
	return nil
}

func (m *memoryStore) Clear(ctx context.Context, sessionID string) error {
	delete(m.baskets, sessionID)
	return nil
}

func (m *memoryStore) SaveCheckout(ctx context.Context, sessionID string, ref CheckoutRef) error {
	m.refs[sessionID] = ref
	return nil
}

func (m *memoryStore) LoadCheckout(ctx context.Context, sessionID string) (*CheckoutRef, error) {
	ref, ok := m.refs[sessionID]
	if !ok {
		return nil, nil
	}
	return &ref, nil
}

type stubProducts map[uuid.UUID]models.Product

func (s stubProducts) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, ok := s[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return &p, nil
}

type stubCalculator struct {
	lines map[uuid.UUID]int
	err   error
}

func (s *stubCalculator) Calculate(ctx context.Context, lines map[uuid.UUID]int) (pricing.Snapshot, error) {
	s.lines = lines
	if s.err != nil {
		return pricing.Snapshot{}, s.err
	}
	return pricing.Snapshot{ItemCount: len(lines), Subtotal: decimal.NewFromInt(1)}, nil
}

func newTestService(t *testing.T, products stubProducts) (*Service, *memoryStore, *stubCalculator) {
	t.Helper()
	store := newMemoryStore()
	calc := &stubCalculator{}
	svc, err := NewService(ServiceParams{Store: store, Products: products, Pricing: calc})
	require.NoError(t, err)
	return svc, store, calc
}

func TestServiceAddUpdateRemove(t *testing.T) {
	active := models.Product{ID: uuid.New(), Title: "Lit", IsActive: true}
	svc, store, _ := newTestService(t, stubProducts{active.ID: active})
	ctx := context.Background()

	b, err := svc.Add(ctx, "sess", active.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, b[active.ID])
	assert.Equal(t, 2, store.baskets["sess"][active.ID])

	b, err = svc.Update(ctx, "sess", active.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, b[active.ID])

	b, err = svc.Update(ctx, "sess", active.ID, 0)
	require.NoError(t, err)
	assert.True(t, b.IsEmpty())

	_, err = svc.Update(ctx, "sess", uuid.New(), 3)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Add(ctx, "sess", active.ID, 1)
	require.NoError(t, err)
	b, err = svc.Remove(ctx, "sess", active.ID)
	require.NoError(t, err)
	assert.True(t, b.IsEmpty())

	require.NoError(t, svc.Clear(ctx, "sess"))
}

func TestServiceAddRejectsUnknownAndInactiveProducts(t *testing.T) {
	retired := models.Product{ID: uuid.New(), IsActive: false}
	svc, store, _ := newTestService(t, stubProducts{retired.ID: retired})
	ctx := context.Background()

	_, err := svc.Add(ctx, "sess", uuid.New(), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Add(ctx, "sess", retired.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.Empty(t, store.baskets)

	_, err = svc.Add(ctx, " ", retired.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestServiceFailedEditLeavesStoredBasket(t *testing.T) {
	p := models.Product{ID: uuid.New(), IsActive: true}
	svc, store, _ := newTestService(t, stubProducts{p.ID: p})
	ctx := context.Background()

	_, err := svc.Add(ctx, "sess", p.ID, MaxLineQuantity)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "sess", p.ID, 1)
	require.Error(t, err)
	assert.Equal(t, MaxLineQuantity, store.baskets["sess"][p.ID])

	store.saveErr = errors.New("redis down")
	_, err = svc.Update(ctx, "sess", p.ID, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestServiceQuote(t *testing.T) {
	p := models.Product{ID: uuid.New(), IsActive: true}
	svc, _, calc := newTestService(t, stubProducts{p.ID: p})
	ctx := context.Background()

	_, err := svc.Add(ctx, "sess", p.ID, 2)
	require.NoError(t, err)

	quote, err := svc.Quote(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, 2, quote.Basket[p.ID])
	assert.Equal(t, map[uuid.UUID]int{p.ID: 2}, calc.lines)

	calc.err = errors.New("db down")
	_, err = svc.Quote(ctx, "sess")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}
