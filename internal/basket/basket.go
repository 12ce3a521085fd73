package basket

import (
	"github.com/google/uuid"

	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
)

// MaxLineQuantity caps how many units of one product a basket may hold.
const MaxLineQuantity = 99

// Basket is an unpriced selection of product quantities.
type Basket map[uuid.UUID]int

// Add increases the quantity of productID by qty.
func (b Basket) Add(productID uuid.UUID, qty int) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	next := b[productID] + qty
	if next > MaxLineQuantity {
		return quantityTooLarge()
	}
	b[productID] = next
	return nil
}

// Set replaces the quantity of productID. A non-positive qty removes the line.
func (b Basket) Set(productID uuid.UUID, qty int) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if qty <= 0 {
		delete(b, productID)
		return nil
	}
	if qty > MaxLineQuantity {
		return quantityTooLarge()
	}
	b[productID] = qty
	return nil
}

// Remove drops productID from the basket.
func (b Basket) Remove(productID uuid.UUID) {
	delete(b, productID)
}

// ItemCount sums all quantities.
func (b Basket) ItemCount() int {
	total := 0
	for _, qty := range b {
		if qty > 0 {
			total += qty
		}
	}
	return total
}

// IsEmpty reports whether no line has a positive quantity.
func (b Basket) IsEmpty() bool {
	return b.ItemCount() == 0
}

// Clone returns an independent copy.
func (b Basket) Clone() Basket {
	out := make(Basket, len(b))
	for id, qty := range b {
		out[id] = qty
	}
	return out
}

func quantityTooLarge() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds the per-product limit").
		WithDetails(map[string]any{"max_quantity": MaxLineQuantity})
}
