package pricing

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/emberandwick/storefront-backend/pkg/db/models"
)

// Settings is the store-wide delivery configuration applied to every basket.
type Settings struct {
	DeliveryFee decimal.Decimal
	// FreeDeliveryOver waives the delivery fee when the subtotal reaches it.
	// Nil or zero disables the threshold.
	FreeDeliveryOver *decimal.Decimal
}

func (s Settings) threshold() (decimal.Decimal, bool) {
	if s.FreeDeliveryOver == nil || !s.FreeDeliveryOver.IsPositive() {
		return decimal.Zero, false
	}
	return *s.FreeDeliveryOver, true
}

// LineItem is one priced basket line.
type LineItem struct {
	ProductID  uuid.UUID
	Title      string
	UnitPrice  decimal.Decimal
	Quantity   int
	LineTotal  decimal.Decimal
	Discounted bool
}

// Snapshot is the priced view of a basket at a point in time.
type Snapshot struct {
	LineItems                []LineItem
	Subtotal                 decimal.Decimal
	DeliveryFee              decimal.Decimal
	FreeDeliveryApplied      bool
	FinalTotal               decimal.Decimal
	RemainingForFreeDelivery *decimal.Decimal
	ItemCount                int
	DroppedProductIDs        []uuid.UUID
}

// IsEmpty reports whether nothing in the basket could be priced.
func (s Snapshot) IsEmpty() bool {
	return len(s.LineItems) == 0
}

// Price computes a Snapshot for lines against catalog. Products absent from
// catalog or no longer active are dropped and listed in DroppedProductIDs.
// Lines with a non-positive quantity are ignored.
func Price(lines map[uuid.UUID]int, catalog map[uuid.UUID]models.Product, settings Settings) Snapshot {
	ids := ProductIDs(lines)
	snap := Snapshot{
		LineItems:   make([]LineItem, 0, len(ids)),
		Subtotal:    decimal.Zero,
		DeliveryFee: decimal.Zero,
	}
	for _, id := range ids {
		qty := lines[id]
		product, ok := catalog[id]
		if !ok || !product.IsActive {
			snap.DroppedProductIDs = append(snap.DroppedProductIDs, id)
			continue
		}
		unit := product.EffectivePrice()
		lineTotal := unit.Mul(decimal.NewFromInt(int64(qty)))
		snap.LineItems = append(snap.LineItems, LineItem{
			ProductID:  id,
			Title:      product.Title,
			UnitPrice:  unit,
			Quantity:   qty,
			LineTotal:  lineTotal,
			Discounted: product.IsDiscounted(),
		})
		snap.Subtotal = snap.Subtotal.Add(lineTotal)
		snap.ItemCount += qty
	}

	threshold, hasThreshold := settings.threshold()
	switch {
	case hasThreshold && snap.Subtotal.GreaterThanOrEqual(threshold):
		snap.FreeDeliveryApplied = true
	case hasThreshold:
		snap.DeliveryFee = settings.DeliveryFee
		remaining := decimal.Max(threshold.Sub(snap.Subtotal), decimal.Zero)
		snap.RemainingForFreeDelivery = &remaining
	default:
		snap.DeliveryFee = settings.DeliveryFee
	}

	snap.FinalTotal = snap.Subtotal.Add(snap.DeliveryFee)
	return snap
}

// ProductIDs returns the ids with a positive quantity, sorted.
func ProductIDs(lines map[uuid.UUID]int) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(lines))
	for id, qty := range lines {
		if qty > 0 {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
