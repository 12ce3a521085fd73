package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestProductEffectivePrice(t *testing.T) {
	cases := []struct {
		name     string
		price    string
		discount *string
		want     string
	}{
		{name: "no discount", price: "12.00", want: "12.00"},
		{name: "valid discount", price: "12.00", discount: strPtr("9.50"), want: "9.50"},
		{name: "discount equal to price", price: "12.00", discount: strPtr("12.00"), want: "12.00"},
		{name: "discount above price", price: "12.00", discount: strPtr("15.00"), want: "12.00"},
		{name: "zero discount", price: "12.00", discount: strPtr("0"), want: "12.00"},
		{name: "negative discount", price: "12.00", discount: strPtr("-1"), want: "12.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Product{Price: decimal.RequireFromString(tc.price)}
			if tc.discount != nil {
				p.DiscountPrice = decimal.NewNullDecimal(decimal.RequireFromString(*tc.discount))
			}
			if got := p.EffectivePrice().StringFixed(2); got != tc.want {
				t.Fatalf("expected %s got %s", tc.want, got)
			}
		})
	}
}

func TestNewOrderReference(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		ref := NewOrderReference()
		if len(ref) != orderReferenceLength {
			t.Fatalf("unexpected reference length %q", ref)
		}
		for _, r := range ref {
			if !((r >= '0' && r <= '9') || (r >= 'A' && r <= 'F')) {
				t.Fatalf("reference should be upper hex, got %q", ref)
			}
		}
		if seen[ref] {
			t.Fatalf("duplicate reference %q", ref)
		}
		seen[ref] = true
	}
}

func TestOrderItemLineTotal(t *testing.T) {
	item := OrderItem{UnitPrice: decimal.RequireFromString("4.99"), Quantity: 3}
	if got := item.LineTotal().StringFixed(2); got != "14.97" {
		t.Fatalf("expected 14.97 got %s", got)
	}
	order := Order{Items: []OrderItem{item, {Quantity: 2}}}
	if order.ItemCount() != 5 {
		t.Fatalf("expected 5 items, got %d", order.ItemCount())
	}
}

func strPtr(v string) *string { return &v }
