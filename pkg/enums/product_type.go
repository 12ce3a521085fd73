package enums

import "fmt"

// ProductType tags a catalog entry with the kind of item it sells.
type ProductType string

const (
	ProductTypeCandle  ProductType = "candle"
	ProductTypeWaxMelt ProductType = "wax_melt"
)

var validProductTypes = []ProductType{
	ProductTypeCandle,
	ProductTypeWaxMelt,
}

// String implements fmt.Stringer.
func (p ProductType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProductType.
func (p ProductType) IsValid() bool {
	for _, candidate := range validProductTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProductType converts raw input into a ProductType.
func ParseProductType(value string) (ProductType, error) {
	for _, candidate := range validProductTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product type %q", value)
}
