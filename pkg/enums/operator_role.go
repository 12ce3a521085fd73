package enums

import "fmt"

// OperatorRole scopes what a back-office operator may do.
type OperatorRole string

const (
	// OperatorRoleAdmin may read and change orders.
	OperatorRoleAdmin OperatorRole = "admin"
	// OperatorRoleViewer may only read orders.
	OperatorRoleViewer OperatorRole = "viewer"
)

var validOperatorRoles = []OperatorRole{
	OperatorRoleAdmin,
	OperatorRoleViewer,
}

// String implements fmt.Stringer.
func (r OperatorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known OperatorRole.
func (r OperatorRole) IsValid() bool {
	for _, candidate := range validOperatorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseOperatorRole converts raw input into an OperatorRole.
func ParseOperatorRole(value string) (OperatorRole, error) {
	for _, candidate := range validOperatorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operator role %q", value)
}
