package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/emberandwick/storefront-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	OperatorID string
	Role       enums.OperatorRole
	JTI        string
}

// AccessTokenClaims represents the typed JWT issued to back-office operators.
type AccessTokenClaims struct {
	OperatorID string             `json:"operator_id"`
	Role       enums.OperatorRole `json:"role"`
	jwt.RegisteredClaims
}
