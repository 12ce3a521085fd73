package middleware

import (
	"context"

	"github.com/emberandwick/storefront-backend/pkg/enums"
)

type ctxKey int

const (
	operatorKey ctxKey = iota
	basketSessionKey
)

// Operator is the authenticated back-office caller.
type Operator struct {
	ID   string
	Role enums.OperatorRole
}

func WithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

// OperatorFromContext returns the operator recorded by Auth.
func OperatorFromContext(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorKey).(Operator)
	return op, ok && op.ID != ""
}

func WithBasketSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, basketSessionKey, sessionID)
}

// BasketSessionFromContext returns the id set by BasketSession, or "".
func BasketSessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(basketSessionKey).(string)
	return id
}
