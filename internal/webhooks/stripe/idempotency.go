package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	pkgredis "github.com/emberandwick/storefront-backend/pkg/redis"
)

// ClaimState is the outcome of claiming a payment event id.
type ClaimState int

const (
	// ClaimAcquired means this delivery owns the event and must process it.
	ClaimAcquired ClaimState = iota
	// ClaimProcessed means an earlier delivery finished the event.
	ClaimProcessed
	// ClaimInFlight means another delivery is processing the event right now.
	ClaimInFlight
)

const (
	markerProcessing = "processing"
	markerDone       = "done"
	processingTTL    = 5 * time.Minute
)

type claimStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// IdempotencyGuard tracks payment event ids across redeliveries. A claim is
// held briefly while the event is processed and becomes a long-lived done
// marker once it succeeds.
type IdempotencyGuard struct {
	store claimStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store claimStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl <= 0:
		return nil, errors.New("ttl must be positive")
	case scope == "":
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Claim tries to take ownership of eventID for processing.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (ClaimState, error) {
	key, err := g.key(eventID)
	if err != nil {
		return ClaimAcquired, err
	}
	won, err := g.store.SetNX(ctx, key, markerProcessing, processingTTL)
	if err != nil {
		return ClaimAcquired, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	if won {
		return ClaimAcquired, nil
	}

	marker, err := g.store.Get(ctx, key)
	if err != nil && !errors.Is(err, redis.Nil) {
		return ClaimAcquired, fmt.Errorf("read claim %s: %w", eventID, err)
	}
	if marker == markerDone {
		return ClaimProcessed, nil
	}
	return ClaimInFlight, nil
}

// Complete records eventID as processed for the guard's ttl.
func (g *IdempotencyGuard) Complete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Set(ctx, key, markerDone, g.ttl)
}

// Release drops a claim so the gateway's next retry is processed.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *IdempotencyGuard) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}
