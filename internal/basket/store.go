package basket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// CheckoutRef links a browser session to the order its last checkout created.
type CheckoutRef struct {
	OrderID         uuid.UUID `json:"order_id"`
	Reference       string    `json:"reference"`
	StripeSessionID string    `json:"stripe_session_id"`
}

// Store persists baskets per browser session.
type Store interface {
	Load(ctx context.Context, sessionID string) (Basket, error)
	Save(ctx context.Context, sessionID string, b Basket) error
	Clear(ctx context.Context, sessionID string) error
	SaveCheckout(ctx context.Context, sessionID string, ref CheckoutRef) error
	LoadCheckout(ctx context.Context, sessionID string) (*CheckoutRef, error)
}

type keyValue interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	BasketKey(sessionID string) string
	CheckoutKey(sessionID string) string
}

// RedisStore keeps baskets as JSON documents with a sliding TTL.
type RedisStore struct {
	kv  keyValue
	ttl time.Duration
}

// NewRedisStore builds a store backed by kv.
func NewRedisStore(kv keyValue, ttl time.Duration) (*RedisStore, error) {
	if kv == nil {
		return nil, errors.New("redis client required")
	}
	if ttl <= 0 {
		return nil, errors.New("basket ttl must be positive")
	}
	return &RedisStore{kv: kv, ttl: ttl}, nil
}

// Load returns the stored basket, or an empty one when nothing is stored.
// Reading refreshes the expiry.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (Basket, error) {
	key := s.kv.BasketKey(sessionID)
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, goredis.Nil) {
		return Basket{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load basket: %w", err)
	}

	b := Basket{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			return nil, fmt.Errorf("decode basket: %w", err)
		}
	}
	if _, err := s.kv.Expire(ctx, key, s.ttl); err != nil {
		return nil, fmt.Errorf("refresh basket ttl: %w", err)
	}
	return b, nil
}

// Save overwrites the basket. Empty baskets are deleted.
func (s *RedisStore) Save(ctx context.Context, sessionID string, b Basket) error {
	if b.IsEmpty() {
		return s.Clear(ctx, sessionID)
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode basket: %w", err)
	}
	if err := s.kv.Set(ctx, s.kv.BasketKey(sessionID), string(payload), s.ttl); err != nil {
		return fmt.Errorf("save basket: %w", err)
	}
	return nil
}

// Clear removes the basket.
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.kv.Del(ctx, s.kv.BasketKey(sessionID)); err != nil {
		return fmt.Errorf("clear basket: %w", err)
	}
	return nil
}

// SaveCheckout records the order created by the session's latest checkout.
func (s *RedisStore) SaveCheckout(ctx context.Context, sessionID string, ref CheckoutRef) error {
	payload, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("encode checkout ref: %w", err)
	}
	if err := s.kv.Set(ctx, s.kv.CheckoutKey(sessionID), string(payload), s.ttl); err != nil {
		return fmt.Errorf("save checkout ref: %w", err)
	}
	return nil
}

// LoadCheckout returns the session's checkout reference, or nil when none exists.
func (s *RedisStore) LoadCheckout(ctx context.Context, sessionID string) (*CheckoutRef, error) {
	raw, err := s.kv.Get(ctx, s.kv.CheckoutKey(sessionID))
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkout ref: %w", err)
	}
	var ref CheckoutRef
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return nil, fmt.Errorf("decode checkout ref: %w", err)
	}
	return &ref, nil
}
