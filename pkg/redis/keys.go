package redis

import "strings"

const defaultPrefix = "sf"

// Keyspace builds colon-separated keys under a deployment prefix.
type Keyspace struct {
	Prefix string
}

// IdempotencyKey namespaces a deduplication record by caller scope.
func (k Keyspace) IdempotencyKey(scope, id string) string {
	return k.join("idempotency", scope, id)
}

// BasketKey holds the basket document for a browser session.
func (k Keyspace) BasketKey(sessionID string) string {
	return k.join("basket", sessionID)
}

// CheckoutKey correlates a browser session with its most recent order.
func (k Keyspace) CheckoutKey(sessionID string) string {
	return k.join("checkout", sessionID)
}

// LockKey names a distributed worker lock; env may be empty.
func (k Keyspace) LockKey(name, env string) string {
	return k.join("lock", name, env)
}

func (k Keyspace) join(parts ...string) string {
	prefix := strings.TrimSpace(k.Prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	out := []string{prefix}
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, ":")
}
