// Package cache is the read-through cache consulted before the ledger store.
// Values are stored JSON-encoded so every backend returns the same shapes.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache stores JSON-encodable values under string keys with a TTL.
type Cache interface {
	// Get decodes the value stored under key into dest. It reports false
	// without error on a miss.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// InvestmentKey is the key of a single investment's accrual view.
func InvestmentKey(id string) string {
	return "investment_" + id
}

// InvestmentListKey is the key of one page of an owner's investment list.
func InvestmentListKey(ownerID, status string, page, pageSize int) string {
	return fmt.Sprintf("%s%s_%d_%d", InvestmentListPrefix(ownerID), status, page, pageSize)
}

// InvestmentListPrefix matches every cached list page of an owner.
func InvestmentListPrefix(ownerID string) string {
	return "investments_" + ownerID + "_"
}
