package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"convertax/internal/logger"
	"convertax/internal/models"
	"convertax/internal/repository"
)

func init() {
	logger.Init("test", "")
}

// countingStore wraps a LedgerStore and counts the calls that reach it.
type countingStore struct {
	repository.LedgerStore

	mu    sync.Mutex
	gets  int
	lists int
	txs   int
}

func (s *countingStore) WithinTx(ctx context.Context, fn func(tx repository.LedgerStore) error) error {
	s.mu.Lock()
	s.txs++
	s.mu.Unlock()
	return s.LedgerStore.WithinTx(ctx, fn)
}

func (s *countingStore) GetInvestment(ctx context.Context, id string) (*models.Investment, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.LedgerStore.GetInvestment(ctx, id)
}

func (s *countingStore) ListInvestments(ctx context.Context, filter repository.InvestmentFilter) ([]models.Investment, error) {
	s.mu.Lock()
	s.lists++
	s.mu.Unlock()
	return s.LedgerStore.ListInvestments(ctx, filter)
}

// brokenCache fails every operation.
type brokenCache struct{}

var errCacheDown = errors.New("cache unavailable")

func (brokenCache) Get(context.Context, string, any) (bool, error)        { return false, errCacheDown }
func (brokenCache) Set(context.Context, string, any, time.Duration) error { return errCacheDown }
func (brokenCache) Delete(context.Context, ...string) error               { return errCacheDown }
func (brokenCache) DeletePrefix(context.Context, string) error            { return errCacheDown }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// staleReadStore serves owned investments with an outdated balance, as a
// concurrent transaction would see them before another debit commits.
type staleReadStore struct {
	repository.LedgerStore
	balance decimal.Decimal
}

func (s *staleReadStore) WithinTx(ctx context.Context, fn func(tx repository.LedgerStore) error) error {
	return s.LedgerStore.WithinTx(ctx, func(tx repository.LedgerStore) error {
		return fn(&staleReadStore{LedgerStore: tx, balance: s.balance})
	})
}

func (s *staleReadStore) GetOwnedInvestment(ctx context.Context, ownerID, id string) (*models.Investment, error) {
	inv, err := s.LedgerStore.GetOwnedInvestment(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	inv.CurrentAmount = s.balance
	return inv, nil
}
