// Package repository is the GORM-backed ledger: investments, their
// withdrawals and the outbox of pending notifications.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"convertax/internal/models"
	"convertax/internal/pagination"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrInsufficientBalance is returned by DebitInvestment when the stored
	// balance no longer covers the amount at write time.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// InvestmentFilter narrows ListInvestments. An empty Status matches every status.
type InvestmentFilter struct {
	OwnerID string
	Status  string
	Page    pagination.PageRequest
}

// LedgerStore is the persistence contract used by the investment and
// withdrawal services.
type LedgerStore interface {
	// WithinTx runs fn against a store bound to a single database transaction.
	WithinTx(ctx context.Context, fn func(tx LedgerStore) error) error
	CreateInvestment(ctx context.Context, inv *models.Investment) error
	// GetInvestment loads an investment with its withdrawals.
	GetInvestment(ctx context.Context, id string) (*models.Investment, error)
	GetOwnedInvestment(ctx context.Context, ownerID, id string) (*models.Investment, error)
	ListInvestments(ctx context.Context, filter InvestmentFilter) ([]models.Investment, error)
	// DebitInvestment subtracts amount only if the current balance still covers it.
	DebitInvestment(ctx context.Context, id string, amount decimal.Decimal) error
	CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error
	EnqueueEvent(ctx context.Context, topic string, payload any) error
}

// OutboxStore is the contract used by the event relay.
type OutboxStore interface {
	PendingEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	// ClaimPending locks up to limit pending events, oldest first, and runs fn
	// with a store bound to the same transaction. Rows locked by another
	// claimant are skipped. fn is not called when nothing is pending.
	ClaimPending(ctx context.Context, limit int, fn func(tx OutboxStore, events []models.OutboxEvent) error) error
	MarkDispatched(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, cause error) error
	// MarkParked records a final failure and removes the event from the pending set.
	MarkParked(ctx context.Context, id string, cause error, at time.Time) error
}

// GormStore implements LedgerStore and OutboxStore on top of GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

var (
	_ LedgerStore = (*GormStore)(nil)
	_ OutboxStore = (*GormStore)(nil)
)

func (s *GormStore) WithinTx(ctx context.Context, fn func(tx LedgerStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) CreateInvestment(ctx context.Context, inv *models.Investment) error {
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		return fmt.Errorf("create investment: %w", err)
	}
	return nil
}

func (s *GormStore) GetInvestment(ctx context.Context, id string) (*models.Investment, error) {
	var inv models.Investment
	err := s.db.WithContext(ctx).
		Preload("Withdrawals", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&inv).Error
	if err != nil {
		return nil, translate("get investment", err)
	}
	return &inv, nil
}

func (s *GormStore) GetOwnedInvestment(ctx context.Context, ownerID, id string) (*models.Investment, error) {
	var inv models.Investment
	if err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&inv).Error; err != nil {
		return nil, translate("get owned investment", err)
	}
	return &inv, nil
}

func (s *GormStore) ListInvestments(ctx context.Context, filter InvestmentFilter) ([]models.Investment, error) {
	q := s.db.WithContext(ctx).Where("owner_id = ?", filter.OwnerID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	investments := []models.Investment{}
	if err := q.Order("created_at ASC").Order("id ASC").
		Scopes(pagination.Paginate(filter.Page)).
		Find(&investments).Error; err != nil {
		return nil, fmt.Errorf("list investments: %w", err)
	}
	return investments, nil
}

// DebitInvestment issues a single conditional UPDATE. The balance predicate is
// evaluated by the database under the row's write lock, so two concurrent
// debits can never both succeed against the same stale balance.
func (s *GormStore) DebitInvestment(ctx context.Context, id string, amount decimal.Decimal) error {
	res := s.db.WithContext(ctx).Model(&models.Investment{}).
		Where("id = ? AND current_amount >= ?", id, amount).
		Updates(map[string]any{
			"current_amount": gorm.Expr("current_amount - ?", amount),
			"version":        gorm.Expr("version + 1"),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("debit investment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func (s *GormStore) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	if err := s.db.WithContext(ctx).Create(w).Error; err != nil {
		return fmt.Errorf("create withdrawal: %w", err)
	}
	return nil
}

func (s *GormStore) EnqueueEvent(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	evt := &models.OutboxEvent{Topic: topic, Payload: string(data)}
	if err := s.db.WithContext(ctx).Create(evt).Error; err != nil {
		return fmt.Errorf("enqueue %s: %w", topic, err)
	}
	return nil
}

// PendingEvents returns undispatched, unparked events oldest first.
func (s *GormStore) PendingEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	if err := s.db.WithContext(ctx).
		Scopes(pendingEvents(limit)).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("pending events: %w", err)
	}
	return events, nil
}

// ClaimPending selects with FOR UPDATE SKIP LOCKED so concurrent relays,
// in this process or another replica, never emit the same row twice.
func (s *GormStore) ClaimPending(ctx context.Context, limit int, fn func(tx OutboxStore, events []models.OutboxEvent) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var events []models.OutboxEvent
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Scopes(pendingEvents(limit)).
			Find(&events).Error; err != nil {
			return fmt.Errorf("claim pending events: %w", err)
		}
		if len(events) == 0 {
			return nil
		}
		return fn(&GormStore{db: tx}, events)
	})
}

func pendingEvents(limit int) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("dispatched_at IS NULL AND failed_at IS NULL").
			Order("created_at ASC").Order("id ASC").
			Limit(limit)
	}
}

func (s *GormStore) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	if err := s.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"dispatched_at": at,
			"attempts":      gorm.Expr("attempts + 1"),
			"last_error":    "",
		}).Error; err != nil {
		return fmt.Errorf("mark event dispatched: %w", err)
	}
	return nil
}

func (s *GormStore) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": msg,
		}).Error; err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	return nil
}

func (s *GormStore) MarkParked(ctx context.Context, id string, cause error, at time.Time) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": msg,
			"failed_at":  at,
		}).Error; err != nil {
		return fmt.Errorf("park event: %w", err)
	}
	return nil
}

func translate(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
