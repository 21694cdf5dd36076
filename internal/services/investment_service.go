package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"convertax/internal/accrual"
	"convertax/internal/cache"
	apperrors "convertax/internal/errors"
	"convertax/internal/events"
	"convertax/internal/logger"
	"convertax/internal/models"
	"convertax/internal/pagination"
	"convertax/internal/repository"
)

// investmentService handles investment accounting.
type investmentService struct {
	store    repository.LedgerStore
	cache    cache.Cache
	schedule accrual.Schedule
	ttl      time.Duration
	now      func() time.Time
	log      *zap.SugaredLogger
}

// NewInvestmentService creates a new InvestmentServicer.
func NewInvestmentService(store repository.LedgerStore, c cache.Cache, schedule accrual.Schedule, ttl time.Duration) InvestmentServicer {
	return &investmentService{
		store:    store,
		cache:    c,
		schedule: schedule,
		ttl:      ttl,
		now:      time.Now,
		log:      logger.Named("investments"),
	}
}

// CreateInvestment persists a new investment with its full principal as the
// current balance and queues an investment_created event.
func (s *investmentService) CreateInvestment(ctx context.Context, ownerID string, initialAmount decimal.Decimal, createdAt *time.Time) (*models.Investment, error) {
	if !initialAmount.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidAmount, "Initial amount must be greater than zero")
	}
	if ownerID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Owner is required")
	}

	opened := s.now()
	if createdAt != nil && !createdAt.IsZero() {
		opened = *createdAt
	}

	inv := &models.Investment{
		Base:          models.Base{CreatedAt: opened.UTC()},
		OwnerID:       ownerID,
		InitialAmount: initialAmount,
		CurrentAmount: initialAmount,
		Status:        models.InvestmentStatusActive,
	}

	err := s.store.WithinTx(ctx, func(tx repository.LedgerStore) error {
		if err := tx.CreateInvestment(ctx, inv); err != nil {
			return err
		}
		return tx.EnqueueEvent(ctx, events.TopicInvestmentCreated, inv)
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := s.cache.DeletePrefix(ctx, cache.InvestmentListPrefix(ownerID)); err != nil {
		s.log.Warnw("failed to invalidate investment lists", "owner_id", ownerID, "error", err)
	}

	s.log.Infow("investment created", "investment_id", inv.ID, "owner_id", ownerID, "initial_amount", initialAmount.String())
	return inv, nil
}

// GetInvestment returns the accrual view of an investment, served from the
// cache when present. Cached views are not refreshed until they expire or a
// withdrawal against the investment evicts them.
func (s *investmentService) GetInvestment(ctx context.Context, id string) (*InvestmentView, error) {
	key := cache.InvestmentKey(id)

	var cached InvestmentView
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if hit {
		return &cached, nil
	}

	inv, err := s.store.GetInvestment(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrInvestmentNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	view := s.buildView(inv)
	if err := s.cache.Set(ctx, key, view, s.ttl); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return view, nil
}

func (s *investmentService) buildView(inv *models.Investment) *InvestmentView {
	months := accrual.MonthsElapsed(inv.CreatedAt, s.now())
	if months < 0 {
		months = 0
	}
	interest := s.schedule.CompoundValue(inv.InitialAmount, months)
	return &InvestmentView{
		Investment:       *inv,
		MonthsElapsed:    months,
		CompoundInterest: interest,
		TotalAmount:      inv.CurrentAmount.Add(interest),
	}
}

// ListInvestments returns one page of an owner's investments, oldest first.
// An empty status matches every status.
func (s *investmentService) ListInvestments(ctx context.Context, ownerID, status string, page pagination.PageRequest) (*pagination.Page[models.Investment], error) {
	page.Defaults()
	key := cache.InvestmentListKey(ownerID, status, page.Page, page.PageSize)

	var cached pagination.Page[models.Investment]
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if hit {
		return &cached, nil
	}

	investments, err := s.store.ListInvestments(ctx, repository.InvestmentFilter{
		OwnerID: ownerID,
		Status:  status,
		Page:    page,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPage(investments, page)
	if err := s.cache.Set(ctx, key, result, s.ttl); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &result, nil
}
