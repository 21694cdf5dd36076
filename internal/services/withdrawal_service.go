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
	"convertax/internal/repository"
)

// WithdrawalEvent is the payload of a withdrawal_processed notification.
type WithdrawalEvent struct {
	InvestmentID      string             `json:"investment_id"`
	OwnerID           string             `json:"owner_id"`
	Amount            decimal.Decimal    `json:"amount"`
	TaxAmount         decimal.Decimal    `json:"tax_amount"`
	TaxRate           decimal.Decimal    `json:"tax_rate"`
	NetAmount         decimal.Decimal    `json:"net_amount"`
	Investment        *models.Investment `json:"investment"`
	UpdatedInvestment *models.Investment `json:"updated_investment"`
}

// withdrawalService processes withdrawals against the ledger.
type withdrawalService struct {
	store    repository.LedgerStore
	cache    cache.Cache
	schedule accrual.Schedule
	now      func() time.Time
	log      *zap.SugaredLogger
}

// NewWithdrawalService creates a new WithdrawalServicer.
func NewWithdrawalService(store repository.LedgerStore, c cache.Cache, schedule accrual.Schedule) WithdrawalServicer {
	return &withdrawalService{
		store:    store,
		cache:    c,
		schedule: schedule,
		now:      time.Now,
		log:      logger.Named("withdrawals"),
	}
}

// Withdraw debits amount from the owner's investment and withholds tax from
// it according to the investment's age. The eligible balance is the stored
// current amount; accrued interest is never withdrawable.
func (s *withdrawalService) Withdraw(ctx context.Context, ownerID, investmentID string, amount decimal.Decimal) (*WithdrawalResult, error) {
	var result *WithdrawalResult

	err := s.store.WithinTx(ctx, func(tx repository.LedgerStore) error {
		inv, err := tx.GetOwnedInvestment(ctx, ownerID, investmentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.ErrInvestmentNotFound
			}
			return err
		}

		if !amount.IsPositive() {
			return apperrors.WithMessage(apperrors.ErrInvalidAmount, "Withdrawal amount must be greater than zero")
		}
		if amount.GreaterThan(inv.CurrentAmount) {
			return apperrors.WithMessage(apperrors.ErrInvalidAmount, "Withdrawal amount exceeds the available balance")
		}

		months := accrual.MonthsElapsed(inv.CreatedAt, s.now())
		split := s.schedule.SplitTax(amount, months)

		if err := tx.DebitInvestment(ctx, inv.ID, amount); err != nil {
			if errors.Is(err, repository.ErrInsufficientBalance) {
				return apperrors.WithMessage(apperrors.ErrInvalidAmount, "Withdrawal amount exceeds the available balance")
			}
			return err
		}

		w := &models.Withdrawal{
			InvestmentID: inv.ID,
			Amount:       amount,
			Tax:          split.Tax,
			TaxRate:      split.Rate,
			NetAmount:    split.Net,
		}
		if err := tx.CreateWithdrawal(ctx, w); err != nil {
			return err
		}

		updated, err := tx.GetInvestment(ctx, inv.ID)
		if err != nil {
			return err
		}

		if err := tx.EnqueueEvent(ctx, events.TopicWithdrawalProcessed, WithdrawalEvent{
			InvestmentID:      inv.ID,
			OwnerID:           ownerID,
			Amount:            amount,
			TaxAmount:         split.Tax,
			TaxRate:           split.Rate,
			NetAmount:         split.Net,
			Investment:        inv,
			UpdatedInvestment: updated,
		}); err != nil {
			return err
		}

		result = &WithdrawalResult{
			Amount:     split.Net,
			TaxAmount:  split.Tax,
			TaxRate:    split.Rate,
			Investment: updated,
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.invalidate(ctx, ownerID, investmentID)

	s.log.Infow("withdrawal processed",
		"investment_id", investmentID,
		"owner_id", ownerID,
		"amount", amount.String(),
		"tax", result.TaxAmount.String(),
		"tax_rate", result.TaxRate.String(),
	)
	return result, nil
}

// invalidate evicts views that no longer match the ledger. Failures leave
// stale entries that expire with their TTL, so they are logged only.
func (s *withdrawalService) invalidate(ctx context.Context, ownerID, investmentID string) {
	if err := s.cache.Delete(ctx, cache.InvestmentKey(investmentID)); err != nil {
		s.log.Warnw("failed to evict investment view", "investment_id", investmentID, "error", err)
	}
	if err := s.cache.DeletePrefix(ctx, cache.InvestmentListPrefix(ownerID)); err != nil {
		s.log.Warnw("failed to invalidate investment lists", "owner_id", ownerID, "error", err)
	}
}
