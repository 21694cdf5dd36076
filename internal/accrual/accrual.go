// Package accrual holds the interest and withdrawal-tax arithmetic. Every
// function takes its rates from an explicit Schedule so alternate schedules
// can be injected without touching global state.
package accrual

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TaxBracket applies Rate (a percentage) to withdrawals made once an
// investment is at least MinMonths old.
type TaxBracket struct {
	MinMonths int
	Rate      decimal.Decimal
}

// Schedule is the monthly compounding rate plus the tax brackets, ordered by
// ascending MinMonths with the first bracket starting at zero.
type Schedule struct {
	MonthlyRate decimal.Decimal
	Brackets    []TaxBracket
}

// Tax is the split of a gross withdrawal amount.
type Tax struct {
	Rate decimal.Decimal
	Tax  decimal.Decimal
	Net  decimal.Decimal
}

// DefaultSchedule returns 0.52% per month with brackets of 22.5% below one
// year, 18.5% in the second year and 15% from two years on.
func DefaultSchedule() Schedule {
	return Schedule{
		MonthlyRate: decimal.RequireFromString("0.0052"),
		Brackets: []TaxBracket{
			{MinMonths: 0, Rate: decimal.RequireFromString("22.5")},
			{MinMonths: 12, Rate: decimal.RequireFromString("18.5")},
			{MinMonths: 24, Rate: decimal.NewFromInt(15)},
		},
	}
}

// WithMonthlyRate returns a copy of s using rate for compounding.
func (s Schedule) WithMonthlyRate(rate decimal.Decimal) Schedule {
	s.MonthlyRate = rate
	return s
}

// Validate reports whether the schedule can be used for computation.
func (s Schedule) Validate() error {
	if s.MonthlyRate.IsNegative() {
		return errors.New("monthly rate must not be negative")
	}
	if len(s.Brackets) == 0 {
		return errors.New("at least one tax bracket is required")
	}
	if s.Brackets[0].MinMonths != 0 {
		return errors.New("first tax bracket must start at zero months")
	}
	for i, b := range s.Brackets {
		if b.Rate.IsNegative() || b.Rate.GreaterThan(hundred) {
			return fmt.Errorf("tax bracket %d: rate %s out of range", i, b.Rate)
		}
		if i > 0 && b.MinMonths <= s.Brackets[i-1].MinMonths {
			return fmt.Errorf("tax bracket %d: thresholds must be strictly increasing", i)
		}
	}
	return nil
}

// MonthsElapsed counts calendar months between from and now using only the
// year and month fields, so the day of month never matters.
func MonthsElapsed(from, now time.Time) int {
	from, now = from.UTC(), now.UTC()
	return (now.Year()-from.Year())*12 + int(now.Month()) - int(from.Month())
}

// CompoundValue compounds principal monthly for the given number of months.
// Negative month counts (future creation dates) are treated as zero.
func (s Schedule) CompoundValue(principal decimal.Decimal, months int) decimal.Decimal {
	if months <= 0 {
		return principal
	}
	factor := decimal.NewFromInt(1).Add(s.MonthlyRate).Pow(decimal.NewFromInt(int64(months)))
	return principal.Mul(factor)
}

// TaxRate returns the percentage withheld for an investment of the given age.
func (s Schedule) TaxRate(months int) decimal.Decimal {
	rate := s.Brackets[0].Rate
	for _, b := range s.Brackets {
		if months < b.MinMonths {
			break
		}
		rate = b.Rate
	}
	return rate
}

// SplitTax divides a gross amount into withheld tax and the net payout.
// Tax plus Net always equals amount.
func (s Schedule) SplitTax(amount decimal.Decimal, months int) Tax {
	rate := s.TaxRate(months)
	tax := amount.Mul(rate).Div(hundred)
	return Tax{
		Rate: rate,
		Tax:  tax,
		Net:  amount.Sub(tax),
	}
}
