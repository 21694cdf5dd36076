// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"reflect"
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Money columns are numeric(20,8).
const (
	moneyScale        = 8
	moneyIntegerDigit = 12
)

var statusRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{}, decimal.NullDecimal{})
		_ = v.RegisterValidation("money", validateMoney)
		_ = v.RegisterValidation("investment_status", validateInvestmentStatus)
	}
}

// decimalValue exposes decimals to validation tags as their string form.
func decimalValue(field reflect.Value) interface{} {
	switch d := field.Interface().(type) {
	case decimal.Decimal:
		return d.String()
	case decimal.NullDecimal:
		if !d.Valid {
			return nil
		}
		return d.Decimal.String()
	}
	return nil
}

// validateMoney accepts amounts that fit the ledger's numeric(20,8) columns.
// Sign is not checked here; the services own the positivity rules.
func validateMoney(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	if d.Exponent() < -moneyScale && !d.Equal(d.Truncate(moneyScale)) {
		return false
	}
	return len(d.Abs().Truncate(0).String()) <= moneyIntegerDigit
}

func validateInvestmentStatus(fl validator.FieldLevel) bool {
	return statusRegex.MatchString(fl.Field().String())
}
