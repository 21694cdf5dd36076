package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"convertax/internal/models"
	"convertax/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(ctx context.Context, email, password, name string) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, page pagination.PageRequest) (*pagination.Page[models.User], error)
}

// InvestmentView is an investment as shown to its owner: the stored record
// plus interest accrued on the principal since creation.
type InvestmentView struct {
	models.Investment
	MonthsElapsed    int             `json:"months_elapsed"`
	CompoundInterest decimal.Decimal `json:"compound_interest"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
}

// InvestmentServicer defines the contract for investment accounting.
type InvestmentServicer interface {
	// CreateInvestment opens an investment for ownerID. A nil createdAt means now.
	CreateInvestment(ctx context.Context, ownerID string, initialAmount decimal.Decimal, createdAt *time.Time) (*models.Investment, error)
	GetInvestment(ctx context.Context, id string) (*InvestmentView, error)
	ListInvestments(ctx context.Context, ownerID, status string, page pagination.PageRequest) (*pagination.Page[models.Investment], error)
}

// WithdrawalResult is returned to the caller of a successful withdrawal.
// Amount is what the owner receives after tax.
type WithdrawalResult struct {
	Amount     decimal.Decimal    `json:"amount"`
	TaxAmount  decimal.Decimal    `json:"tax_amount"`
	TaxRate    decimal.Decimal    `json:"tax_rate"`
	Investment *models.Investment `json:"investment"`
}

// WithdrawalServicer defines the contract for processing withdrawals.
type WithdrawalServicer interface {
	Withdraw(ctx context.Context, ownerID, investmentID string, amount decimal.Decimal) (*WithdrawalResult, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(ctx context.Context, userID, action, resourceType, resourceID, ipAddress string, changes map[string]any)
}
