package models

import "github.com/shopspring/decimal"

// InvestmentStatusActive is assigned to new investments. Other lifecycle
// values are owned by downstream consumers and only used for filtering.
const InvestmentStatusActive = "active"

// Investment is a principal deposited by a user. InitialAmount never changes;
// CurrentAmount is only ever reduced, by withdrawals.
type Investment struct {
	Base
	OwnerID       string          `gorm:"type:uuid;not null;index" json:"owner_id"`
	InitialAmount decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"initial_amount"`
	CurrentAmount decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"current_amount"`
	Status        string          `gorm:"size:32;not null;default:'active';index" json:"status"`
	Version       int64           `gorm:"not null;default:0" json:"version"`

	Withdrawals []Withdrawal `gorm:"foreignKey:InvestmentID" json:"withdrawals,omitempty"`
}

// Withdrawal records a gross debit against an investment and the tax withheld from it.
type Withdrawal struct {
	Base
	InvestmentID string          `gorm:"type:uuid;not null;index" json:"investment_id"`
	Amount       decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"amount"`
	Tax          decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"tax"`
	TaxRate      decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"tax_rate"`
	NetAmount    decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"net_amount"`
}
