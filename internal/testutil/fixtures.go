package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"convertax/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email and password "password123".
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		Name:     "Test User",
		Role:     models.RoleUser,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestInvestment creates an investment of the given principal, created
// the given number of calendar months ago, with the balance untouched.
func CreateTestInvestment(t *testing.T, db *gorm.DB, ownerID string, initial string, monthsAgo int) *models.Investment {
	t.Helper()
	return CreateTestInvestmentWithBalance(t, db, ownerID, initial, initial, monthsAgo)
}

// CreateTestInvestmentWithBalance creates an investment whose current amount
// differs from its principal, as it would after earlier withdrawals.
func CreateTestInvestmentWithBalance(t *testing.T, db *gorm.DB, ownerID, initial, current string, monthsAgo int) *models.Investment {
	t.Helper()

	inv := &models.Investment{
		Base:          models.Base{CreatedAt: MonthsAgo(monthsAgo)},
		OwnerID:       ownerID,
		InitialAmount: decimal.RequireFromString(initial),
		CurrentAmount: decimal.RequireFromString(current),
		Status:        models.InvestmentStatusActive,
	}
	if err := db.Create(inv).Error; err != nil {
		t.Fatalf("failed to create test investment: %v", err)
	}
	return inv
}

// MonthsAgo returns a time exactly n calendar months before the current
// month. It is pinned to the first of the month so that month arithmetic
// never overflows into the following month.
func MonthsAgo(n int) time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month()-time.Month(n), 1, 0, 0, 0, 0, time.UTC)
}
