package account

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxUsernameLength = 64

var (
	// ErrInvalidUsername indicates that an account username is empty or exceeds storage bounds.
	ErrInvalidUsername = errors.New("account: invalid username")
	// ErrInvalidTier indicates an unrecognized tier value.
	ErrInvalidTier = errors.New("account: invalid tier")
)

// Account mirrors one external gaming-platform account, keyed by username.
// Rows are created or refreshed whenever account data is observed from any
// source (manual entry, heuristic search, webhook, socket payload).
type Account struct {
	Username          string    `gorm:"column:username;primaryKey;size:64;not null"`
	FirstName         string    `gorm:"column:first_name;size:128"`
	LastName          string    `gorm:"column:last_name;size:128"`
	Balance           float64   `gorm:"column:balance;not null;default:0"`
	Credit            float64   `gorm:"column:credit;not null;default:0"`
	BetCredit         float64   `gorm:"column:bet_credit;not null;default:0"`
	Tier              Tier      `gorm:"column:tier;size:16;not null;default:'Bronze'"`
	Points            int64     `gorm:"column:points;not null;default:0"`
	Phone             string    `gorm:"column:phone;size:32"`
	BankName          string    `gorm:"column:bank_name;size:128"`
	BankNumber        string    `gorm:"column:bank_number;size:64"`
	TotalTransactions int64     `gorm:"column:total_transactions;not null;default:0"`
	TotalDeposits     float64   `gorm:"column:total_deposits;not null;default:0"`
	TotalWithdrawals  float64   `gorm:"column:total_withdrawals;not null;default:0"`
	Active            bool      `gorm:"column:active;not null;default:true"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime;index"`
}

// TableName provides the explicit table binding for GORM.
func (Account) TableName() string {
	return "accounts"
}

// DisplayName joins the stored first and last name for matching and rendering.
func (a Account) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(a.FirstName) + " " + strings.TrimSpace(a.LastName))
}

// NormalizeUsername trims and lowercases a raw username, validating bounds.
func NormalizeUsername(rawInput string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(rawInput))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUsername)
	}
	if len(trimmed) > maxUsernameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUsername, maxUsernameLength)
	}
	return trimmed, nil
}
