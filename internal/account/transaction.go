package account

import (
	"errors"
	"fmt"
	"time"
)

// TransactionType enumerates the recorded event kinds.
type TransactionType string

const (
	TransactionDeposit     TransactionType = "deposit"
	TransactionWithdrawal  TransactionType = "withdrawal"
	TransactionBet         TransactionType = "bet"
	TransactionWin         TransactionType = "win"
	TransactionAccountLink TransactionType = "account_link"
	TransactionDataSync    TransactionType = "data_sync"
	TransactionHeartbeat   TransactionType = "heartbeat"
	TransactionUserLogin   TransactionType = "user_login"
)

// ErrInvalidTransactionType indicates an unrecognized transaction type value.
var ErrInvalidTransactionType = errors.New("account: invalid transaction type")

var knownTransactionTypes = map[TransactionType]bool{
	TransactionDeposit:     true,
	TransactionWithdrawal:  true,
	TransactionBet:         true,
	TransactionWin:         true,
	TransactionAccountLink: true,
	TransactionDataSync:    true,
	TransactionHeartbeat:   true,
	TransactionUserLogin:   true,
}

// Valid reports whether the type is one of the recorded event kinds.
func (t TransactionType) Valid() bool {
	return knownTransactionTypes[t]
}

// BalanceAffecting reports whether this type moves the account balance.
func (t TransactionType) BalanceAffecting() bool {
	switch t {
	case TransactionDeposit, TransactionWithdrawal, TransactionBet, TransactionWin:
		return true
	default:
		return false
	}
}

// ParseTransactionType validates a raw transaction type value.
func ParseTransactionType(rawInput string) (TransactionType, error) {
	candidate := TransactionType(rawInput)
	if !candidate.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, rawInput)
	}
	return candidate, nil
}

// Transaction is the append-only record of a balance-affecting or
// informational event. Rows are never mutated after creation.
type Transaction struct {
	TransactionID   string          `gorm:"column:transaction_id;primaryKey;size:190;not null"`
	AccountUsername string          `gorm:"column:account_username;size:64;not null;index:idx_txn_account_time,priority:1"`
	IdentityID      string          `gorm:"column:identity_id;size:190;index"`
	Type            TransactionType `gorm:"column:type;size:20;not null"`
	Amount          float64         `gorm:"column:amount;not null"`
	BalanceBefore   float64         `gorm:"column:balance_before;not null"`
	BalanceAfter    float64         `gorm:"column:balance_after;not null"`
	Source          string          `gorm:"column:source;size:32"`
	DetailJSON      string          `gorm:"column:detail_json;type:text"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime;index:idx_txn_account_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Transaction) TableName() string {
	return "account_transactions"
}
