// Package ledger ingests externally reported transactions over the webhook
// path. Each entry is authenticated with a shared secret, validated, applied
// to the account balance where the type calls for it, and appended to the
// immutable transaction history in a single database transaction.
package ledger

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"time"

	"github.com/NovaLinkLabs/memberlink/backend/internal/account"
	"github.com/NovaLinkLabs/memberlink/backend/internal/fault"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew = "ledger.service.new"
	opRecord     = "ledger.record"

	defaultSource = "webhook"
)

// Entry is one externally reported transaction.
type Entry struct {
	Username string
	Type     string
	Amount   float64
	Source   string
	Detail   map[string]any
}

// ServiceConfig describes the ingestion dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider account.IDProvider
	Secret     string
	Logger     *zap.Logger
}

// Service records webhook transactions against accounts.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	ids    account.IDProvider
	secret []byte
	logger *zap.Logger
}

// NewService constructs the ingestion service. The shared secret is
// mandatory; without one the webhook surface must not be exposed at all.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fault.New(fault.KindValidation, opServiceNew, "missing_database", nil)
	}
	if cfg.IDProvider == nil {
		return nil, fault.New(fault.KindValidation, opServiceNew, "missing_id_provider", nil)
	}
	if cfg.Secret == "" {
		return nil, fault.New(fault.KindValidation, opServiceNew, "missing_secret", nil)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		clock:  clock,
		ids:    cfg.IDProvider,
		secret: []byte(cfg.Secret),
		logger: logger,
	}, nil
}

// Record authenticates the presented secret, validates the entry, and applies
// it. Balance-affecting types move the account balance and its counters;
// informational types only append history. Nothing is persisted on any
// rejection.
func (s *Service) Record(ctx context.Context, presentedSecret string, entry Entry) (*account.Transaction, error) {
	if subtle.ConstantTimeCompare([]byte(presentedSecret), s.secret) != 1 {
		return nil, fault.New(fault.KindUnauthorized, opRecord, "bad_secret", nil)
	}

	username, err := account.NormalizeUsername(entry.Username)
	if err != nil {
		return nil, fault.New(fault.KindValidation, opRecord, "invalid_username", err)
	}
	txnType, err := account.ParseTransactionType(entry.Type)
	if err != nil {
		return nil, fault.New(fault.KindValidation, opRecord, "invalid_type", err)
	}
	// Link and sync rows are minted internally by the resolver and the
	// reconciler; external callers may not forge them.
	if txnType == account.TransactionAccountLink || txnType == account.TransactionDataSync {
		return nil, fault.New(fault.KindValidation, opRecord, "internal_type", nil)
	}
	if txnType.BalanceAffecting() {
		if entry.Amount <= 0 {
			return nil, fault.New(fault.KindValidation, opRecord, "invalid_amount", nil)
		}
	} else if entry.Amount != 0 {
		return nil, fault.New(fault.KindValidation, opRecord, "amount_not_allowed", nil)
	}

	var recorded *account.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acct account.Account
		lookupErr := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("username = ?", username).
			Take(&acct).Error
		if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return fault.New(fault.KindNotFound, opRecord, "account_missing", lookupErr)
		}
		if lookupErr != nil {
			return fault.New(fault.KindUpstream, opRecord, "account_lookup_failed", lookupErr)
		}

		balanceBefore := acct.Balance
		switch txnType {
		case account.TransactionDeposit, account.TransactionWin:
			acct.Balance += entry.Amount
		case account.TransactionWithdrawal, account.TransactionBet:
			if acct.Balance < entry.Amount {
				return fault.New(fault.KindConflict, opRecord, "insufficient_balance", nil)
			}
			acct.Balance -= entry.Amount
		}
		acct.TotalTransactions++
		if txnType == account.TransactionDeposit {
			acct.TotalDeposits += entry.Amount
		}
		if txnType == account.TransactionWithdrawal {
			acct.TotalWithdrawals += entry.Amount
		}

		transactionID, idErr := s.ids.NewID()
		if idErr != nil {
			return fault.New(fault.KindUpstream, opRecord, "id_generation_failed", idErr)
		}
		source := entry.Source
		if source == "" {
			source = defaultSource
		}
		txn := account.Transaction{
			TransactionID:   transactionID,
			AccountUsername: acct.Username,
			Type:            txnType,
			Amount:          entry.Amount,
			BalanceBefore:   balanceBefore,
			BalanceAfter:    acct.Balance,
			Source:          source,
			DetailJSON:      encodeDetail(entry.Detail),
		}
		if createErr := tx.Create(&txn).Error; createErr != nil {
			return fault.New(fault.KindUpstream, opRecord, "transaction_append_failed", createErr)
		}
		if saveErr := tx.Save(&acct).Error; saveErr != nil {
			return fault.New(fault.KindUpstream, opRecord, "account_update_failed", saveErr)
		}
		recorded = &txn
		return nil
	})
	if err != nil {
		s.logError(opRecord, err)
		return nil, err
	}

	s.logger.Info("recorded external transaction",
		zap.String("username", username),
		zap.String("type", string(txnType)),
		zap.Float64("amount", entry.Amount))
	return recorded, nil
}

func encodeDetail(detail map[string]any) string {
	if len(detail) == 0 {
		return ""
	}
	encoded, err := json.Marshal(detail)
	if err != nil {
		return ""
	}
	return string(encoded)
}

func (s *Service) logError(operation string, err error) {
	s.logger.Error("ledger operation failed", zap.String("operation", operation), zap.Error(err))
}
