// Package syncing merges freshly observed account data into persisted state
// and derives transactions from balance deltas.
package syncing

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/NovaLinkLabs/memberlink/backend/internal/account"
	"github.com/NovaLinkLabs/memberlink/backend/internal/fault"
	"github.com/NovaLinkLabs/memberlink/backend/internal/identity"
	"github.com/NovaLinkLabs/memberlink/backend/internal/linking"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opReconcilerNew = "syncing.reconciler.new"
	opReconcile     = "syncing.reconcile"

	defaultFreshnessWindow = 5 * time.Minute

	// minBalanceDelta is the smallest balance movement treated as a real
	// deposit or withdrawal; deltaEpsilon absorbs float representation noise
	// so a payload carrying exactly 0.01 is never dropped.
	minBalanceDelta = 0.01
	deltaEpsilon    = 1e-9
)

// SyncStatus tags the outcome of a reconcile call.
type SyncStatus string

const (
	StatusUpdated SyncStatus = "updated"
	StatusCached  SyncStatus = "cached"
)

// Options adjusts a single reconcile call.
type Options struct {
	// Force skips the freshness window and always merges.
	Force bool
	// Source tags the derived transactions with where the observation came from.
	Source string
}

// Result carries the post-merge snapshot and what changed.
type Result struct {
	Status             SyncStatus
	Account            account.Account
	ChangedFields      []string
	BalanceTransaction *account.Transaction
}

// ReconcilerConfig describes the reconciler dependencies.
type ReconcilerConfig struct {
	Database        *gorm.DB
	Clock           func() time.Time
	IDProvider      account.IDProvider
	Logger          *zap.Logger
	FreshnessWindow time.Duration
}

// Reconciler applies observed account data for an already-linked identity.
type Reconciler struct {
	db        *gorm.DB
	clock     func() time.Time
	ids       account.IDProvider
	logger    *zap.Logger
	freshness time.Duration
}

// NewReconciler constructs the reconciler.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.Database == nil {
		return nil, fault.New(fault.KindValidation, opReconcilerNew, "missing_database", nil)
	}
	if cfg.IDProvider == nil {
		return nil, fault.New(fault.KindValidation, opReconcilerNew, "missing_id_provider", nil)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	window := cfg.FreshnessWindow
	if window <= 0 {
		window = defaultFreshnessWindow
	}
	return &Reconciler{
		db:        cfg.Database,
		clock:     clock,
		ids:       cfg.IDProvider,
		logger:    logger,
		freshness: window,
	}, nil
}

// Reconcile merges the observed data into the linked account. The whole call
// is one transaction: either every write lands or none does. When the stored
// row is fresher than the window and Force is unset, nothing is touched and
// the cached snapshot is returned.
func (r *Reconciler) Reconcile(ctx context.Context, identityID string, observed account.Observed, opts Options) (Result, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return Result{}, fault.New(fault.KindValidation, opReconcile, "missing_identity", nil)
	}

	var result Result
	txErr := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.clock().UTC()

		link, err := linking.ActiveLinkByIdentity(tx, identityID)
		if err != nil {
			return fault.New(fault.KindUpstream, opReconcile, "link_lookup_failed", err)
		}
		if link == nil {
			return fault.New(fault.KindNotFound, opReconcile, "not_linked", nil)
		}
		if observed.Username != "" {
			username, err := account.NormalizeUsername(observed.Username)
			if err != nil {
				return fault.New(fault.KindValidation, opReconcile, "invalid_username", err)
			}
			if username != link.AccountUsername {
				return fault.New(fault.KindValidation, opReconcile, "username_mismatch", nil)
			}
		}
		if observed.Tier != nil && !observed.Tier.Valid() {
			return fault.New(fault.KindValidation, opReconcile, "invalid_tier", account.ErrInvalidTier)
		}

		var acct account.Account
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("username = ?", link.AccountUsername).
			Take(&acct).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.KindNotFound, opReconcile, "account_missing", err)
		}
		if err != nil {
			return fault.New(fault.KindUpstream, opReconcile, "account_lookup_failed", err)
		}

		if !opts.Force && now.Sub(acct.UpdatedAt) < r.freshness {
			result = Result{Status: StatusCached, Account: acct}
			return nil
		}

		balanceBefore := acct.Balance
		changed := observed.Apply(&acct)

		var balanceTxn *account.Transaction
		if observed.Available != nil {
			delta := *observed.Available - balanceBefore
			if math.Abs(delta) >= minBalanceDelta-deltaEpsilon {
				balanceTxn, err = r.appendBalanceTransaction(tx, &acct, identityID, balanceBefore, delta, opts.Source)
				if err != nil {
					return err
				}
			}
		}

		if err := r.appendSyncTransaction(tx, &acct, identityID, observed, opts.Source); err != nil {
			return err
		}

		if err := tx.Save(&acct).Error; err != nil {
			return fault.New(fault.KindUpstream, opReconcile, "account_save_failed", err)
		}
		if err := tx.Model(&identity.Identity{}).
			Where("external_id = ?", identityID).
			Update("last_sync_at", now).Error; err != nil {
			return fault.New(fault.KindUpstream, opReconcile, "identity_update_failed", err)
		}

		acct.UpdatedAt = now
		result = Result{
			Status:             StatusUpdated,
			Account:            acct,
			ChangedFields:      changed,
			BalanceTransaction: balanceTxn,
		}
		return nil
	})
	if txErr != nil {
		r.logger.Error("reconcile failed",
			zap.String("operation", opReconcile),
			zap.String("identity_id", identityID),
			zap.Error(txErr))
		return Result{}, txErr
	}
	return result, nil
}

func (r *Reconciler) appendBalanceTransaction(tx *gorm.DB, acct *account.Account, identityID string, balanceBefore, delta float64, source string) (*account.Transaction, error) {
	transactionID, err := r.ids.NewID()
	if err != nil {
		return nil, fault.New(fault.KindUpstream, opReconcile, "id_generation_failed", err)
	}

	kind := account.TransactionDeposit
	if delta < 0 {
		kind = account.TransactionWithdrawal
	}
	amount := math.Abs(delta)

	record := account.Transaction{
		TransactionID:   transactionID,
		AccountUsername: acct.Username,
		IdentityID:      identityID,
		Type:            kind,
		Amount:          amount,
		BalanceBefore:   balanceBefore,
		BalanceAfter:    acct.Balance,
		Source:          source,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, fault.New(fault.KindUpstream, opReconcile, "transaction_insert_failed", err)
	}

	if kind == account.TransactionDeposit {
		acct.TotalDeposits += amount
	} else {
		acct.TotalWithdrawals += amount
	}
	acct.TotalTransactions++
	return &record, nil
}

// appendSyncTransaction records the full observed payload for audit, whether
// or not a balance delta was found.
func (r *Reconciler) appendSyncTransaction(tx *gorm.DB, acct *account.Account, identityID string, observed account.Observed, source string) error {
	transactionID, err := r.ids.NewID()
	if err != nil {
		return fault.New(fault.KindUpstream, opReconcile, "id_generation_failed", err)
	}
	detail, err := json.Marshal(observedDetail(observed))
	if err != nil {
		return fault.New(fault.KindUpstream, opReconcile, "detail_encode_failed", err)
	}
	record := account.Transaction{
		TransactionID:   transactionID,
		AccountUsername: acct.Username,
		IdentityID:      identityID,
		Type:            account.TransactionDataSync,
		Amount:          0,
		BalanceBefore:   acct.Balance,
		BalanceAfter:    acct.Balance,
		Source:          source,
		DetailJSON:      string(detail),
	}
	if err := tx.Create(&record).Error; err != nil {
		return fault.New(fault.KindUpstream, opReconcile, "transaction_insert_failed", err)
	}
	acct.TotalTransactions++
	return nil
}

// observedDetail flattens the present fields of the observation for the audit
// payload, skipping absent ones.
func observedDetail(observed account.Observed) map[string]interface{} {
	detail := map[string]interface{}{}
	if observed.Username != "" {
		detail["username"] = observed.Username
	}
	if observed.FirstName != nil {
		detail["first_name"] = *observed.FirstName
	}
	if observed.LastName != nil {
		detail["last_name"] = *observed.LastName
	}
	if observed.Available != nil {
		detail["available"] = *observed.Available
	}
	if observed.Credit != nil {
		detail["credit"] = *observed.Credit
	}
	if observed.BetCredit != nil {
		detail["bet_credit"] = *observed.BetCredit
	}
	if observed.Tier != nil {
		detail["tier"] = string(*observed.Tier)
	}
	if observed.Points != nil {
		detail["points"] = *observed.Points
	}
	if observed.Phone != nil {
		detail["phone"] = *observed.Phone
	}
	if observed.BankName != nil {
		detail["bank_name"] = *observed.BankName
	}
	if observed.BankNumber != nil {
		detail["bank_number"] = *observed.BankNumber
	}
	if observed.Active != nil {
		detail["active"] = *observed.Active
	}
	return detail
}
