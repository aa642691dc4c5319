// Package presentation assembles the denormalized balance view shown to a
// linked messaging-platform user. Pure read; nothing here mutates state.
package presentation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/NovaLinkLabs/memberlink/backend/internal/account"
	"github.com/NovaLinkLabs/memberlink/backend/internal/fault"
	"github.com/NovaLinkLabs/memberlink/backend/internal/linking"
	"gorm.io/gorm"
)

const (
	opServiceNew = "presentation.service.new"
	opPresent    = "presentation.present"

	defaultRecentLimit = 10
)

// ErrNotLinked indicates the identity has no active link; callers surface a
// "not linked" prompt instead of a view.
var ErrNotLinked = errors.New("presentation: identity not linked")

// View is the denormalized snapshot for one linked identity.
type View struct {
	IdentityID        string
	Username          string
	Balance           float64
	Credit            float64
	BetCredit         float64
	Tier              account.Tier
	NextTier          string
	Points            int64
	ProgressPercent   int
	TotalTransactions int64
	TotalDeposits     float64
	TotalWithdrawals  float64
	Recent            []account.Transaction
	BalanceDisplay    string
	LastSyncDisplay   string
	LinkedAt          time.Time
}

// ServiceConfig describes the read model dependencies.
type ServiceConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	RecentLimit int
}

// Service builds presentation views.
type Service struct {
	db          *gorm.DB
	clock       func() time.Time
	recentLimit int
}

// NewService constructs the read model service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fault.New(fault.KindValidation, opServiceNew, "missing_database", nil)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	limit := cfg.RecentLimit
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return &Service{db: cfg.Database, clock: clock, recentLimit: limit}, nil
}

// Present assembles the view for the identity, or reports ErrNotLinked when
// no active link exists. Missing optional account figures fall back to their
// zero values rather than failing.
func (s *Service) Present(ctx context.Context, identityID string) (View, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return View{}, fault.New(fault.KindValidation, opPresent, "missing_identity", nil)
	}

	db := s.db.WithContext(ctx)
	link, err := linking.ActiveLinkByIdentity(db, identityID)
	if err != nil {
		return View{}, fault.New(fault.KindUpstream, opPresent, "link_lookup_failed", err)
	}
	if link == nil {
		return View{}, fault.New(fault.KindNotFound, opPresent, "not_linked", ErrNotLinked)
	}

	var acct account.Account
	err = db.Where("username = ?", link.AccountUsername).Take(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return View{}, fault.New(fault.KindNotFound, opPresent, "account_missing", err)
	}
	if err != nil {
		return View{}, fault.New(fault.KindUpstream, opPresent, "account_lookup_failed", err)
	}

	var recent []account.Transaction
	if err := db.
		Where("account_username = ?", acct.Username).
		Order("created_at DESC").
		Limit(s.recentLimit).
		Find(&recent).Error; err != nil {
		return View{}, fault.New(fault.KindUpstream, opPresent, "transaction_query_failed", err)
	}

	now := s.clock().UTC()
	view := View{
		IdentityID:        identityID,
		Username:          acct.Username,
		Balance:           acct.Balance,
		Credit:            acct.Credit,
		BetCredit:         acct.BetCredit,
		Tier:              acct.Tier,
		Points:            acct.Points,
		ProgressPercent:   account.ProgressPercent(acct.Tier, acct.Points),
		TotalTransactions: acct.TotalTransactions,
		TotalDeposits:     acct.TotalDeposits,
		TotalWithdrawals:  acct.TotalWithdrawals,
		Recent:            recent,
		BalanceDisplay:    FormatCurrency(acct.Balance),
		LinkedAt:          link.LinkedAt,
	}
	if next, ok := acct.Tier.Next(); ok {
		view.NextTier = string(next)
	}
	view.LastSyncDisplay = RelativeTime(now, lastSyncOf(db, identityID))
	return view, nil
}

func lastSyncOf(db *gorm.DB, identityID string) *time.Time {
	var row struct {
		LastSyncAt *time.Time
	}
	err := db.Table("identities").
		Select("last_sync_at").
		Where("external_id = ?", identityID).
		Take(&row).Error
	if err != nil {
		return nil
	}
	return row.LastSyncAt
}
