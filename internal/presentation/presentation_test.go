package presentation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/NovaLinkLabs/memberlink/backend/internal/account"
	"github.com/NovaLinkLabs/memberlink/backend/internal/fault"
	"github.com/NovaLinkLabs/memberlink/backend/internal/identity"
	"github.com/NovaLinkLabs/memberlink/backend/internal/linking"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&identity.Identity{}, &account.Account{}, &account.Transaction{}, &linking.Link{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db, RecentLimit: 5})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestPresentNotLinked(t *testing.T) {
	service, db := newTestService(t)
	if err := db.Create(&identity.Identity{ExternalID: "U999"}).Error; err != nil {
		t.Fatalf("failed to seed identity: %v", err)
	}

	_, err := service.Present(context.Background(), "U999")
	if fault.KindOf(err) != fault.KindNotFound {
		t.Fatalf("expected not_found for unlinked identity, got %v", err)
	}
}

func TestPresentAssemblesView(t *testing.T) {
	service, db := newTestService(t)
	lastSync := time.Now().UTC().Add(-10 * time.Minute)

	if err := db.Create(&identity.Identity{ExternalID: "U123", Linked: true, AccountUsername: "demo_user", LastSyncAt: &lastSync}).Error; err != nil {
		t.Fatalf("failed to seed identity: %v", err)
	}
	if err := db.Create(&account.Account{
		Username: "demo_user",
		Balance:  12345.6,
		Tier:     account.TierGold,
		Points:   12000,
		Active:   true,
	}).Error; err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	linkedAt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if err := db.Create(&linking.Link{IdentityID: "U123", AccountUsername: "demo_user", Method: linking.MethodManual, Active: true, LinkedAt: linkedAt}).Error; err != nil {
		t.Fatalf("failed to seed link: %v", err)
	}
	for i := 0; i < 7; i++ {
		txn := account.Transaction{
			TransactionID:   fmt.Sprintf("txn-%d", i),
			AccountUsername: "demo_user",
			Type:            account.TransactionDataSync,
		}
		if err := db.Create(&txn).Error; err != nil {
			t.Fatalf("failed to seed transaction: %v", err)
		}
		if err := db.Model(&account.Transaction{}).
			Where("transaction_id = ?", txn.TransactionID).
			UpdateColumn("created_at", time.Date(2026, 8, 1, i, 0, 0, 0, time.UTC)).Error; err != nil {
			t.Fatalf("failed to stamp transaction: %v", err)
		}
	}

	view, err := service.Present(context.Background(), "U123")
	if err != nil {
		t.Fatalf("present failed: %v", err)
	}
	// Gold band is 5000-20000, so 12000 points is (12000-5000)/15000 = 46.67 -> 47.
	if view.ProgressPercent != 47 {
		t.Fatalf("expected 47%% progress, got %d", view.ProgressPercent)
	}
	if view.NextTier != string(account.TierPlatinum) {
		t.Fatalf("expected Platinum next, got %q", view.NextTier)
	}
	if view.BalanceDisplay != "12,345.60" {
		t.Fatalf("unexpected balance display %q", view.BalanceDisplay)
	}
	if view.LastSyncDisplay != "10 minutes ago" {
		t.Fatalf("unexpected last sync display %q", view.LastSyncDisplay)
	}
	if len(view.Recent) != 5 {
		t.Fatalf("expected recent list capped at 5, got %d", len(view.Recent))
	}
	if view.Recent[0].TransactionID != "txn-6" {
		t.Fatalf("expected newest transaction first, got %q", view.Recent[0].TransactionID)
	}
	if !view.LinkedAt.Equal(linkedAt) {
		t.Fatalf("expected linked-at carried through, got %v", view.LinkedAt)
	}
}

func TestPresentTopTierHasNoNext(t *testing.T) {
	service, db := newTestService(t)
	if err := db.Create(&identity.Identity{ExternalID: "U123", Linked: true, AccountUsername: "whale"}).Error; err != nil {
		t.Fatalf("failed to seed identity: %v", err)
	}
	if err := db.Create(&account.Account{Username: "whale", Tier: account.TierDiamond, Points: 75000, Active: true}).Error; err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	if err := db.Create(&linking.Link{IdentityID: "U123", AccountUsername: "whale", Method: linking.MethodAuto, Active: true, LinkedAt: time.Now()}).Error; err != nil {
		t.Fatalf("failed to seed link: %v", err)
	}

	view, err := service.Present(context.Background(), "U123")
	if err != nil {
		t.Fatalf("present failed: %v", err)
	}
	if view.NextTier != "" {
		t.Fatalf("top tier must have no next, got %q", view.NextTier)
	}
	if view.LastSyncDisplay != "never" {
		t.Fatalf("missing last sync must read never, got %q", view.LastSyncDisplay)
	}
	// Optional totals default to zero instead of failing.
	if view.TotalDeposits != 0 || view.TotalWithdrawals != 0 {
		t.Fatalf("expected zero totals, got %#v", view)
	}
}
