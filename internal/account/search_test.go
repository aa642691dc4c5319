package account

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Account{}, &Transaction{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func seedAccount(t *testing.T, db *gorm.DB, acct Account) {
	t.Helper()
	if acct.Tier == "" {
		acct.Tier = TierBronze
	}
	acct.Active = true
	if err := db.Create(&acct).Error; err != nil {
		t.Fatalf("failed to seed account %q: %v", acct.Username, err)
	}
}

func TestFindByUsernameMissingReturnsNil(t *testing.T) {
	db := newTestDB(t)
	acct, err := FindByUsername(db, "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct != nil {
		t.Fatalf("expected nil account for missing row")
	}
}

func TestFindByUsernameFuzzyPrefersRecentlyActive(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, Account{Username: "alpha_one"})
	seedAccount(t, db, Account{Username: "alpha_two"})
	if err := db.Model(&Account{}).Where("username = ?", "alpha_one").
		UpdateColumn("updated_at", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)).Error; err != nil {
		t.Fatalf("failed to age account: %v", err)
	}

	acct, err := FindByUsernameFuzzy(db, "alpha")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acct == nil || acct.Username != "alpha_two" {
		t.Fatalf("expected most recently active match, got %#v", acct)
	}
}

func TestSearchByDisplayNameRanksExactAbovePartial(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, Account{Username: "partial", FirstName: "Somsak", LastName: "Jaidee Junior"})
	seedAccount(t, db, Account{Username: "exact", FirstName: "Somsak", LastName: "Jaidee"})

	ranked, err := SearchByDisplayName(db, "Somsak Jaidee")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(ranked))
	}
	if ranked[0].Username != "exact" {
		t.Fatalf("expected exact match first, got %q", ranked[0].Username)
	}
	if ranked[1].Username != "partial" {
		t.Fatalf("expected partial match second, got %q", ranked[1].Username)
	}
}

func TestSearchByDisplayNameTokenFallback(t *testing.T) {
	db := newTestDB(t)
	seedAccount(t, db, Account{Username: "token_hit", FirstName: "Anan", LastName: "Srisuwan"})

	ranked, err := SearchByDisplayName(db, "Srisuwan K.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranked) != 1 || ranked[0].Username != "token_hit" {
		t.Fatalf("expected token fallback to find the account, got %#v", ranked)
	}
}

func TestSearchByDisplayNameEmptyInput(t *testing.T) {
	db := newTestDB(t)
	ranked, err := SearchByDisplayName(db, "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ranked) != 0 {
		t.Fatalf("expected no candidates for blank name")
	}
}

func TestUpsertCreatesThenMerges(t *testing.T) {
	db := newTestDB(t)

	balance := 150.25
	created, changed, err := Upsert(db, Observed{Username: "Demo_User", Available: &balance})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Username != "demo_user" {
		t.Fatalf("expected normalized username, got %q", created.Username)
	}
	if created.Tier != TierBronze || !created.Active {
		t.Fatalf("expected bronze active defaults, got %#v", created)
	}
	if len(changed) != 1 || changed[0] != "balance" {
		t.Fatalf("unexpected changed fields %v", changed)
	}

	points := int64(2500)
	merged, changed, err := Upsert(db, Observed{Username: "demo_user", Points: &points})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged.Balance != 150.25 {
		t.Fatalf("partial update must not reset absent fields, balance=%v", merged.Balance)
	}
	if merged.Points != 2500 {
		t.Fatalf("expected points merged, got %d", merged.Points)
	}
	if len(changed) != 1 || changed[0] != "points" {
		t.Fatalf("unexpected changed fields %v", changed)
	}

	var count int64
	if err := db.Model(&Account{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single account row, got %d", count)
	}
}

func TestObservedApplyReportsChangedColumns(t *testing.T) {
	acct := Account{Username: "demo_user", Balance: 10, Tier: TierBronze, Active: true}

	tier := TierSilver
	phone := "0812345678"
	same := 10.0
	changed := Observed{
		Username:  "demo_user",
		Available: &same,
		Tier:      &tier,
		Phone:     &phone,
	}.Apply(&acct)

	if len(changed) != 2 {
		t.Fatalf("expected two changed columns, got %v", changed)
	}
	for _, column := range changed {
		if column != "tier" && column != "phone" {
			t.Fatalf("unexpected changed column %q", column)
		}
	}
	if acct.Tier != TierSilver || acct.Phone != "0812345678" {
		t.Fatalf("fields not merged: %#v", acct)
	}
}
