package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/NovaLinkLabs/memberlink/backend/internal/account"
	"github.com/NovaLinkLabs/memberlink/backend/internal/identity"
	"github.com/NovaLinkLabs/memberlink/backend/internal/linking"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsNormalizesUsernames(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&identity.Identity{}, &account.Account{}, &account.Transaction{}, &linking.Link{}, &linking.SyncSession{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	// Legacy rows were stored with the caller's casing.
	if err := database.Exec("INSERT INTO accounts (username, tier, active) VALUES ('Mixed_Case', 'Bronze', 1);").Error; err != nil {
		testContext.Fatalf("failed to insert legacy account: %v", err)
	}
	if err := database.Exec("INSERT INTO account_links (identity_id, account_username, method, active, linked_at) VALUES ('U1', 'Mixed_Case', 'manual', 1, ?);", time.Now().UTC()).Error; err != nil {
		testContext.Fatalf("failed to insert legacy link: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored account.Account
	if err := database.Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload account: %v", err)
	}
	if stored.Username != "mixed_case" {
		testContext.Fatalf("expected lowercased username, got %q", stored.Username)
	}
	var storedLink linking.Link
	if err := database.Take(&storedLink).Error; err != nil {
		testContext.Fatalf("failed to reload link: %v", err)
	}
	if storedLink.AccountUsername != "mixed_case" {
		testContext.Fatalf("expected lowercased link username, got %q", storedLink.AccountUsername)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationNormalizeAccountUsernames).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsExpiresOrphanedSessions(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&identity.Identity{}, &account.Account{}, &account.Transaction{}, &linking.Link{}, &linking.SyncSession{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	stale := linking.SyncSession{
		SessionID:  "sess-stale",
		IdentityID: "U1",
		Status:     linking.SessionPending,
		ExpiresAt:  time.Now().UTC().Add(-time.Hour),
	}
	live := linking.SyncSession{
		SessionID:  "sess-live",
		IdentityID: "U2",
		Status:     linking.SessionPending,
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
	if err := database.Create(&stale).Error; err != nil {
		testContext.Fatalf("failed to insert stale session: %v", err)
	}
	if err := database.Create(&live).Error; err != nil {
		testContext.Fatalf("failed to insert live session: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var reloadedStale linking.SyncSession
	if err := database.Where("session_id = ?", "sess-stale").Take(&reloadedStale).Error; err != nil {
		testContext.Fatalf("failed to reload stale session: %v", err)
	}
	if reloadedStale.Status != linking.SessionExpired {
		testContext.Fatalf("expected stale session expired, got %q", reloadedStale.Status)
	}
	var reloadedLive linking.SyncSession
	if err := database.Where("session_id = ?", "sess-live").Take(&reloadedLive).Error; err != nil {
		testContext.Fatalf("failed to reload live session: %v", err)
	}
	if reloadedLive.Status != linking.SessionPending {
		testContext.Fatalf("expected live session untouched, got %q", reloadedLive.Status)
	}

	// A second run is a no-op thanks to the ledger row.
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to reapply migrations: %v", err)
	}
}
