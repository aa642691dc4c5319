package identity

import (
	"context"
	"testing"

	"github.com/NovaLinkLabs/memberlink/backend/internal/fault"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Identity{}); err != nil {
		t.Fatalf("failed to migrate identity schema: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db
}

func TestObserveCreatesOnFirstContact(t *testing.T) {
	service, db := newTestService(t)

	row, err := service.Observe(context.Background(), Profile{
		ExternalID:  " U123 ",
		DisplayName: "Somsak J.",
		Locale:      "th",
	})
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	if row.ExternalID != "U123" {
		t.Fatalf("expected trimmed external id, got %q", row.ExternalID)
	}
	if row.Linked {
		t.Fatalf("new identities must start unlinked")
	}

	var count int64
	if err := db.Model(&Identity{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one identity row, got %d", count)
	}
}

func TestObserveMergesNonEmptyFields(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Observe(ctx, Profile{ExternalID: "U123", DisplayName: "Old Name", Locale: "th"}); err != nil {
		t.Fatalf("seed observe failed: %v", err)
	}

	row, err := service.Observe(ctx, Profile{ExternalID: "U123", DisplayName: "New Name"})
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	if row.DisplayName != "New Name" {
		t.Fatalf("expected display name merged, got %q", row.DisplayName)
	}
	if row.Locale != "th" {
		t.Fatalf("absent fields must stay untouched, locale=%q", row.Locale)
	}
}

func TestObserveRejectsMissingExternalID(t *testing.T) {
	service, _ := newTestService(t)
	_, err := service.Observe(context.Background(), Profile{DisplayName: "Nameless"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if fault.KindOf(err) != fault.KindValidation {
		t.Fatalf("expected validation kind, got %v", fault.KindOf(err))
	}
}

func TestGetMissingIdentity(t *testing.T) {
	service, _ := newTestService(t)
	_, err := service.Get(context.Background(), "ghost")
	if fault.KindOf(err) != fault.KindNotFound {
		t.Fatalf("expected not_found kind, got %v", fault.KindOf(err))
	}
}

func TestDisableMarksRowWithoutDeleting(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()

	if _, err := service.Observe(ctx, Profile{ExternalID: "U123"}); err != nil {
		t.Fatalf("seed observe failed: %v", err)
	}
	if err := service.Disable(ctx, "U123"); err != nil {
		t.Fatalf("disable failed: %v", err)
	}

	var row Identity
	if err := db.First(&row, "external_id = ?", "U123").Error; err != nil {
		t.Fatalf("identity row must survive disable: %v", err)
	}
	if !row.Disabled {
		t.Fatalf("expected disabled flag set")
	}

	if err := service.Disable(ctx, "ghost"); fault.KindOf(err) != fault.KindNotFound {
		t.Fatalf("expected not_found for unknown identity, got %v", err)
	}
}
