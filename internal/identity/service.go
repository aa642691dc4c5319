package identity

import (
	"context"
	"errors"
	"time"

	"github.com/NovaLinkLabs/memberlink/backend/internal/fault"
	"gorm.io/gorm"
)

// ErrInvalidProfile indicates the observation did not contain a usable identifier.
var ErrInvalidProfile = errors.New("identity: invalid profile")

const (
	opObserve = "identity.observe"
	opGet     = "identity.get"
	opDisable = "identity.disable"
)

// Profile is the identity data observed on an inbound request.
type Profile struct {
	ExternalID  string
	DisplayName string
	AvatarURL   string
	Locale      string
}

// ServiceConfig describes the dependencies required for identity tracking.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service maintains messaging-platform identity rows.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fault.New(fault.KindValidation, "identity.service.new", "missing_database", nil)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// Observe creates the identity on first contact and merges non-empty changed
// profile fields on every later observation.
func (s *Service) Observe(ctx context.Context, profile Profile) (Identity, error) {
	externalID := normalize(profile.ExternalID)
	if externalID == "" {
		return Identity{}, fault.New(fault.KindValidation, opObserve, "missing_external_id", ErrInvalidProfile)
	}

	var existing Identity
	err := s.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created := Identity{
			ExternalID:  externalID,
			DisplayName: normalize(profile.DisplayName),
			AvatarURL:   normalize(profile.AvatarURL),
			Locale:      normalize(profile.Locale),
		}
		if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
			return Identity{}, fault.New(fault.KindUpstream, opObserve, "create_failed", err)
		}
		return created, nil
	}
	if err != nil {
		return Identity{}, fault.New(fault.KindUpstream, opObserve, "lookup_failed", err)
	}

	updates := map[string]interface{}{}
	if display := normalize(profile.DisplayName); display != "" && display != existing.DisplayName {
		updates["display_name"] = display
		existing.DisplayName = display
	}
	if avatar := normalize(profile.AvatarURL); avatar != "" && avatar != existing.AvatarURL {
		updates["avatar_url"] = avatar
		existing.AvatarURL = avatar
	}
	if locale := normalize(profile.Locale); locale != "" && locale != existing.Locale {
		updates["locale"] = locale
		existing.Locale = locale
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&Identity{}).
			Where("external_id = ?", externalID).
			Updates(updates).Error; err != nil {
			return Identity{}, fault.New(fault.KindUpstream, opObserve, "update_failed", err)
		}
	}
	return existing, nil
}

// Get loads an identity by its external id.
func (s *Service) Get(ctx context.Context, externalID string) (Identity, error) {
	var row Identity
	err := s.db.WithContext(ctx).
		Where("external_id = ?", normalize(externalID)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, fault.New(fault.KindNotFound, opGet, "identity_missing", err)
	}
	if err != nil {
		return Identity{}, fault.New(fault.KindUpstream, opGet, "lookup_failed", err)
	}
	return row, nil
}

// Disable soft-disables an identity. Rows are never deleted.
func (s *Service) Disable(ctx context.Context, externalID string) error {
	result := s.db.WithContext(ctx).Model(&Identity{}).
		Where("external_id = ?", normalize(externalID)).
		Update("disabled", true)
	if result.Error != nil {
		return fault.New(fault.KindUpstream, opDisable, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return fault.New(fault.KindNotFound, opDisable, "identity_missing", nil)
	}
	return nil
}
