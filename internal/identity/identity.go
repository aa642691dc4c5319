package identity

import (
	"strings"
	"time"
)

// Identity captures one messaging-platform user. Rows are created on first
// contact, refreshed on every profile observation, and soft-disabled rather
// than deleted.
type Identity struct {
	ExternalID      string     `gorm:"column:external_id;primaryKey;size:190;not null"`
	DisplayName     string     `gorm:"column:display_name;size:320"`
	AvatarURL       string     `gorm:"column:avatar_url;size:512"`
	Locale          string     `gorm:"column:locale;size:16"`
	Linked          bool       `gorm:"column:linked;not null;default:false"`
	AccountUsername string     `gorm:"column:account_username;size:64;index"`
	Disabled        bool       `gorm:"column:disabled;not null;default:false"`
	LastSyncAt      *time.Time `gorm:"column:last_sync_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing messaging-platform identities.
func (Identity) TableName() string {
	return "identities"
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
