package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeAccountUsernames = "2026-08-12_normalize_account_usernames"
	migrationExpireOrphanedSessions    = "2026-08-12_expire_orphaned_sessions"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeAccountUsernames, apply: normalizeAccountUsernames},
		{name: migrationExpireOrphanedSessions, apply: expireOrphanedSessions},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeAccountUsernames lowercases usernames stored before lookups became
// case-insensitive, on the account table and every table referencing it.
func normalizeAccountUsernames(db *gorm.DB) error {
	statements := []string{
		"UPDATE accounts SET username = lower(trim(username)) WHERE username <> lower(trim(username));",
		"UPDATE account_links SET account_username = lower(trim(account_username)) WHERE account_username <> lower(trim(account_username));",
		"UPDATE account_transactions SET account_username = lower(trim(account_username)) WHERE account_username <> lower(trim(account_username));",
		"UPDATE identities SET account_username = lower(trim(account_username)) WHERE account_username <> lower(trim(account_username));",
	}
	for _, statement := range statements {
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}

// expireOrphanedSessions closes pending sessions left behind by restarts that
// predate the periodic sweep.
func expireOrphanedSessions(db *gorm.DB) error {
	return db.Exec(
		"UPDATE sync_sessions SET status = 'expired' WHERE status = 'pending' AND expires_at < ?;",
		time.Now().UTC(),
	).Error
}
