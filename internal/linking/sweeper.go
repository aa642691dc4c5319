package linking

import (
	"context"
	"time"

	"github.com/NovaLinkLabs/memberlink/backend/internal/fault"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opSweep = "linking.sweep_sessions"

	defaultSweepInterval = time.Minute
)

// SweeperConfig describes the dependencies of the session expiry sweep.
type SweeperConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Interval time.Duration
	Logger   *zap.Logger
}

// Sweeper periodically expires pending sync sessions that outlived their
// expiry. It may run concurrently with live link attempts; the conditional
// update keeps it from racing a completion.
type Sweeper struct {
	db       *gorm.DB
	clock    func() time.Time
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper constructs the sweeper.
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Database == nil {
		return nil, fault.New(fault.KindValidation, "linking.sweeper.new", "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Sweeper{db: cfg.Database, clock: clock, interval: interval, logger: logger}, nil
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.Error("session sweep failed", zap.String("operation", opSweep), zap.Error(err))
				continue
			}
			if expired > 0 {
				s.logger.Info("expired stale sync sessions", zap.Int64("count", expired))
			}
		}
	}
}

// SweepOnce expires every pending session past its expiry and returns the
// number of rows transitioned.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	now := s.clock().UTC()
	result := s.db.WithContext(ctx).Model(&SyncSession{}).
		Where("status = ? AND expires_at < ?", SessionPending, now).
		Update("status", SessionExpired)
	if result.Error != nil {
		return 0, fault.New(fault.KindUpstream, opSweep, "update_failed", result.Error)
	}
	return result.RowsAffected, nil
}

// expirePending applies the same conditional transition to a single session
// from within a resolver transaction.
func expirePending(tx *gorm.DB, now time.Time, sessionID string) error {
	return tx.Model(&SyncSession{}).
		Where("session_id = ? AND status = ? AND expires_at < ?", sessionID, SessionPending, now).
		Update("status", SessionExpired).Error
}
