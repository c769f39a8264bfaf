package services

import (
	"github.com/habitcraft/habitcraft/backend/pkg/logger"
	"github.com/robfig/cron/v3"
)

// MaintenanceScheduler drives the time-based sweeps the auth subsystem needs:
// deleting expired refresh-token ledger rows and trimming old security events.
// Neither sweep is time-driven itself; this scheduler invokes them.
type MaintenanceScheduler struct {
	cron          *cron.Cron
	ledger        RefreshTokenLedger
	events        *SecurityLogger
	retentionDays int
}

func NewMaintenanceScheduler(ledger RefreshTokenLedger, events *SecurityLogger, retentionDays int) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		cron:          cron.New(),
		ledger:        ledger,
		events:        events,
		retentionDays: retentionDays,
	}
}

// Start registers the sweep jobs and starts the scheduler. The ledger sweep
// runs hourly, event retention daily.
func (m *MaintenanceScheduler) Start() error {
	if _, err := m.cron.AddFunc("@hourly", m.sweepLedger); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc("@daily", m.sweepEvents); err != nil {
		return err
	}
	m.cron.Start()
	logger.Info().Msg("maintenance scheduler started")
	return nil
}

func (m *MaintenanceScheduler) Stop() {
	if m.cron != nil {
		m.cron.Stop()
		logger.Info().Msg("maintenance scheduler stopped")
	}
}

func (m *MaintenanceScheduler) sweepLedger() {
	count, err := m.ledger.CleanupExpired()
	if err != nil {
		logger.Error().Err(err).Msg("refresh token cleanup failed")
		return
	}
	if count > 0 {
		logger.Info().Int64("deleted", count).Msg("expired refresh tokens removed")
	}
}

func (m *MaintenanceScheduler) sweepEvents() {
	count, err := m.events.CleanupOlderThan(m.retentionDays)
	if err != nil {
		logger.Error().Err(err).Msg("security event cleanup failed")
		return
	}
	if count > 0 {
		logger.Info().Int64("deleted", count).Int("retention_days", m.retentionDays).Msg("old security events removed")
	}
}
