package services

import (
	"encoding/json"
	"time"

	"github.com/habitcraft/habitcraft/backend/internal/models"
	"github.com/habitcraft/habitcraft/backend/pkg/logger"
	"gorm.io/gorm"
)

// Security event kinds.
const (
	EventRegister       = "register"
	EventLogin          = "login"
	EventRefresh        = "refresh"
	EventLogout         = "logout"
	EventPasswordChange = "password_change"
)

// SecurityLogger records auth outcomes durably (security_events table) and
// mirrors them to the structured log. With a nil db it only logs, which is
// what service tests use.
type SecurityLogger struct {
	db *gorm.DB
}

func NewSecurityLogger(db *gorm.DB) *SecurityLogger {
	return &SecurityLogger{db: db}
}

// AuditContext identifies the request source attached to every event.
type AuditContext struct {
	IP        string
	UserAgent string
}

func (s *SecurityLogger) Success(event string, userID, email string, ctx AuditContext, extra interface{}) {
	s.write(event, "success", "", userID, email, ctx, extra)
}

// Failure records a failed auth outcome with a machine-readable reason code.
// Reasons stay internal; the HTTP response may be deliberately more generic.
func (s *SecurityLogger) Failure(event, reason string, userID, email string, ctx AuditContext, extra interface{}) {
	s.write(event, "failure", reason, userID, email, ctx, extra)
}

func (s *SecurityLogger) write(event, outcome, reason, userID, email string, ctx AuditContext, extra interface{}) {
	var extraStr string
	if extra != nil {
		if b, err := json.Marshal(extra); err == nil {
			extraStr = string(b)
		}
	}

	logEvent := logger.Info()
	if outcome == "failure" {
		logEvent = logger.Warn()
	}
	logEvent.
		Str("event", event).
		Str("outcome", outcome).
		Str("reason", reason).
		Str("user_id", userID).
		Str("ip", ctx.IP).
		Str("user_agent", ctx.UserAgent).
		Msg("security event")

	if s.db == nil {
		return
	}

	var uid *string
	if userID != "" {
		uid = &userID
	}

	record := &models.SecurityEvent{
		Event:     event,
		Outcome:   outcome,
		Reason:    reason,
		UserID:    uid,
		Email:     email,
		IP:        ctx.IP,
		UserAgent: ctx.UserAgent,
		Extra:     extraStr,
		CreatedAt: time.Now(),
	}
	if err := s.db.Create(record).Error; err != nil {
		logger.Error().Err(err).Str("event", event).Msg("failed to persist security event")
	}
}

// CleanupOlderThan deletes security events past the retention window and
// returns how many were removed.
func (s *SecurityLogger) CleanupOlderThan(days int) (int64, error) {
	if s.db == nil || days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	result := s.db.Where("created_at < ?", cutoff).Delete(&models.SecurityEvent{})
	return result.RowsAffected, result.Error
}
