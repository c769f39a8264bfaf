package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/habitcraft/habitcraft/backend/internal/models"
	"gorm.io/gorm"
)

// Ledger validation failures. Each maps to a machine-readable reason code in
// the audit log.
var (
	ErrLedgerTokenNotFound = errors.New("token_not_found")
	ErrLedgerTokenRevoked  = errors.New("token_revoked")
	ErrLedgerTokenExpired  = errors.New("token_expired")
)

// TokenMeta carries optional forensics attached to a ledger record.
type TokenMeta struct {
	ClientIP  string
	UserAgent string
}

// LedgerEntry is the result of a successful ledger validation.
type LedgerEntry struct {
	TokenID uint
	UserID  string
}

// RefreshTokenLedger is the persistence boundary for issued refresh tokens.
// The SQL-backed implementation is used in production; tests use an
// in-memory one.
type RefreshTokenLedger interface {
	// Store records the hash of a newly issued raw token.
	Store(userID, rawToken string, expiresAt time.Time, meta TokenMeta) (uint, error)
	// Validate resolves a raw token to its ledger entry. Ledger-side expiry
	// is authoritative: a row whose expiresAt has passed fails with
	// ErrLedgerTokenExpired even if the signed exp claim is still valid.
	Validate(rawToken string) (*LedgerEntry, error)
	// Revoke marks a single record revoked. Unknown or already revoked
	// tokens are not an error; logout is best-effort.
	Revoke(rawToken string) error
	// RevokeAll marks every non-revoked record for a user revoked in one
	// multi-row update, and returns how many were affected.
	RevokeAll(userID string) (int64, error)
	// Replace atomically records a rotation: the new token is stored and the
	// old record is revoked with a link to its replacement.
	Replace(oldTokenID uint, userID, newRawToken string, expiresAt time.Time, meta TokenMeta) (uint, error)
	// CleanupExpired deletes records whose expiry has passed and returns the
	// number removed. Driven by the maintenance scheduler.
	CleanupExpired() (int64, error)
}

// HashRefreshToken returns the SHA-256 hex digest under which a raw refresh
// token is recorded.
func HashRefreshToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

// SQLLedger is the gorm-backed RefreshTokenLedger.
type SQLLedger struct {
	db *gorm.DB
}

func NewSQLLedger(db *gorm.DB) *SQLLedger {
	return &SQLLedger{db: db}
}

func (l *SQLLedger) Store(userID, rawToken string, expiresAt time.Time, meta TokenMeta) (uint, error) {
	record := models.RefreshToken{
		UserID:      userID,
		TokenHash:   HashRefreshToken(rawToken),
		ExpiresAt:   expiresAt,
		CreatedByIP: meta.ClientIP,
		UserAgent:   meta.UserAgent,
	}
	if err := l.db.Create(&record).Error; err != nil {
		return 0, err
	}
	return record.ID, nil
}

func (l *SQLLedger) Validate(rawToken string) (*LedgerEntry, error) {
	hash := HashRefreshToken(rawToken)

	var stored models.RefreshToken
	if err := l.db.Where("token_hash = ?", hash).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLedgerTokenNotFound
		}
		return nil, err
	}

	if stored.RevokedAt != nil {
		return nil, ErrLedgerTokenRevoked
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, ErrLedgerTokenExpired
	}

	return &LedgerEntry{TokenID: stored.ID, UserID: stored.UserID}, nil
}

func (l *SQLLedger) Revoke(rawToken string) error {
	if rawToken == "" {
		return nil
	}

	hash := HashRefreshToken(rawToken)
	now := time.Now()
	return l.db.Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hash).
		Update("revoked_at", now).Error
}

func (l *SQLLedger) RevokeAll(userID string) (int64, error) {
	now := time.Now()
	result := l.db.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", now)
	return result.RowsAffected, result.Error
}

func (l *SQLLedger) Replace(oldTokenID uint, userID, newRawToken string, expiresAt time.Time, meta TokenMeta) (uint, error) {
	newRecord := models.RefreshToken{
		UserID:      userID,
		TokenHash:   HashRefreshToken(newRawToken),
		ExpiresAt:   expiresAt,
		CreatedByIP: meta.ClientIP,
		UserAgent:   meta.UserAgent,
	}

	now := time.Now()
	err := l.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&newRecord).Error; err != nil {
			return err
		}
		return tx.Model(&models.RefreshToken{}).
			Where("id = ?", oldTokenID).
			Updates(map[string]interface{}{
				"revoked_at":           now,
				"replaced_by_token_id": newRecord.ID,
			}).Error
	})
	if err != nil {
		return 0, err
	}
	return newRecord.ID, nil
}

func (l *SQLLedger) CleanupExpired() (int64, error) {
	result := l.db.Where("expires_at < ?", time.Now()).Delete(&models.RefreshToken{})
	return result.RowsAffected, result.Error
}
