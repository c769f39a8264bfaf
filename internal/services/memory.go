package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/habitcraft/habitcraft/backend/internal/models"
)

// In-memory implementations of the persistence boundary. They back the test
// suites and make it possible to run the auth flow without a database.

type memoryRecord struct {
	id                uint
	userID            string
	tokenHash         string
	expiresAt         time.Time
	revokedAt         *time.Time
	replacedByTokenID *uint
}

// MemoryLedger is a RefreshTokenLedger held entirely in memory.
type MemoryLedger struct {
	mu      sync.Mutex
	nextID  uint
	records map[string]*memoryRecord // keyed by token hash
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		nextID:  1,
		records: make(map[string]*memoryRecord),
	}
}

func (m *MemoryLedger) Store(userID, rawToken string, expiresAt time.Time, meta TokenMeta) (uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeLocked(userID, rawToken, expiresAt), nil
}

func (m *MemoryLedger) storeLocked(userID, rawToken string, expiresAt time.Time) uint {
	id := m.nextID
	m.nextID++
	m.records[HashRefreshToken(rawToken)] = &memoryRecord{
		id:        id,
		userID:    userID,
		tokenHash: HashRefreshToken(rawToken),
		expiresAt: expiresAt,
	}
	return id
}

func (m *MemoryLedger) Validate(rawToken string) (*LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[HashRefreshToken(rawToken)]
	if !ok {
		return nil, ErrLedgerTokenNotFound
	}
	if record.revokedAt != nil {
		return nil, ErrLedgerTokenRevoked
	}
	if time.Now().After(record.expiresAt) {
		return nil, ErrLedgerTokenExpired
	}
	return &LedgerEntry{TokenID: record.id, UserID: record.userID}, nil
}

func (m *MemoryLedger) Revoke(rawToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record, ok := m.records[HashRefreshToken(rawToken)]; ok && record.revokedAt == nil {
		now := time.Now()
		record.revokedAt = &now
	}
	return nil
}

func (m *MemoryLedger) RevokeAll(userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var count int64
	for _, record := range m.records {
		if record.userID == userID && record.revokedAt == nil {
			record.revokedAt = &now
			count++
		}
	}
	return count, nil
}

func (m *MemoryLedger) Replace(oldTokenID uint, userID, newRawToken string, expiresAt time.Time, meta TokenMeta) (uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	newID := m.storeLocked(userID, newRawToken, expiresAt)
	now := time.Now()
	for _, record := range m.records {
		if record.id == oldTokenID {
			record.revokedAt = &now
			record.replacedByTokenID = &newID
			break
		}
	}
	return newID, nil
}

func (m *MemoryLedger) CleanupExpired() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var count int64
	for hash, record := range m.records {
		if now.After(record.expiresAt) {
			delete(m.records, hash)
			count++
		}
	}
	return count, nil
}

// MemoryUserStore is a UserStore held entirely in memory.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User // keyed by id
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*models.User)}
}

func (m *MemoryUserStore) Create(user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Email == user.Email {
			return ErrDuplicateEmail
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *MemoryUserStore) FindByEmail(email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MemoryUserStore) FindByID(id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (m *MemoryUserStore) UpdatePassword(id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now()
	return nil
}
