package services

import (
	"errors"
	"time"

	"github.com/habitcraft/habitcraft/backend/internal/models"
	"github.com/habitcraft/habitcraft/backend/internal/utils"
	"github.com/habitcraft/habitcraft/backend/pkg/logger"
)

// Service-level auth failures. Handlers map these to HTTP statuses; anything
// else is an infrastructure error and surfaces as a 500.
var (
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrRefreshTokenRequired   = errors.New("refresh token required")
	ErrInvalidRefreshToken    = errors.New("invalid refresh token")
	ErrInvalidCurrentPassword = errors.New("invalid current password")
)

type AuthService struct {
	users  UserStore
	ledger RefreshTokenLedger
	issuer *TokenIssuer
	events *SecurityLogger
}

func NewAuthService(users UserStore, ledger RefreshTokenLedger, issuer *TokenIssuer, events *SecurityLogger) *AuthService {
	return &AuthService{
		users:  users,
		ledger: ledger,
		issuer: issuer,
		events: events,
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required,min=1,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

// SessionResult carries a freshly minted token pair plus the authenticated
// user. Handlers translate it into cookies and the public user projection.
type SessionResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             *models.User
}

// Register creates an account and opens a session for it.
func (s *AuthService) Register(req *RegisterRequest, audit AuditContext) (*SessionResult, error) {
	email := NormalizeEmail(req.Email)

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        email,
		Name:         req.Name,
		PasswordHash: hash,
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}

	result, err := s.issueSession(user, audit)
	if err != nil {
		return nil, err
	}

	s.events.Success(EventRegister, user.ID, user.Email, audit, nil)
	return result, nil
}

// Login authenticates by email and password. An unknown email and a wrong
// password both return ErrInvalidCredentials so callers cannot enumerate
// accounts; the audit log keeps the distinct reason.
func (s *AuthService) Login(req *LoginRequest, audit AuditContext) (*SessionResult, error) {
	email := NormalizeEmail(req.Email)

	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.events.Failure(EventLogin, "user_not_found", "", email, audit, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		s.events.Failure(EventLogin, "invalid_password", user.ID, email, audit, nil)
		return nil, ErrInvalidCredentials
	}

	result, err := s.issueSession(user, audit)
	if err != nil {
		return nil, err
	}

	s.events.Success(EventLogin, user.ID, user.Email, audit, nil)
	return result, nil
}

// Refresh exchanges a valid refresh token for a new token pair. Tokens rotate
// on every use: the presented token's ledger record is revoked and linked to
// its replacement in one transaction.
func (s *AuthService) Refresh(rawToken string, audit AuditContext) (*SessionResult, error) {
	if rawToken == "" {
		return nil, ErrRefreshTokenRequired
	}

	claims, err := s.issuer.Verify(rawToken, TokenTypeRefresh)
	if err != nil {
		s.events.Failure(EventRefresh, refreshFailureReason(err), "", "", audit, nil)
		return nil, ErrInvalidRefreshToken
	}

	entry, err := s.ledger.Validate(rawToken)
	if err != nil {
		reason := refreshFailureReason(err)
		if !isLedgerError(err) {
			return nil, err
		}
		s.events.Failure(EventRefresh, reason, claims.UserID, "", audit, nil)
		return nil, ErrInvalidRefreshToken
	}

	// The signed subject and the ledger row must agree.
	if entry.UserID != claims.UserID {
		s.events.Failure(EventRefresh, "token_user_mismatch", claims.UserID, "", audit, nil)
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.users.FindByID(entry.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.events.Failure(EventRefresh, "user_not_found", entry.UserID, "", audit, nil)
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	accessToken, accessExpiresAt, err := s.issuer.IssueAccessToken(user.ID)
	if err != nil {
		return nil, err
	}
	newRefreshToken, refreshExpiresAt, err := s.issuer.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}

	meta := TokenMeta{ClientIP: audit.IP, UserAgent: audit.UserAgent}
	if _, err := s.ledger.Replace(entry.TokenID, user.ID, newRefreshToken, refreshExpiresAt, meta); err != nil {
		return nil, err
	}

	s.events.Success(EventRefresh, user.ID, user.Email, audit, nil)
	return &SessionResult{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     newRefreshToken,
		RefreshExpiresAt: refreshExpiresAt,
		User:             user,
	}, nil
}

// Logout revokes the presented refresh token. It is best-effort and
// idempotent: an absent, unknown or already revoked token is still a
// successful logout.
func (s *AuthService) Logout(rawToken string, audit AuditContext) {
	if rawToken != "" {
		if err := s.ledger.Revoke(rawToken); err != nil {
			logger.Error().Err(err).Msg("failed to revoke refresh token on logout")
		}
	}
	s.events.Success(EventLogout, "", "", audit, nil)
}

// ChangePassword verifies the current password, stores the new hash, and
// revokes every refresh token for the user so all other sessions must log in
// again.
func (s *AuthService) ChangePassword(userID string, req *ChangePasswordRequest, audit AuditContext) error {
	user, err := s.users.FindByID(userID)
	if err != nil {
		return err
	}

	if !utils.CheckPassword(req.CurrentPassword, user.PasswordHash) {
		s.events.Failure(EventPasswordChange, "invalid_current_password", user.ID, user.Email, audit, nil)
		return ErrInvalidCurrentPassword
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(user.ID, hash); err != nil {
		return err
	}

	revoked, err := s.ledger.RevokeAll(user.ID)
	if err != nil {
		return err
	}

	s.events.Success(EventPasswordChange, user.ID, user.Email, audit, map[string]interface{}{
		"revoked_sessions": revoked,
	})
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *AuthService) GetUserByID(id string) (*models.User, error) {
	return s.users.FindByID(id)
}

func (s *AuthService) issueSession(user *models.User, audit AuditContext) (*SessionResult, error) {
	accessToken, accessExpiresAt, err := s.issuer.IssueAccessToken(user.ID)
	if err != nil {
		return nil, err
	}

	refreshToken, refreshExpiresAt, err := s.issuer.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, err
	}

	meta := TokenMeta{ClientIP: audit.IP, UserAgent: audit.UserAgent}
	if _, err := s.ledger.Store(user.ID, refreshToken, refreshExpiresAt, meta); err != nil {
		return nil, err
	}

	return &SessionResult{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiresAt,
		User:             user,
	}, nil
}

func isLedgerError(err error) bool {
	return errors.Is(err, ErrLedgerTokenNotFound) ||
		errors.Is(err, ErrLedgerTokenRevoked) ||
		errors.Is(err, ErrLedgerTokenExpired)
}

// refreshFailureReason maps a verification or ledger error to the reason
// code recorded in the audit log.
func refreshFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "token_expired_signature"
	case errors.Is(err, ErrWrongTokenType):
		return "wrong_token_type"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, ErrLedgerTokenNotFound):
		return "token_not_found"
	case errors.Is(err, ErrLedgerTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrLedgerTokenExpired):
		return "token_expired"
	default:
		return "internal_error"
	}
}
