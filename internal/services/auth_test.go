package services

import (
	"errors"
	"testing"
	"time"

	"github.com/habitcraft/habitcraft/backend/internal/config"
)

func newTestAuthService() *AuthService {
	return NewAuthService(
		NewMemoryUserStore(),
		NewMemoryLedger(),
		testIssuer(),
		NewSecurityLogger(nil),
	)
}

func register(t *testing.T, svc *AuthService, email string) *SessionResult {
	t.Helper()
	result, err := svc.Register(&RegisterRequest{
		Email:    email,
		Password: "Abcdefgh1!",
		Name:     "A",
	}, AuditContext{IP: "127.0.0.1"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return result
}

func TestRegisterThenLogin(t *testing.T) {
	svc := newTestAuthService()

	registered := register(t, svc, "a@b.com")
	if registered.User.Email != "a@b.com" {
		t.Errorf("email = %q, expected %q", registered.User.Email, "a@b.com")
	}
	if registered.AccessToken == "" || registered.RefreshToken == "" {
		t.Error("register should issue both tokens")
	}

	loggedIn, err := svc.Login(&LoginRequest{Email: "a@b.com", Password: "Abcdefgh1!"}, AuditContext{})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if loggedIn.User.ID != registered.User.ID {
		t.Errorf("login user id = %q, expected %q", loggedIn.User.ID, registered.User.ID)
	}
}

func TestRegister_NormalizesEmail(t *testing.T) {
	svc := newTestAuthService()

	result := register(t, svc, "  User@Example.COM ")
	if result.User.Email != "user@example.com" {
		t.Errorf("email = %q, expected normalized form", result.User.Email)
	}

	// Login with a differently cased spelling still works
	if _, err := svc.Login(&LoginRequest{Email: "USER@example.com", Password: "Abcdefgh1!"}, AuditContext{}); err != nil {
		t.Errorf("login with different casing failed: %v", err)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newTestAuthService()
	register(t, svc, "a@b.com")

	_, err := svc.Register(&RegisterRequest{
		Email:    "A@B.com",
		Password: "Abcdefgh1!",
		Name:     "B",
	}, AuditContext{})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestLogin_GenericFailure(t *testing.T) {
	// Unknown email and wrong password must be externally indistinguishable.
	svc := newTestAuthService()
	register(t, svc, "a@b.com")

	_, errUnknown := svc.Login(&LoginRequest{Email: "nobody@b.com", Password: "Abcdefgh1!"}, AuditContext{})
	_, errWrongPw := svc.Login(&LoginRequest{Email: "a@b.com", Password: "wrong-password"}, AuditContext{})

	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Errorf("unknown email: expected ErrInvalidCredentials, got %v", errUnknown)
	}
	if !errors.Is(errWrongPw, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", errWrongPw)
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Error("failure messages must be identical to prevent user enumeration")
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	svc := newTestAuthService()
	session := register(t, svc, "a@b.com")

	refreshed, err := svc.Refresh(session.RefreshToken, AuditContext{})
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if refreshed.RefreshToken == session.RefreshToken {
		t.Error("refresh should rotate the refresh token")
	}
	if refreshed.AccessToken == "" {
		t.Error("refresh should mint a new access token")
	}

	// The presented token was rotated out; a second use must fail.
	if _, err := svc.Refresh(session.RefreshToken, AuditContext{}); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("reused rotated token: expected ErrInvalidRefreshToken, got %v", err)
	}

	// The replacement keeps working.
	if _, err := svc.Refresh(refreshed.RefreshToken, AuditContext{}); err != nil {
		t.Errorf("replacement token should refresh, got %v", err)
	}
}

func TestRefresh_MissingToken(t *testing.T) {
	svc := newTestAuthService()

	if _, err := svc.Refresh("", AuditContext{}); !errors.Is(err, ErrRefreshTokenRequired) {
		t.Errorf("expected ErrRefreshTokenRequired, got %v", err)
	}
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	svc := newTestAuthService()
	session := register(t, svc, "a@b.com")

	if _, err := svc.Refresh(session.AccessToken, AuditContext{}); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("access token used for refresh: expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefresh_RevokedAfterLogout(t *testing.T) {
	svc := newTestAuthService()
	session := register(t, svc, "a@b.com")

	svc.Logout(session.RefreshToken, AuditContext{})

	if _, err := svc.Refresh(session.RefreshToken, AuditContext{}); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("revoked token: expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefresh_SignatureValidLedgerExpired(t *testing.T) {
	// A row whose ledger expiry passed but that the cleanup sweep has not yet
	// deleted must still be rejected.
	users := NewMemoryUserStore()
	ledger := NewMemoryLedger()
	issuer := testIssuer()
	svc := NewAuthService(users, ledger, issuer, NewSecurityLogger(nil))

	session := register(t, svc, "a@b.com")

	// Re-point the ledger row at the past while the signed exp stays valid.
	ledger.Revoke(session.RefreshToken)
	token, _, err := issuer.IssueRefreshToken(session.User.ID)
	if err != nil {
		t.Fatal(err)
	}
	ledger.Store(session.User.ID, token, time.Now().Add(-time.Minute), TokenMeta{})

	if _, err := svc.Refresh(token, AuditContext{}); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("ledger-expired token: expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestRefresh_SignatureExpiredLedgerPresent(t *testing.T) {
	// The inverse case: ledger row intact but the signed exp has passed.
	users := NewMemoryUserStore()
	ledger := NewMemoryLedger()
	issuer := testIssuer()
	svc := NewAuthService(users, ledger, issuer, NewSecurityLogger(nil))
	register(t, svc, "a@b.com")

	expiredIssuer := NewTokenIssuer(&config.JWTConfig{
		Secret:           "test-secret-key-for-testing",
		AccessTTLMinutes: 15,
		RefreshTTLHours:  -1,
	})
	token, _, err := expiredIssuer.IssueRefreshToken("user-1")
	if err != nil {
		t.Fatal(err)
	}
	ledger.Store("user-1", token, time.Now().Add(time.Hour), TokenMeta{})

	if _, err := svc.Refresh(token, AuditContext{}); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("signature-expired token: expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	svc := newTestAuthService()
	session := register(t, svc, "a@b.com")

	// Twice with the token, then with no token at all — never an error.
	svc.Logout(session.RefreshToken, AuditContext{})
	svc.Logout(session.RefreshToken, AuditContext{})
	svc.Logout("", AuditContext{})
}

func TestChangePassword_RevokesAllSessions(t *testing.T) {
	svc := newTestAuthService()
	deviceA := register(t, svc, "a@b.com")

	// Second session on "device B"
	deviceB, err := svc.Login(&LoginRequest{Email: "a@b.com", Password: "Abcdefgh1!"}, AuditContext{})
	if err != nil {
		t.Fatal(err)
	}

	err = svc.ChangePassword(deviceA.User.ID, &ChangePasswordRequest{
		CurrentPassword: "Abcdefgh1!",
		NewPassword:     "NewPassword99!",
		ConfirmPassword: "NewPassword99!",
	}, AuditContext{})
	if err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	// Device B's refresh must fail before its signed expiry.
	if _, err := svc.Refresh(deviceB.RefreshToken, AuditContext{}); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("device B token after password change: expected ErrInvalidRefreshToken, got %v", err)
	}

	// Old password no longer works, new one does.
	if _, err := svc.Login(&LoginRequest{Email: "a@b.com", Password: "Abcdefgh1!"}, AuditContext{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password should be rejected, got %v", err)
	}
	if _, err := svc.Login(&LoginRequest{Email: "a@b.com", Password: "NewPassword99!"}, AuditContext{}); err != nil {
		t.Errorf("new password should work, got %v", err)
	}
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	svc := newTestAuthService()
	session := register(t, svc, "a@b.com")

	err := svc.ChangePassword(session.User.ID, &ChangePasswordRequest{
		CurrentPassword: "not-the-password",
		NewPassword:     "NewPassword99!",
		ConfirmPassword: "NewPassword99!",
	}, AuditContext{})
	if !errors.Is(err, ErrInvalidCurrentPassword) {
		t.Errorf("expected ErrInvalidCurrentPassword, got %v", err)
	}

	// Stored hash unchanged: the old password still logs in.
	if _, err := svc.Login(&LoginRequest{Email: "a@b.com", Password: "Abcdefgh1!"}, AuditContext{}); err != nil {
		t.Errorf("old password should still work, got %v", err)
	}
}

func TestChangePassword_UnknownUser(t *testing.T) {
	svc := newTestAuthService()

	err := svc.ChangePassword("missing-user", &ChangePasswordRequest{
		CurrentPassword: "whatever1",
		NewPassword:     "NewPassword99!",
		ConfirmPassword: "NewPassword99!",
	}, AuditContext{})
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
