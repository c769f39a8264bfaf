package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/habitcraft/habitcraft/backend/internal/config"
	"github.com/habitcraft/habitcraft/backend/internal/middleware"
	"github.com/habitcraft/habitcraft/backend/internal/services"
	"github.com/habitcraft/habitcraft/backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestServer wires the full auth surface over in-memory stores.
func newTestServer() *gin.Engine {
	issuer := services.NewTokenIssuer(&config.JWTConfig{
		Secret:           "test-secret-for-handler-testing",
		AccessTTLMinutes: 15,
		RefreshTTLHours:  168,
	})
	authService := services.NewAuthService(
		services.NewMemoryUserStore(),
		services.NewMemoryLedger(),
		issuer,
		services.NewSecurityLogger(nil),
	)
	authHandler := NewAuthHandler(authService, false)
	userHandler := NewUserHandler(authService)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.POST("/auth/logout", authHandler.Logout)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(issuer))
	protected.GET("/users/me", userHandler.GetCurrentUser)
	protected.PUT("/users/me/password", userHandler.ChangePassword)

	return r
}

func doJSON(router *gin.Engine, method, path string, body interface{}, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewBuffer(b)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func parseEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return resp
}

func userField(t *testing.T, resp response.Response, field string) string {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected data shape: %#v", resp.Data)
	}
	user, ok := data["user"].(map[string]interface{})
	if !ok {
		t.Fatalf("no user in data: %#v", data)
	}
	value, _ := user[field].(string)
	return value
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthFlow_RegisterLoginMeLogout(t *testing.T) {
	router := newTestServer()

	// Register
	w := doJSON(router, "POST", "/api/auth/register", gin.H{
		"email":    "a@b.com",
		"password": "Abcdefgh1!",
		"name":     "A",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected %d, got %d (%s)", http.StatusCreated, w.Code, w.Body.String())
	}
	resp := parseEnvelope(t, w)
	if email := userField(t, resp, "email"); email != "a@b.com" {
		t.Errorf("register email = %q, expected %q", email, "a@b.com")
	}
	registeredID := userField(t, resp, "id")

	registerCookies := w.Result().Cookies()
	if cookieByName(registerCookies, middleware.CookieAccessToken) == nil {
		t.Error("register should set accessToken cookie")
	}
	if cookieByName(registerCookies, middleware.CookieRefreshToken) == nil {
		t.Error("register should set refreshToken cookie")
	}

	// Login with the same credentials returns the same user id
	w = doJSON(router, "POST", "/api/auth/login", gin.H{
		"email":    "a@b.com",
		"password": "Abcdefgh1!",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected %d, got %d", http.StatusOK, w.Code)
	}
	resp = parseEnvelope(t, w)
	if id := userField(t, resp, "id"); id != registeredID {
		t.Errorf("login user id = %q, expected %q", id, registeredID)
	}
	sessionCookies := w.Result().Cookies()

	// Authenticated profile fetch via cookies
	w = doJSON(router, "GET", "/api/users/me", nil, sessionCookies)
	if w.Code != http.StatusOK {
		t.Fatalf("me: expected %d, got %d", http.StatusOK, w.Code)
	}
	resp = parseEnvelope(t, w)
	if id := userField(t, resp, "id"); id != registeredID {
		t.Errorf("me user id = %q, expected %q", id, registeredID)
	}

	// Logout clears both cookies
	w = doJSON(router, "POST", "/api/auth/logout", nil, sessionCookies)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: expected %d, got %d", http.StatusOK, w.Code)
	}
	cleared := w.Result().Cookies()
	for _, name := range []string{middleware.CookieAccessToken, middleware.CookieRefreshToken} {
		c := cookieByName(cleared, name)
		if c == nil {
			t.Errorf("logout should set clearing cookie for %s", name)
			continue
		}
		if c.Value != "" {
			t.Errorf("cookie %s should be cleared, got value %q", name, c.Value)
		}
		if c.MaxAge >= 0 {
			t.Errorf("cookie %s should have negative max-age, got %d", name, c.MaxAge)
		}
	}

	// The cleared cookies no longer authenticate
	w = doJSON(router, "GET", "/api/users/me", nil, cleared)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("me after logout: expected %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestRegister_Validation(t *testing.T) {
	router := newTestServer()

	tests := []struct {
		name string
		body gin.H
	}{
		{"missing email", gin.H{"password": "Abcdefgh1!", "name": "A"}},
		{"bad email", gin.H{"email": "not-an-email", "password": "Abcdefgh1!", "name": "A"}},
		{"short password", gin.H{"email": "a@b.com", "password": "short", "name": "A"}},
		{"missing name", gin.H{"email": "a@b.com", "password": "Abcdefgh1!"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, "POST", "/api/auth/register", tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected %d, got %d", http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestRegister_DuplicateEmailConflict(t *testing.T) {
	router := newTestServer()

	body := gin.H{"email": "a@b.com", "password": "Abcdefgh1!", "name": "A"}
	doJSON(router, "POST", "/api/auth/register", body, nil)

	w := doJSON(router, "POST", "/api/auth/register", body, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected %d, got %d", http.StatusConflict, w.Code)
	}
}

func TestLogin_InvalidCredentialsIndistinguishable(t *testing.T) {
	router := newTestServer()
	doJSON(router, "POST", "/api/auth/register", gin.H{
		"email": "a@b.com", "password": "Abcdefgh1!", "name": "A",
	}, nil)

	wUnknown := doJSON(router, "POST", "/api/auth/login", gin.H{
		"email": "nobody@b.com", "password": "Abcdefgh1!",
	}, nil)
	wWrongPw := doJSON(router, "POST", "/api/auth/login", gin.H{
		"email": "a@b.com", "password": "wrong-password",
	}, nil)

	if wUnknown.Code != http.StatusUnauthorized || wWrongPw.Code != http.StatusUnauthorized {
		t.Fatalf("expected both %d, got %d and %d", http.StatusUnauthorized, wUnknown.Code, wWrongPw.Code)
	}
	if wUnknown.Body.String() != wWrongPw.Body.String() {
		t.Error("unknown email and wrong password must return identical bodies")
	}
}

func TestRefresh_FromCookieAndBody(t *testing.T) {
	router := newTestServer()

	w := doJSON(router, "POST", "/api/auth/register", gin.H{
		"email": "a@b.com", "password": "Abcdefgh1!", "name": "A",
	}, nil)
	cookies := w.Result().Cookies()
	refreshCookie := cookieByName(cookies, middleware.CookieRefreshToken)

	// Via cookie
	w = doJSON(router, "POST", "/api/auth/refresh", nil, cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh via cookie: expected %d, got %d (%s)", http.StatusOK, w.Code, w.Body.String())
	}
	rotated := cookieByName(w.Result().Cookies(), middleware.CookieRefreshToken)
	if rotated == nil || rotated.Value == refreshCookie.Value {
		t.Error("refresh should rotate the refreshToken cookie")
	}

	// Via body, using the rotated token
	w = doJSON(router, "POST", "/api/auth/refresh", gin.H{"refreshToken": rotated.Value}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh via body: expected %d, got %d", http.StatusOK, w.Code)
	}

	// Missing token entirely
	w = doJSON(router, "POST", "/api/auth/refresh", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("refresh without token: expected %d, got %d", http.StatusBadRequest, w.Code)
	}

	// The original (rotated-out) token is rejected
	w = doJSON(router, "POST", "/api/auth/refresh", gin.H{"refreshToken": refreshCookie.Value}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("rotated-out token: expected %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestChangePassword_WrongCurrentLeavesHashIntact(t *testing.T) {
	router := newTestServer()

	w := doJSON(router, "POST", "/api/auth/register", gin.H{
		"email": "a@b.com", "password": "Abcdefgh1!", "name": "A",
	}, nil)
	cookies := w.Result().Cookies()

	w = doJSON(router, "PUT", "/api/users/me/password", gin.H{
		"currentPassword": "wrong-password",
		"newPassword":     "NewPassword99!",
		"confirmPassword": "NewPassword99!",
	}, cookies)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong current password: expected %d, got %d", http.StatusUnauthorized, w.Code)
	}

	// Old password still logs in, so the stored hash was not touched.
	w = doJSON(router, "POST", "/api/auth/login", gin.H{
		"email": "a@b.com", "password": "Abcdefgh1!",
	}, nil)
	if w.Code != http.StatusOK {
		t.Errorf("login with old password: expected %d, got %d", http.StatusOK, w.Code)
	}
}

func TestChangePassword_ConfirmMismatch(t *testing.T) {
	router := newTestServer()

	w := doJSON(router, "POST", "/api/auth/register", gin.H{
		"email": "a@b.com", "password": "Abcdefgh1!", "name": "A",
	}, nil)
	cookies := w.Result().Cookies()

	w = doJSON(router, "PUT", "/api/users/me/password", gin.H{
		"currentPassword": "Abcdefgh1!",
		"newPassword":     "NewPassword99!",
		"confirmPassword": "SomethingElse1!",
	}, cookies)
	if w.Code != http.StatusBadRequest {
		t.Errorf("confirm mismatch: expected %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestLogout_AlwaysSucceeds(t *testing.T) {
	router := newTestServer()

	// No session at all
	w := doJSON(router, "POST", "/api/auth/logout", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("logout without session: expected %d, got %d", http.StatusOK, w.Code)
	}

	// Twice in a row with the same cookies
	w = doJSON(router, "POST", "/api/auth/register", gin.H{
		"email": "a@b.com", "password": "Abcdefgh1!", "name": "A",
	}, nil)
	cookies := w.Result().Cookies()

	for i := 0; i < 2; i++ {
		w = doJSON(router, "POST", "/api/auth/logout", nil, cookies)
		if w.Code != http.StatusOK {
			t.Errorf("logout %d: expected %d, got %d", i+1, http.StatusOK, w.Code)
		}
	}
}

func TestGetCurrentUser_NeverExposesPasswordHash(t *testing.T) {
	router := newTestServer()

	w := doJSON(router, "POST", "/api/auth/register", gin.H{
		"email": "a@b.com", "password": "Abcdefgh1!", "name": "A",
	}, nil)
	cookies := w.Result().Cookies()

	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Errorf("register response leaks a password field: %s", w.Body.String())
	}

	w = doJSON(router, "GET", "/api/users/me", nil, cookies)
	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Errorf("profile response leaks a password field: %s", w.Body.String())
	}
}
