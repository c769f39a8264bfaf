package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitcraft/habitcraft/backend/internal/middleware"
	"github.com/habitcraft/habitcraft/backend/internal/services"
	"github.com/habitcraft/habitcraft/backend/pkg/response"
)

type AuthHandler struct {
	authService   *services.AuthService
	secureCookies bool
}

func NewAuthHandler(authService *services.AuthService, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		secureCookies: secureCookies,
	}
}

// Register handles account creation
// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.Register(&req, auditContext(c))
	if err != nil {
		if errors.Is(err, services.ErrDuplicateEmail) {
			response.Conflict(c, "email already registered")
			return
		}
		response.Error(c, err)
		return
	}

	h.setSessionCookies(c, result)
	response.Created(c, gin.H{"user": result.User})
}

// Login handles user login
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.Login(&req, auditContext(c))
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			// Same response for unknown email and wrong password.
			response.Unauthorized(c, "invalid credentials")
			return
		}
		response.Error(c, err)
		return
	}

	h.setSessionCookies(c, result)
	response.Success(c, gin.H{"user": result.User})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh exchanges a refresh token (cookie or body) for a new token pair
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	rawToken, _ := c.Cookie(middleware.CookieRefreshToken)
	if rawToken == "" {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			rawToken = req.RefreshToken
		}
	}

	result, err := h.authService.Refresh(rawToken, auditContext(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRefreshTokenRequired):
			response.BadRequest(c, "refresh token required")
		case errors.Is(err, services.ErrInvalidRefreshToken):
			response.Unauthorized(c, "invalid or expired refresh token")
		default:
			response.Error(c, err)
		}
		return
	}

	h.setSessionCookies(c, result)
	response.Success(c, gin.H{
		"accessToken": result.AccessToken,
		"expiresAt":   result.AccessExpiresAt,
	})
}

// Logout revokes the presented refresh token and clears both cookies.
// Always succeeds, even without a valid session.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	rawToken, _ := c.Cookie(middleware.CookieRefreshToken)
	h.authService.Logout(rawToken, auditContext(c))

	h.clearSessionCookies(c)
	response.Success(c, gin.H{"message": "logged out successfully"})
}

func (h *AuthHandler) setSessionCookies(c *gin.Context, result *services.SessionResult) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieAccessToken, result.AccessToken,
		maxAge(result.AccessExpiresAt), "/", "", h.secureCookies, true)
	c.SetCookie(middleware.CookieRefreshToken, result.RefreshToken,
		maxAge(result.RefreshExpiresAt), "/", "", h.secureCookies, true)
}

func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieAccessToken, "", -1, "/", "", h.secureCookies, true)
	c.SetCookie(middleware.CookieRefreshToken, "", -1, "/", "", h.secureCookies, true)
}

func maxAge(expiresAt time.Time) int {
	age := int(time.Until(expiresAt).Seconds())
	if age < 0 {
		age = 0
	}
	return age
}

func auditContext(c *gin.Context) services.AuditContext {
	return services.AuditContext{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
