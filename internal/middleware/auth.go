package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/habitcraft/habitcraft/backend/internal/services"
	"github.com/habitcraft/habitcraft/backend/pkg/response"
)

const (
	ContextUserID = "user_id"

	// CookieAccessToken and CookieRefreshToken are the HttpOnly cookie names
	// the auth endpoints set and the session middleware reads.
	CookieAccessToken  = "accessToken"
	CookieRefreshToken = "refreshToken"
)

// AuthRequired checks for a valid access token on every protected request.
// The accessToken cookie takes precedence over the Authorization header;
// cookies are the primary transport in this design. The check is stateless:
// it never touches the refresh-token ledger or the user store.
func AuthRequired(issuer *services.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, errMsg := extractAccessToken(c)
		if errMsg != "" {
			response.Unauthorized(c, errMsg)
			c.Abort()
			return
		}

		claims, err := issuer.Verify(tokenString, services.TokenTypeAccess)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTokenExpired):
				response.Unauthorized(c, "token expired")
			case errors.Is(err, services.ErrWrongTokenType):
				response.Unauthorized(c, "wrong token type")
			default:
				response.Unauthorized(c, "invalid token")
			}
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Next()
	}
}

// extractAccessToken returns the token string, or an error message when no
// token is present or the Authorization header is malformed. A malformed
// header is reported distinctly from a missing token.
func extractAccessToken(c *gin.Context) (token, errMsg string) {
	if cookie, err := c.Cookie(CookieAccessToken); err == nil && cookie != "" {
		return cookie, ""
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "authentication required"
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "invalid authorization header format"
	}

	return parts[1], ""
}

// GetUserID gets the authenticated user ID from context.
func GetUserID(c *gin.Context) string {
	if id, exists := c.Get(ContextUserID); exists {
		return id.(string)
	}
	return ""
}
