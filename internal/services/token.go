package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/habitcraft/habitcraft/backend/internal/config"
)

// TokenType distinguishes the two credential kinds minted by the issuer.
// Tokens are not interchangeable despite sharing a signing mechanism.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims is the JWT payload for both access and refresh tokens.
type Claims struct {
	UserID    string `json:"userId"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies signed bearer tokens. The signing secret and
// lifetimes come from an explicit config struct so tests can construct issuers
// with distinct secrets.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenIssuer(cfg *config.JWTConfig) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL(),
		refreshTTL: cfg.RefreshTTL(),
	}
}

// IssueAccessToken mints a short-lived stateless access token. Access tokens
// are never persisted; the short TTL bounds exposure after a leak.
func (i *TokenIssuer) IssueAccessToken(userID string) (string, time.Time, error) {
	return i.issue(userID, TokenTypeAccess, i.accessTTL)
}

// IssueRefreshToken mints a long-lived refresh token. The caller is expected
// to record its hash in the ledger so it can be revoked.
func (i *TokenIssuer) IssueRefreshToken(userID string) (string, time.Time, error) {
	return i.issue(userID, TokenTypeRefresh, i.refreshTTL)
}

func (i *TokenIssuer) issue(userID string, tokenType TokenType, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		UserID:    userID,
		TokenType: string(tokenType),
		RegisteredClaims: jwt.RegisteredClaims{
			// A unique id per token: timestamps alone are second-granular,
			// and two identical refresh tokens would collide in the ledger.
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// Verify checks the token's signature, expiry and type claim. A refresh token
// presented where an access token is required fails with ErrWrongTokenType,
// and vice versa.
func (i *TokenIssuer) Verify(tokenString string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.TokenType != string(want) {
		return nil, ErrWrongTokenType
	}
	if claims.UserID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
