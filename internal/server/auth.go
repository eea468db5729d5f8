package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/joseph-ayodele/palmistry/internal/common"
)

var (
	ErrNoBearer     = errors.New("no bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

const ownerKey = "owner_id"

// MintToken issues an HS256 token whose subject is the owner id.
func MintToken(secret, ownerID string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   ownerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	return signed, exp, err
}

// ParseToken validates a token and returns its subject.
func ParseToken(secret, tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func bearer(c *gin.Context) (string, error) {
	auth := c.GetHeader("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return "", ErrNoBearer
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")), nil
}

// requireAuth rejects requests without a valid bearer token and stores the
// owner id on both the gin and the request context.
func (a *API) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := bearer(c)
		if err == nil {
			var owner string
			if owner, err = ParseToken(a.auth.JWTSecret, raw); err == nil {
				c.Set(ownerKey, owner)
				c.Request = c.Request.WithContext(common.WithOwnerID(c.Request.Context(), owner))
				c.Next()
				return
			}
		}
		a.logger.Warn("http.auth.rejected", "path", c.FullPath(), "reason", err.Error(), "req_id", c.GetString(requestIDKey))
		a.fail(c, common.NewAppError("UNAUTHORIZED", err.Error(), common.ErrUnauthorized))
	}
}

func ownerID(c *gin.Context) string {
	if owner := c.GetString(ownerKey); owner != "" {
		return owner
	}
	return common.OwnerIDFromContext(c.Request.Context())
}
