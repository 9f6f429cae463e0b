// internal/api/auth_middleware.go
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/SceneIntruderClient/internal/auth"
	"github.com/Corphon/SceneIntruderClient/internal/utils"
)

const (
	tokenExpiration = 24 * time.Hour
	tokenSecretSize = 32
	devSecret       = "dev_auth_key_for_testing_purposes_only_"
)

// NewTokenConfig builds the signing config. An empty secret falls back to a
// fixed key in debug mode and a random key otherwise.
func NewTokenConfig(secret string, debugMode bool, logger *utils.Logger) (*auth.TokenConfig, error) {
	var key []byte
	switch {
	case secret != "":
		key = []byte(secret)
	case debugMode:
		key = []byte(devSecret)
		logger.Warn("开发模式下使用固定认证密钥，生产环境请设置 AUTH_SECRET_KEY", nil)
	default:
		generated, err := auth.GenerateSecureKey(tokenSecretSize)
		if err != nil {
			return nil, fmt.Errorf("generate auth key: %w", err)
		}
		key = generated
	}

	if len(key) < tokenSecretSize {
		padded := make([]byte, tokenSecretSize)
		copy(padded, key)
		key = padded
	}

	return &auth.TokenConfig{Secret: key, Expiration: tokenExpiration}, nil
}

// Authenticator issues and checks bearer tokens.
type Authenticator struct {
	config *auth.TokenConfig
	rh     *ResponseHelper
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(config *auth.TokenConfig, rh *ResponseHelper) *Authenticator {
	return &Authenticator{config: config, rh: rh}
}

// IssueToken signs a token for the user.
func (a *Authenticator) IssueToken(userID, tier string) (string, error) {
	return auth.GenerateToken(userID, tier, a.config)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// user in the gin context.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == "" {
			a.rh.AbortWithError(c, http.StatusUnauthorized, ErrorUnauthorized, "需要登录")
			return
		}

		parsed, err := auth.ParseToken(token, a.config)
		if err != nil {
			code := ErrorTokenInvalid
			if errors.Is(err, auth.ErrExpiredToken) {
				code = ErrorTokenExpired
			}
			a.rh.AbortWithError(c, http.StatusUnauthorized, code, "令牌无效或已过期")
			return
		}

		c.Set(ContextKeyUserID, parsed.UserID)
		c.Set(ContextKeyTier, parsed.Tier)
		c.Next()
	}
}

// GetUserFromContext returns the authenticated user id.
func GetUserFromContext(c *gin.Context) (string, bool) {
	userID := c.GetString(ContextKeyUserID)
	return userID, userID != ""
}
