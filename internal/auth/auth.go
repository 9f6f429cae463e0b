// internal/auth/auth.go
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token validation failures.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// TokenConfig holds the configuration for token generation
type TokenConfig struct {
	Secret     []byte
	Expiration time.Duration
}

// Token represents an authentication token
type Token struct {
	UserID    string `json:"user_id"`
	Tier      string `json:"tier,omitempty"`
	ExpiresAt int64  `json:"expires_at"`
	IssuedAt  int64  `json:"issued_at"`
}

// GenerateToken creates a signed token for userID. The payload is
// "userID|tier|expiresAt|issuedAt", base64url encoded, followed by its HMAC.
func GenerateToken(userID, tier string, config *TokenConfig) (string, error) {
	if config == nil || len(config.Secret) == 0 {
		return "", fmt.Errorf("secret key is required")
	}
	if userID == "" || strings.Contains(userID, "|") || strings.Contains(tier, "|") {
		return "", fmt.Errorf("invalid token subject")
	}

	now := time.Now()
	payload := fmt.Sprintf("%s|%s|%d|%d", userID, tier, now.Add(config.Expiration).Unix(), now.Unix())

	encodedPayload := base64.RawURLEncoding.EncodeToString([]byte(payload))
	encodedSignature := base64.RawURLEncoding.EncodeToString(sign([]byte(payload), config.Secret))
	return encodedPayload + "." + encodedSignature, nil
}

// ParseToken parses and validates a token
func ParseToken(tokenString string, config *TokenConfig) (*Token, error) {
	if config == nil || len(config.Secret) == 0 {
		return nil, fmt.Errorf("secret key is required")
	}

	encodedPayload, encodedSignature, ok := strings.Cut(tokenString, ".")
	if !ok {
		return nil, fmt.Errorf("%w: format", ErrInvalidToken)
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidToken, err)
	}
	signatureBytes, err := base64.RawURLEncoding.DecodeString(encodedSignature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrInvalidToken, err)
	}
	if !hmac.Equal(signatureBytes, sign(payloadBytes, config.Secret)) {
		return nil, fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	}

	parts := strings.Split(string(payloadBytes), "|")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: payload format", ErrInvalidToken)
	}
	expiresAt, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: expiry", ErrInvalidToken)
	}
	issuedAt, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: issued at", ErrInvalidToken)
	}
	if time.Now().Unix() > expiresAt {
		return nil, ErrExpiredToken
	}

	return &Token{
		UserID:    parts[0],
		Tier:      parts[1],
		ExpiresAt: expiresAt,
		IssuedAt:  issuedAt,
	}, nil
}

func sign(payload, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	return h.Sum(nil)
}

// GenerateSecureKey generates a secure random key for token signing
func GenerateSecureKey(length int) ([]byte, error) {
	if length <= 0 {
		length = 32 // Default to 256 bits
	}

	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
