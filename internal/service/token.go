package service

import (
	"fmt"
	"time"

	"fieldops-data/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const (
	accessTokenTTL  = 7 * 24 * time.Hour
	refreshTokenTTL = 30 * 24 * time.Hour
)

// TokenClaims JWT 负载
type TokenClaims struct {
	UserID string      `json:"id"`
	Email  string      `json:"email"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer 签发并验证 HS256 访问/刷新令牌
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
}

// NewTokenIssuer 创建 TokenIssuer
func NewTokenIssuer(accessSecret, refreshSecret string) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
	}
}

// IssuePair 签发 access + refresh 令牌对
func (t *TokenIssuer) IssuePair(user *domain.User) (access string, refresh string, err error) {
	access, err = t.sign(user, t.accessSecret, accessTokenTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = t.sign(user, t.refreshSecret, refreshTokenTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (t *TokenIssuer) sign(user *domain.User, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &TokenClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccess 验证 access 令牌并返回负载
func (t *TokenIssuer) VerifyAccess(tokenString string) (*TokenClaims, error) {
	return t.verify(tokenString, t.accessSecret)
}

// VerifyRefresh 验证 refresh 令牌并返回负载
func (t *TokenIssuer) VerifyRefresh(tokenString string) (*TokenClaims, error) {
	return t.verify(tokenString, t.refreshSecret)
}

func (t *TokenIssuer) verify(tokenString string, secret []byte) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, domain.ErrUnauthorized("invalid or expired token")
	}
	return claims, nil
}
