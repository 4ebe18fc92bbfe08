package httpapi

import (
	"context"
	"net/http"
	"strings"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/service"

	"go.uber.org/zap"
)

type contextKey string

const actorKey contextKey = "actor"

// TokenVerifier 中间件需要的最小令牌接口
type TokenVerifier interface {
	VerifyAccess(token string) (*service.TokenClaims, error)
}

// AuthMiddleware Bearer JWT 认证，把 Actor 放入请求上下文
type AuthMiddleware struct {
	tokens TokenVerifier
	logger *zap.Logger
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(tokens TokenVerifier, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, logger: logger}
}

// Wrap 要求有效的 Bearer 令牌
func (m *AuthMiddleware) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			writeError(w, m.logger, domain.ErrUnauthorized("missing or malformed authorization header"))
			return
		}
		claims, err := m.tokens.VerifyAccess(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, m.logger, err)
			return
		}
		actor := service.Actor{ID: claims.UserID, Email: claims.Email, Role: claims.Role}
		next(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	}
}

// actorFrom 取出当前请求主体（中间件保证存在）
func actorFrom(r *http.Request) service.Actor {
	actor, _ := r.Context().Value(actorKey).(service.Actor)
	return actor
}
