package service

import (
	"context"
	"strings"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/repository"

	"go.uber.org/zap"
)

// AuthService 认证服务接口
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	Profile(ctx context.Context, userID string) (*UserResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error)
}

type authService struct {
	usersRepo repository.UsersRepository
	tokens    *TokenIssuer
	logger    *zap.Logger
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(usersRepo repository.UsersRepository, tokens *TokenIssuer, logger *zap.Logger) AuthService {
	return &authService{usersRepo: usersRepo, tokens: tokens, logger: logger}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	Role      string `json:"role"` // 可选，默认 WORKER
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse 认证响应（注册/登录/刷新共用）
type AuthResponse struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
	User         *UserResponse `json:"user"`
}

// Register 注册新账号，默认角色 WORKER
func (s *authService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	// 1. 参数验证
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return nil, domain.ErrBadRequest("email and password are required")
	}
	if req.FirstName == "" || req.LastName == "" {
		return nil, domain.ErrBadRequest("first name and last name are required")
	}
	if len(req.Password) < 6 {
		return nil, domain.ErrBadRequest("password must be at least 6 characters")
	}

	role := domain.RoleWorker
	if req.Role != "" {
		parsed, ok := domain.ParseRole(req.Role)
		if !ok {
			return nil, domain.ErrBadRequest("invalid role: " + req.Role)
		}
		role = parsed
	}

	// 2. 哈希密码并写入
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         role,
		Phone:        nullString(req.Phone),
		IsActive:     true,
	}
	id, err := s.usersRepo.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	user.ID = id

	s.logger.Info("user registered",
		zap.String("user_id", id),
		zap.String("role", string(role)))

	// 3. 签发令牌
	return s.issueTokens(user)
}

// Login 登录
func (s *authService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return nil, domain.ErrBadRequest("email and password are required")
	}

	user, err := s.usersRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		// 不区分"账号不存在"与"密码错误"
		if domain.StatusOf(err) == 404 {
			return nil, domain.ErrUnauthorized("invalid credentials")
		}
		return nil, err
	}
	if !CheckPassword(user.PasswordHash, req.Password) {
		s.logger.Warn("login failed: bad password", zap.String("user_id", user.ID))
		return nil, domain.ErrUnauthorized("invalid credentials")
	}
	if !user.IsActive {
		return nil, domain.ErrForbidden("account is deactivated")
	}

	return s.issueTokens(user)
}

// Profile 当前用户信息
func (s *authService) Profile(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.usersRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toUserResponse(user), nil
}

// Refresh 用 refresh 令牌换新令牌对
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.usersRepo.Get(ctx, claims.UserID)
	if err != nil {
		if domain.StatusOf(err) == 404 {
			return nil, domain.ErrUnauthorized("invalid or expired token")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, domain.ErrForbidden("account is deactivated")
	}
	return s.issueTokens(user)
}

func (s *authService) issueTokens(user *domain.User) (*AuthResponse, error) {
	access, refresh, err := s.tokens.IssuePair(user)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         toUserResponse(user),
	}, nil
}
