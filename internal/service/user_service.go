package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/repository"

	"go.uber.org/zap"
)

// Actor 已认证请求主体（中间件从 JWT 解出）
type Actor struct {
	ID    string
	Email string
	Role  domain.Role
}

// UserService 用户管理服务接口
type UserService interface {
	List(ctx context.Context, actor Actor, req ListUsersRequest) ([]*UserResponse, error)
	Get(ctx context.Context, actor Actor, id string) (*UserResponse, error)
	Create(ctx context.Context, actor Actor, req CreateUserRequest) (*UserResponse, error)
	Update(ctx context.Context, actor Actor, id string, req UpdateUserRequest) (*UserResponse, error)
	SetStatus(ctx context.Context, actor Actor, id string, isActive bool) (*UserResponse, error)
	Delete(ctx context.Context, actor Actor, id string) error
	ListWorkers(ctx context.Context, actor Actor) ([]*UserResponse, error)
	ListWorkersWithStats(ctx context.Context, actor Actor) ([]*WorkerStatsResponse, error)
}

type userService struct {
	usersRepo repository.UsersRepository
	logger    *zap.Logger
}

// NewUserService 创建 UserService 实例
func NewUserService(usersRepo repository.UsersRepository, logger *zap.Logger) UserService {
	return &userService{usersRepo: usersRepo, logger: logger}
}

// ListUsersRequest 用户列表过滤
type ListUsersRequest struct {
	Role     string
	IsActive *bool
	Search   string
}

// CreateUserRequest 创建用户请求（仅 ADMIN）
type CreateUserRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	Phone     string `json:"phone"`
}

// UpdateUserRequest 更新用户请求（nil 字段不变；Password 非空则重置密码）
type UpdateUserRequest struct {
	Email     *string `json:"email"`
	Password  *string `json:"password"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Role      *string `json:"role"`
	Phone     *string `json:"phone"`
	IsActive  *bool   `json:"isActive"`
}

// UserResponse 用户响应（不含密码哈希）
type UserResponse struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
	Role      domain.Role `json:"role"`
	Phone     string      `json:"phone,omitempty"`
	IsActive  bool        `json:"isActive"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// WorkerStatsResponse 工人 + 指派数
type WorkerStatsResponse struct {
	ID                  string `json:"id"`
	FirstName           string `json:"firstName"`
	LastName            string `json:"lastName"`
	Email               string `json:"email"`
	AssignedOrdersCount int    `json:"assignedOrdersCount"`
}

func toUserResponse(u *domain.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
		Phone:     u.Phone.String,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func requireRole(actor Actor, roles ...domain.Role) error {
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return domain.ErrForbidden("you do not have permission to perform this action")
}

func (s *userService) List(ctx context.Context, actor Actor, req ListUsersRequest) ([]*UserResponse, error) {
	if err := requireRole(actor, domain.RoleAdministrator, domain.RoleManager); err != nil {
		return nil, err
	}

	filters := repository.UserFilters{Search: strings.TrimSpace(req.Search), IsActive: req.IsActive}
	if req.Role != "" {
		role, ok := domain.ParseRole(req.Role)
		if !ok {
			return nil, domain.ErrBadRequest("invalid role: " + req.Role)
		}
		filters.Role = &role
	}

	users, err := s.usersRepo.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	out := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	return out, nil
}

func (s *userService) Get(ctx context.Context, actor Actor, id string) (*UserResponse, error) {
	// 普通用户只能看自己
	if actor.Role == domain.RoleWorker && actor.ID != id {
		return nil, domain.ErrForbidden("you do not have permission to view this user")
	}
	user, err := s.usersRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return toUserResponse(user), nil
}

func (s *userService) Create(ctx context.Context, actor Actor, req CreateUserRequest) (*UserResponse, error) {
	if err := requireRole(actor, domain.RoleAdministrator); err != nil {
		return nil, err
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" || req.FirstName == "" || req.LastName == "" {
		return nil, domain.ErrBadRequest("email, password, first name and last name are required")
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		return nil, domain.ErrBadRequest("invalid role: " + req.Role)
	}
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

	s.logger.Info("user created",
		zap.String("user_id", id),
		zap.String("role", string(role)),
		zap.String("created_by", actor.ID))

	return s.Get(ctx, actor, id)
}

func (s *userService) Update(ctx context.Context, actor Actor, id string, req UpdateUserRequest) (*UserResponse, error) {
	if err := requireRole(actor, domain.RoleAdministrator); err != nil {
		return nil, err
	}

	user, err := s.usersRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email == "" {
			return nil, domain.ErrBadRequest("email cannot be empty")
		}
		user.Email = email
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Role != nil {
		role, ok := domain.ParseRole(*req.Role)
		if !ok {
			return nil, domain.ErrBadRequest("invalid role: " + *req.Role)
		}
		user.Role = role
	}
	if req.Phone != nil {
		user.Phone = nullString(*req.Phone)
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.Password != nil && *req.Password != "" {
		if len(*req.Password) < 6 {
			return nil, domain.ErrBadRequest("password must be at least 6 characters")
		}
		hash, err := HashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if err := s.usersRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, id)
}

func (s *userService) SetStatus(ctx context.Context, actor Actor, id string, isActive bool) (*UserResponse, error) {
	if err := requireRole(actor, domain.RoleAdministrator); err != nil {
		return nil, err
	}
	if actor.ID == id && !isActive {
		return nil, domain.ErrBadRequest("you cannot deactivate your own account")
	}
	if err := s.usersRepo.SetActive(ctx, id, isActive); err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, id)
}

func (s *userService) Delete(ctx context.Context, actor Actor, id string) error {
	if err := requireRole(actor, domain.RoleAdministrator); err != nil {
		return err
	}
	if actor.ID == id {
		return domain.ErrBadRequest("you cannot delete your own account")
	}
	if err := s.usersRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("user deleted",
		zap.String("user_id", id),
		zap.String("deleted_by", actor.ID))
	return nil
}

func (s *userService) ListWorkers(ctx context.Context, actor Actor) ([]*UserResponse, error) {
	if err := requireRole(actor, domain.RoleAdministrator, domain.RoleManager); err != nil {
		return nil, err
	}
	workers, err := s.usersRepo.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*UserResponse, 0, len(workers))
	for _, w := range workers {
		out = append(out, toUserResponse(w))
	}
	return out, nil
}

func (s *userService) ListWorkersWithStats(ctx context.Context, actor Actor) ([]*WorkerStatsResponse, error) {
	if err := requireRole(actor, domain.RoleAdministrator, domain.RoleManager); err != nil {
		return nil, err
	}
	stats, err := s.usersRepo.ListWorkersWithStats(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*WorkerStatsResponse, 0, len(stats))
	for _, st := range stats {
		out = append(out, &WorkerStatsResponse{
			ID:                  st.ID,
			FirstName:           st.FirstName,
			LastName:            st.LastName,
			Email:               st.Email,
			AssignedOrdersCount: st.AssignedOrdersCount,
		})
	}
	return out, nil
}
