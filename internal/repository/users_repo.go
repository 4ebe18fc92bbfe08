package repository

import (
	"context"
	"database/sql"
	"fmt"

	"fieldops-data/internal/domain"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// UserFilters 用户列表过滤条件
type UserFilters struct {
	Role     *domain.Role
	IsActive *bool
	Search   string // first_name, last_name, email（模糊匹配）
}

// WorkerStats 活跃工人 + 指派工单数
type WorkerStats struct {
	ID                  string
	FirstName           string
	LastName            string
	Email               string
	AssignedOrdersCount int
}

// UsersRepository 用户仓库接口
type UsersRepository interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context, filters UserFilters) ([]*domain.User, error)
	Create(ctx context.Context, user *domain.User) (string, error)
	Update(ctx context.Context, user *domain.User) error
	SetActive(ctx context.Context, id string, isActive bool) error
	Delete(ctx context.Context, id string) error
	ListWorkers(ctx context.Context) ([]*domain.User, error)
	ListWorkersWithStats(ctx context.Context) ([]*WorkerStats, error)
}

type postgresUsersRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresUsersRepo 创建用户仓库
func NewPostgresUsersRepo(db *sql.DB, logger *zap.Logger) UsersRepository {
	return &postgresUsersRepo{db: db, logger: logger}
}

const userColumns = `id, email, password_hash, first_name, last_name, role, phone, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &u.Phone, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *postgresUsersRepo) Get(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (r *postgresUsersRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

func (r *postgresUsersRepo) List(ctx context.Context, filters UserFilters) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	var conds []string

	if filters.Role != nil {
		args = append(args, string(*filters.Role))
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		idx := len(args)
		conds = append(conds, fmt.Sprintf("(first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d)", idx, idx, idx))
	}

	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY role ASC, first_name ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *postgresUsersRepo) Create(ctx context.Context, user *domain.User) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name, role, phone, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		user.Email, user.PasswordHash, user.FirstName, user.LastName,
		string(user.Role), user.Phone, user.IsActive,
	).Scan(&id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return "", domain.ErrBadRequest("a user with this email already exists")
		}
		return "", fmt.Errorf("failed to create user: %w", err)
	}
	return id, nil
}

func (r *postgresUsersRepo) Update(ctx context.Context, user *domain.User) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET email = $2, password_hash = $3, first_name = $4, last_name = $5,
		     role = $6, phone = $7, is_active = $8, updated_at = NOW()
		 WHERE id = $1`,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		string(user.Role), user.Phone, user.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireRowAffected(res, "user not found")
}

func (r *postgresUsersRepo) SetActive(ctx context.Context, id string, isActive bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, isActive)
	if err != nil {
		return fmt.Errorf("failed to set user status: %w", err)
	}
	return requireRowAffected(res, "user not found")
}

func (r *postgresUsersRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireRowAffected(res, "user not found")
}

func (r *postgresUsersRepo) ListWorkers(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+`
		 FROM users
		 WHERE role = $1 AND is_active = TRUE
		 ORDER BY first_name ASC`,
		string(domain.RoleWorker))
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	defer rows.Close()

	var workers []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}
		workers = append(workers, u)
	}
	return workers, rows.Err()
}

func (r *postgresUsersRepo) ListWorkersWithStats(ctx context.Context) ([]*WorkerStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.first_name, u.last_name, u.email, COUNT(w.id)
		 FROM users u
		 LEFT JOIN work_orders w ON w.assigned_to_id = u.id
		 WHERE u.role = $1 AND u.is_active = TRUE
		 GROUP BY u.id, u.first_name, u.last_name, u.email
		 ORDER BY u.first_name ASC`,
		string(domain.RoleWorker))
	if err != nil {
		return nil, fmt.Errorf("failed to list workers with stats: %w", err)
	}
	defer rows.Close()

	var stats []*WorkerStats
	for rows.Next() {
		var s WorkerStats
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &s.AssignedOrdersCount); err != nil {
			return nil, fmt.Errorf("failed to scan worker stats: %w", err)
		}
		stats = append(stats, &s)
	}
	return stats, rows.Err()
}

// requireRowAffected 把 0 行受影响映射为 NotFound
func requireRowAffected(res sql.Result, notFoundMsg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound(notFoundMsg)
	}
	return nil
}
