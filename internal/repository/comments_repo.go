package repository

import (
	"context"
	"database/sql"
	"fmt"

	"fieldops-data/internal/domain"

	"go.uber.org/zap"
)

// CommentsRepository 评论仓库接口
// Create 在单个事务中写入评论 + NEW_COMMENT outbox 意图
type CommentsRepository interface {
	Get(ctx context.Context, id string) (*domain.Comment, error)
	ListByWorkOrder(ctx context.Context, workOrderID string) ([]*domain.Comment, error)
	Create(ctx context.Context, comment *domain.Comment, intents []*domain.NotificationIntent) (string, error)
	Update(ctx context.Context, id, content string) error
	Delete(ctx context.Context, id string) error
}

type postgresCommentsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresCommentsRepo 创建评论仓库
func NewPostgresCommentsRepo(db *sql.DB, logger *zap.Logger) CommentsRepository {
	return &postgresCommentsRepo{db: db, logger: logger}
}

const commentSelect = `
	SELECT c.id, c.work_order_id, c.user_id, c.content, c.is_internal, c.created_at, c.updated_at,
	       u.first_name, u.last_name, u.email
	FROM comments c
	JOIN users u ON u.id = c.user_id`

func scanComment(row interface{ Scan(...any) error }) (*domain.Comment, error) {
	var c domain.Comment
	var first, last, email string
	err := row.Scan(
		&c.ID, &c.WorkOrderID, &c.UserID, &c.Content, &c.IsInternal,
		&c.CreatedAt, &c.UpdatedAt,
		&first, &last, &email,
	)
	if err != nil {
		return nil, err
	}
	c.User = &domain.UserRef{ID: c.UserID, FirstName: first, LastName: last, Email: email}
	return &c, nil
}

func (r *postgresCommentsRepo) Get(ctx context.Context, id string) (*domain.Comment, error) {
	row := r.db.QueryRowContext(ctx, commentSelect+` WHERE c.id = $1`, id)
	c, err := scanComment(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound("comment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	return c, nil
}

func (r *postgresCommentsRepo) ListByWorkOrder(ctx context.Context, workOrderID string) ([]*domain.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		commentSelect+` WHERE c.work_order_id = $1 ORDER BY c.created_at ASC`,
		workOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []*domain.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (r *postgresCommentsRepo) Create(ctx context.Context, comment *domain.Comment, intents []*domain.NotificationIntent) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx,
		`INSERT INTO comments (work_order_id, user_id, content, is_internal)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		comment.WorkOrderID, comment.UserID, comment.Content, comment.IsInternal,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create comment: %w", err)
	}

	if err := enqueueIntents(ctx, tx, intents); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit comment create: %w", err)
	}
	return id, nil
}

func (r *postgresCommentsRepo) Update(ctx context.Context, id, content string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE comments SET content = $2, updated_at = NOW() WHERE id = $1`,
		id, content)
	if err != nil {
		return fmt.Errorf("failed to update comment: %w", err)
	}
	return requireRowAffected(res, "comment not found")
}

func (r *postgresCommentsRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return requireRowAffected(res, "comment not found")
}
