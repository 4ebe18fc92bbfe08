package repository

import (
	"context"
	"database/sql"
	"fmt"

	"fieldops-data/internal/domain"

	"go.uber.org/zap"
)

// NotificationsRepository 通知仓库接口
// outbox 相关方法（ClaimPending / Release）仅由 dispatcher 使用
type NotificationsRepository interface {
	Get(ctx context.Context, id string) (*domain.Notification, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Create(ctx context.Context, n *domain.Notification) (string, error)
	ClaimPending(ctx context.Context, limit int) ([]*domain.NotificationIntent, error)
	Release(ctx context.Context, id string) error
}

type postgresNotificationsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresNotificationsRepo 创建通知仓库
func NewPostgresNotificationsRepo(db *sql.DB, logger *zap.Logger) NotificationsRepository {
	return &postgresNotificationsRepo{db: db, logger: logger}
}

// execer 事务或连接均可执行（enqueueIntent 需要在主事务内调用）
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// enqueueIntent 把通知意图写入 outbox，与调用方的主事务原子提交
func enqueueIntent(ctx context.Context, q execer, intent *domain.NotificationIntent) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO notification_outbox (user_id, type, title, message, work_order_id, sent_by_id)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		intent.UserID, string(intent.Type), intent.Title, intent.Message,
		intent.WorkOrderID, intent.SentByID,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue notification intent: %w", err)
	}
	return nil
}

// enqueueIntents 批量写入 outbox（评论 fan-out 等多收件人场景）
func enqueueIntents(ctx context.Context, q execer, intents []*domain.NotificationIntent) error {
	for _, intent := range intents {
		if err := enqueueIntent(ctx, q, intent); err != nil {
			return err
		}
	}
	return nil
}

const notificationSelect = `
	SELECT n.id, n.user_id, n.type, n.title, n.message, n.work_order_id, n.sent_by_id, n.is_read, n.created_at,
	       su.first_name, su.last_name, su.email
	FROM notifications n
	LEFT JOIN users su ON su.id = n.sent_by_id`

func scanNotification(row interface{ Scan(...any) error }) (*domain.Notification, error) {
	var n domain.Notification
	var senderFirst, senderLast, senderEmail sql.NullString

	err := row.Scan(
		&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message,
		&n.WorkOrderID, &n.SentByID, &n.IsRead, &n.CreatedAt,
		&senderFirst, &senderLast, &senderEmail,
	)
	if err != nil {
		return nil, err
	}
	if n.SentByID.Valid {
		n.SentBy = &domain.UserRef{
			ID:        n.SentByID.String,
			FirstName: senderFirst.String,
			LastName:  senderLast.String,
			Email:     senderEmail.String,
		}
	}
	return &n, nil
}

func (r *postgresNotificationsRepo) Get(ctx context.Context, id string) (*domain.Notification, error) {
	row := r.db.QueryRowContext(ctx, notificationSelect+` WHERE n.id = $1`, id)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound("notification not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

func (r *postgresNotificationsRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		notificationSelect+` WHERE n.user_id = $1 ORDER BY n.created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (r *postgresNotificationsRepo) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (r *postgresNotificationsRepo) MarkRead(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return requireRowAffected(res, "notification not found")
}

func (r *postgresNotificationsRepo) MarkAllRead(ctx context.Context, userID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`,
		userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *postgresNotificationsRepo) Create(ctx context.Context, n *domain.Notification) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO notifications (user_id, type, title, message, work_order_id, sent_by_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		n.UserID, string(n.Type), n.Title, n.Message, n.WorkOrderID, n.SentByID,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create notification: %w", err)
	}
	return id, nil
}

// ClaimPending 认领一批未投递的 outbox 行：认领即标记 dispatched_at，
// 单条语句完成，FOR UPDATE SKIP LOCKED 保证多个 dispatcher 实例不会重复认领。
// 投递失败时由 Release 归还重试。
func (r *postgresNotificationsRepo) ClaimPending(ctx context.Context, limit int) ([]*domain.NotificationIntent, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE notification_outbox
		 SET dispatched_at = NOW()
		 WHERE id IN (
		     SELECT id FROM notification_outbox
		     WHERE dispatched_at IS NULL
		     ORDER BY created_at ASC
		     LIMIT $1
		     FOR UPDATE SKIP LOCKED)
		 RETURNING id, user_id, type, title, message, work_order_id, sent_by_id, created_at`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending intents: %w", err)
	}
	defer rows.Close()

	var intents []*domain.NotificationIntent
	for rows.Next() {
		var i domain.NotificationIntent
		err := rows.Scan(&i.ID, &i.UserID, &i.Type, &i.Title, &i.Message,
			&i.WorkOrderID, &i.SentByID, &i.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intent: %w", err)
		}
		intents = append(intents, &i)
	}
	return intents, rows.Err()
}

// Release 把认领失败的 outbox 行归还队列，下个 tick 重试
func (r *postgresNotificationsRepo) Release(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE notification_outbox SET dispatched_at = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to release intent: %w", err)
	}
	return nil
}
