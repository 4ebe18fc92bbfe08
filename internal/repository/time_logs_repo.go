package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fieldops-data/internal/domain"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// TimeLogsRepository 工时仓库接口
// FindOpenByUser 未找到时返回 (nil, nil)，不是 NotFound
type TimeLogsRepository interface {
	Get(ctx context.Context, id string) (*domain.TimeLog, error)
	FindOpenByUser(ctx context.Context, userID string) (*domain.TimeLog, error)
	ListByWorkOrder(ctx context.Context, workOrderID string) ([]*domain.TimeLog, error)
	Create(ctx context.Context, log *domain.TimeLog) (string, error)
	Stop(ctx context.Context, id string, endTime time.Time, duration int, note string) error
}

type postgresTimeLogsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresTimeLogsRepo 创建工时仓库
func NewPostgresTimeLogsRepo(db *sql.DB, logger *zap.Logger) TimeLogsRepository {
	return &postgresTimeLogsRepo{db: db, logger: logger}
}

const timeLogSelect = `
	SELECT t.id, t.work_order_id, t.user_id, t.start_time, t.end_time,
	       t.duration, t.note, t.is_manual_entry, t.created_at,
	       w.title, u.first_name, u.last_name, u.email
	FROM time_logs t
	JOIN work_orders w ON w.id = t.work_order_id
	JOIN users u ON u.id = t.user_id`

func scanTimeLog(row interface{ Scan(...any) error }) (*domain.TimeLog, error) {
	var t domain.TimeLog
	var first, last, email string
	err := row.Scan(
		&t.ID, &t.WorkOrderID, &t.UserID, &t.StartTime, &t.EndTime,
		&t.Duration, &t.Note, &t.IsManualEntry, &t.CreatedAt,
		&t.WorkOrderTitle, &first, &last, &email,
	)
	if err != nil {
		return nil, err
	}
	t.User = &domain.UserRef{ID: t.UserID, FirstName: first, LastName: last, Email: email}
	return &t, nil
}

func (r *postgresTimeLogsRepo) Get(ctx context.Context, id string) (*domain.TimeLog, error) {
	row := r.db.QueryRowContext(ctx, timeLogSelect+` WHERE t.id = $1`, id)
	t, err := scanTimeLog(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound("time log not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get time log: %w", err)
	}
	return t, nil
}

func (r *postgresTimeLogsRepo) FindOpenByUser(ctx context.Context, userID string) (*domain.TimeLog, error) {
	row := r.db.QueryRowContext(ctx,
		timeLogSelect+` WHERE t.user_id = $1 AND t.end_time IS NULL`, userID)
	t, err := scanTimeLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open time log: %w", err)
	}
	return t, nil
}

func (r *postgresTimeLogsRepo) ListByWorkOrder(ctx context.Context, workOrderID string) ([]*domain.TimeLog, error) {
	rows, err := r.db.QueryContext(ctx,
		timeLogSelect+` WHERE t.work_order_id = $1 ORDER BY t.start_time DESC`,
		workOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list time logs: %w", err)
	}
	defer rows.Close()

	var logs []*domain.TimeLog
	for rows.Next() {
		t, err := scanTimeLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time log: %w", err)
		}
		logs = append(logs, t)
	}
	return logs, rows.Err()
}

func (r *postgresTimeLogsRepo) Create(ctx context.Context, log *domain.TimeLog) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO time_logs (work_order_id, user_id, start_time, end_time, duration, note, is_manual_entry)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		log.WorkOrderID, log.UserID, log.StartTime, log.EndTime,
		log.Duration, log.Note, log.IsManualEntry,
	).Scan(&id)
	if err != nil {
		// 并发下 pre-check 可能漏判，由部分唯一索引兜底
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" && pqErr.Constraint == "time_logs_one_open_timer_per_user" {
			return "", domain.ErrBadRequest("you already have an active timer")
		}
		return "", fmt.Errorf("failed to create time log: %w", err)
	}
	return id, nil
}

func (r *postgresTimeLogsRepo) Stop(ctx context.Context, id string, endTime time.Time, duration int, note string) error {
	var noteArg sql.NullString
	if note != "" {
		noteArg = sql.NullString{String: note, Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE time_logs
		 SET end_time = $2, duration = $3, note = COALESCE($4, note)
		 WHERE id = $1 AND end_time IS NULL`,
		id, endTime, duration, noteArg)
	if err != nil {
		return fmt.Errorf("failed to stop time log: %w", err)
	}
	return requireRowAffected(res, "active time log not found")
}
