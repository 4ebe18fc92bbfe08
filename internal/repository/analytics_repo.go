package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fieldops-data/internal/domain"

	"go.uber.org/zap"
)

// DashboardCounts 仪表盘聚合结果
type DashboardCounts struct {
	Total      int
	Completed  int
	ByStatus   map[domain.Status]int
	ByPriority map[domain.Priority]int
}

// WorkerPerformance 单个工人的绩效聚合
type WorkerPerformance struct {
	ID                 string
	FirstName          string
	LastName           string
	Email              string
	AssignedCount      int
	CompletedCount     int
	AvgCompletionHours float64 // 0 when nothing completed
	OnTimeCount        int     // completed_at <= deadline
	MinutesLogged      int64
}

// MonthlyTrend 按月统计（YYYY-MM）
type MonthlyTrend struct {
	Month     string
	Total     int
	Completed int
}

// ExportRow 工单导出行（扁平化、已 JOIN 人名）
type ExportRow struct {
	ID          string
	Title       string
	Status      string
	Priority    string
	Location    string
	Deadline    time.Time
	CreatedBy   string
	AssignedTo  string
	CompletedAt sql.NullTime
	CreatedAt   time.Time
}

// AnalyticsRepository 分析聚合仓库接口
type AnalyticsRepository interface {
	Dashboard(ctx context.Context, start, end *time.Time) (*DashboardCounts, error)
	WorkerPerformance(ctx context.Context) ([]*WorkerPerformance, error)
	MonthlyTrends(ctx context.Context, months int) ([]*MonthlyTrend, error)
	ExportWorkOrders(ctx context.Context) ([]*ExportRow, error)
}

type postgresAnalyticsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAnalyticsRepo 创建分析仓库
func NewPostgresAnalyticsRepo(db *sql.DB, logger *zap.Logger) AnalyticsRepository {
	return &postgresAnalyticsRepo{db: db, logger: logger}
}

func (r *postgresAnalyticsRepo) Dashboard(ctx context.Context, start, end *time.Time) (*DashboardCounts, error) {
	where := ""
	var args []any
	if start != nil {
		args = append(args, *start)
		where = fmt.Sprintf(" WHERE created_at >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		if where == "" {
			where = fmt.Sprintf(" WHERE created_at <= $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND created_at <= $%d", len(args))
		}
	}

	counts := &DashboardCounts{
		ByStatus:   make(map[domain.Status]int),
		ByPriority: make(map[domain.Priority]int),
	}

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'COMPLETED') FROM work_orders`+where,
		args...).Scan(&counts.Total, &counts.Completed)
	if err != nil {
		return nil, fmt.Errorf("failed to count dashboard totals: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM work_orders`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count dashboard by status: %w", err)
	}
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			rows.Close()
			return nil, err
		}
		counts.ByStatus[domain.Status(s)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.QueryContext(ctx,
		`SELECT priority, COUNT(*) FROM work_orders`+where+` GROUP BY priority`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count dashboard by priority: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, err
		}
		counts.ByPriority[domain.Priority(p)] = n
	}
	return counts, rows.Err()
}

func (r *postgresAnalyticsRepo) WorkerPerformance(ctx context.Context) ([]*WorkerPerformance, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.first_name, u.last_name, u.email,
		        COUNT(w.id),
		        COUNT(w.id) FILTER (WHERE w.status = 'COMPLETED'),
		        COALESCE(AVG(EXTRACT(EPOCH FROM (w.completed_at - w.created_at)) / 3600.0)
		                 FILTER (WHERE w.completed_at IS NOT NULL), 0),
		        COUNT(w.id) FILTER (WHERE w.completed_at IS NOT NULL AND w.completed_at <= w.deadline),
		        COALESCE((SELECT SUM(t.duration) FROM time_logs t WHERE t.user_id = u.id AND t.duration IS NOT NULL), 0)
		 FROM users u
		 LEFT JOIN work_orders w ON w.assigned_to_id = u.id
		 WHERE u.role = $1 AND u.is_active = TRUE
		 GROUP BY u.id, u.first_name, u.last_name, u.email
		 ORDER BY COUNT(w.id) FILTER (WHERE w.status = 'COMPLETED') DESC`,
		string(domain.RoleWorker))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate worker performance: %w", err)
	}
	defer rows.Close()

	var perf []*WorkerPerformance
	for rows.Next() {
		var p WorkerPerformance
		err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email,
			&p.AssignedCount, &p.CompletedCount, &p.AvgCompletionHours,
			&p.OnTimeCount, &p.MinutesLogged)
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker performance: %w", err)
		}
		perf = append(perf, &p)
	}
	return perf, rows.Err()
}

func (r *postgresAnalyticsRepo) MonthlyTrends(ctx context.Context, months int) ([]*MonthlyTrend, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT to_char(date_trunc('month', created_at), 'YYYY-MM'),
		        COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'COMPLETED')
		 FROM work_orders
		 WHERE created_at >= date_trunc('month', NOW()) - ($1 - 1) * INTERVAL '1 month'
		 GROUP BY 1
		 ORDER BY 1 ASC`,
		months)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate monthly trends: %w", err)
	}
	defer rows.Close()

	byMonth := make(map[string]*MonthlyTrend)
	for rows.Next() {
		var t MonthlyTrend
		if err := rows.Scan(&t.Month, &t.Total, &t.Completed); err != nil {
			return nil, fmt.Errorf("failed to scan monthly trend: %w", err)
		}
		byMonth[t.Month] = &t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// 缺数据的月份补零，保证前端拿到连续序列
	// 锚定在月初再做月份算术，月末日期经 AddDate 会串月
	var trends []*MonthlyTrend
	now := time.Now()
	anchor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for i := months - 1; i >= 0; i-- {
		month := anchor.AddDate(0, -i, 0).Format("2006-01")
		if t, ok := byMonth[month]; ok {
			trends = append(trends, t)
		} else {
			trends = append(trends, &MonthlyTrend{Month: month})
		}
	}
	return trends, nil
}

func (r *postgresAnalyticsRepo) ExportWorkOrders(ctx context.Context) ([]*ExportRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT w.id, w.title, w.status, w.priority, w.location, w.deadline,
		        cu.first_name || ' ' || cu.last_name,
		        COALESCE(au.first_name || ' ' || au.last_name, ''),
		        w.completed_at, w.created_at
		 FROM work_orders w
		 JOIN users cu ON cu.id = w.created_by_id
		 LEFT JOIN users au ON au.id = w.assigned_to_id
		 ORDER BY w.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to export work orders: %w", err)
	}
	defer rows.Close()

	var export []*ExportRow
	for rows.Next() {
		var e ExportRow
		err := rows.Scan(&e.ID, &e.Title, &e.Status, &e.Priority, &e.Location,
			&e.Deadline, &e.CreatedBy, &e.AssignedTo, &e.CompletedAt, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export row: %w", err)
		}
		export = append(export, &e)
	}
	return export, rows.Err()
}
