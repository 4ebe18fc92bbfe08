package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fieldops-data/internal/domain"

	"go.uber.org/zap"
)

// WorkOrderFilters 工单列表过滤条件
type WorkOrderFilters struct {
	Status         *domain.Status
	Priority       *domain.Priority
	AssignedToID   string
	CreatedByID    string
	Search         string // title, description, location（模糊匹配）
	DeadlineBefore *time.Time
	DeadlineAfter  *time.Time
}

// WorkOrderStats 工单统计（/work-orders/stats）
type WorkOrderStats struct {
	ByStatus        map[domain.Status]int
	ByPriority      map[domain.Priority]int
	NearingDeadline int // 24h 内到期且未完成
	RecentOrders    []*domain.WorkOrder
}

// WorkOrdersRepository 工单仓库接口
// UpdateStatus 在单个事务中完成状态更新 + 历史记录 + outbox 意图（both-or-neither）
type WorkOrdersRepository interface {
	Get(ctx context.Context, id string) (*domain.WorkOrder, error)
	GetWithHistory(ctx context.Context, id string) (*domain.WorkOrder, []*domain.StatusHistoryEntry, error)
	List(ctx context.Context, filters WorkOrderFilters, page, limit int) ([]*domain.WorkOrder, int, error)
	Create(ctx context.Context, order *domain.WorkOrder, historyNote string, intent *domain.NotificationIntent) (string, error)
	Update(ctx context.Context, order *domain.WorkOrder, intent *domain.NotificationIntent) error
	UpdateStatus(ctx context.Context, id string, oldStatus, newStatus domain.Status, note string, intent *domain.NotificationIntent) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*WorkOrderStats, error)
}

type postgresWorkOrdersRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresWorkOrdersRepo 创建工单仓库
func NewPostgresWorkOrdersRepo(db *sql.DB, logger *zap.Logger) WorkOrdersRepository {
	return &postgresWorkOrdersRepo{db: db, logger: logger}
}

// 工单 + 创建人/指派人摘要（LEFT JOIN assignee，可能为空）
const workOrderSelect = `
	SELECT w.id, w.title, w.description, w.location, w.latitude, w.longitude,
	       w.priority, w.status, w.deadline, w.resources,
	       w.created_by_id, w.assigned_to_id, w.completed_at, w.created_at, w.updated_at,
	       cu.first_name, cu.last_name, cu.email,
	       au.id, au.first_name, au.last_name, au.email
	FROM work_orders w
	JOIN users cu ON cu.id = w.created_by_id
	LEFT JOIN users au ON au.id = w.assigned_to_id`

func scanWorkOrder(row interface{ Scan(...any) error }) (*domain.WorkOrder, error) {
	var w domain.WorkOrder
	var creatorFirst, creatorLast, creatorEmail string
	var assigneeID, assigneeFirst, assigneeLast, assigneeEmail sql.NullString

	err := row.Scan(
		&w.ID, &w.Title, &w.Description, &w.Location, &w.Latitude, &w.Longitude,
		&w.Priority, &w.Status, &w.Deadline, &w.Resources,
		&w.CreatedByID, &w.AssignedToID, &w.CompletedAt, &w.CreatedAt, &w.UpdatedAt,
		&creatorFirst, &creatorLast, &creatorEmail,
		&assigneeID, &assigneeFirst, &assigneeLast, &assigneeEmail,
	)
	if err != nil {
		return nil, err
	}

	w.CreatedBy = &domain.UserRef{ID: w.CreatedByID, FirstName: creatorFirst, LastName: creatorLast, Email: creatorEmail}
	if assigneeID.Valid {
		w.AssignedTo = &domain.UserRef{
			ID:        assigneeID.String,
			FirstName: assigneeFirst.String,
			LastName:  assigneeLast.String,
			Email:     assigneeEmail.String,
		}
	}
	return &w, nil
}

func (r *postgresWorkOrdersRepo) Get(ctx context.Context, id string) (*domain.WorkOrder, error) {
	row := r.db.QueryRowContext(ctx, workOrderSelect+` WHERE w.id = $1`, id)
	w, err := scanWorkOrder(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound("work order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work order: %w", err)
	}
	return w, nil
}

func (r *postgresWorkOrdersRepo) GetWithHistory(ctx context.Context, id string) (*domain.WorkOrder, []*domain.StatusHistoryEntry, error) {
	order, err := r.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, work_order_id, old_status, new_status, note, created_at
		 FROM status_history
		 WHERE work_order_id = $1
		 ORDER BY created_at DESC`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get status history: %w", err)
	}
	defer rows.Close()

	var history []*domain.StatusHistoryEntry
	for rows.Next() {
		var h domain.StatusHistoryEntry
		if err := rows.Scan(&h.ID, &h.WorkOrderID, &h.OldStatus, &h.NewStatus, &h.Note, &h.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		history = append(history, &h)
	}
	return order, history, rows.Err()
}

func buildWorkOrderConds(filters WorkOrderFilters) ([]string, []any) {
	var conds []string
	var args []any

	if filters.Status != nil {
		args = append(args, string(*filters.Status))
		conds = append(conds, fmt.Sprintf("w.status = $%d", len(args)))
	}
	if filters.Priority != nil {
		args = append(args, string(*filters.Priority))
		conds = append(conds, fmt.Sprintf("w.priority = $%d", len(args)))
	}
	if filters.AssignedToID != "" {
		args = append(args, filters.AssignedToID)
		conds = append(conds, fmt.Sprintf("w.assigned_to_id = $%d", len(args)))
	}
	if filters.CreatedByID != "" {
		args = append(args, filters.CreatedByID)
		conds = append(conds, fmt.Sprintf("w.created_by_id = $%d", len(args)))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		idx := len(args)
		conds = append(conds, fmt.Sprintf("(w.title ILIKE $%d OR w.description ILIKE $%d OR w.location ILIKE $%d)", idx, idx, idx))
	}
	if filters.DeadlineBefore != nil {
		args = append(args, *filters.DeadlineBefore)
		conds = append(conds, fmt.Sprintf("w.deadline <= $%d", len(args)))
	}
	if filters.DeadlineAfter != nil {
		args = append(args, *filters.DeadlineAfter)
		conds = append(conds, fmt.Sprintf("w.deadline >= $%d", len(args)))
	}
	return conds, args
}

func (r *postgresWorkOrdersRepo) List(ctx context.Context, filters WorkOrderFilters, page, limit int) ([]*domain.WorkOrder, int, error) {
	conds, args := buildWorkOrderConds(filters)

	where := ""
	for i, c := range conds {
		if i == 0 {
			where = " WHERE " + c
		} else {
			where += " AND " + c
		}
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM work_orders w` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count work orders: %w", err)
	}

	// 紧急优先、临近 deadline 优先、新创建优先
	query := workOrderSelect + where + `
	ORDER BY CASE w.priority
	           WHEN 'URGENT' THEN 4
	           WHEN 'HIGH' THEN 3
	           WHEN 'MEDIUM' THEN 2
	           ELSE 1
	         END DESC,
	         w.deadline ASC,
	         w.created_at DESC`

	args = append(args, limit, (page-1)*limit)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list work orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.WorkOrder
	for rows.Next() {
		w, err := scanWorkOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan work order: %w", err)
		}
		orders = append(orders, w)
	}
	return orders, total, rows.Err()
}

func (r *postgresWorkOrdersRepo) Create(ctx context.Context, order *domain.WorkOrder, historyNote string, intent *domain.NotificationIntent) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx,
		`INSERT INTO work_orders
		   (title, description, location, latitude, longitude, priority, status, deadline, resources, created_by_id, assigned_to_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		order.Title, order.Description, order.Location, order.Latitude, order.Longitude,
		string(order.Priority), string(domain.StatusNew), order.Deadline, order.Resources,
		order.CreatedByID, order.AssignedToID,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert work order: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO status_history (work_order_id, old_status, new_status, note)
		 VALUES ($1, NULL, $2, $3)`,
		id, string(domain.StatusNew), historyNote)
	if err != nil {
		return "", fmt.Errorf("failed to insert status history: %w", err)
	}

	if intent != nil {
		intent.WorkOrderID = sql.NullString{String: id, Valid: true}
		if err := enqueueIntent(ctx, tx, intent); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit work order create: %w", err)
	}
	return id, nil
}

func (r *postgresWorkOrdersRepo) Update(ctx context.Context, order *domain.WorkOrder, intent *domain.NotificationIntent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	// WHERE status <> COMPLETED：终态工单在并发下也改不动
	res, err := tx.ExecContext(ctx,
		`UPDATE work_orders
		 SET title = $2, description = $3, location = $4, latitude = $5, longitude = $6,
		     priority = $7, deadline = $8, resources = $9, assigned_to_id = $10, updated_at = NOW()
		 WHERE id = $1 AND status <> $11`,
		order.ID, order.Title, order.Description, order.Location, order.Latitude, order.Longitude,
		string(order.Priority), order.Deadline, order.Resources, order.AssignedToID,
		string(domain.StatusCompleted),
	)
	if err != nil {
		return fmt.Errorf("failed to update work order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrBadRequest("completed work orders cannot be modified")
	}

	if intent != nil {
		if err := enqueueIntent(ctx, tx, intent); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit work order update: %w", err)
	}
	return nil
}

func (r *postgresWorkOrdersRepo) UpdateStatus(ctx context.Context, id string, oldStatus, newStatus domain.Status, note string, intent *domain.NotificationIntent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	// WHERE status = oldStatus 防止并发下的双重转移
	res, err := tx.ExecContext(ctx,
		`UPDATE work_orders
		 SET status = $2,
		     completed_at = CASE WHEN $3 THEN NOW() ELSE completed_at END,
		     updated_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, string(newStatus), newStatus == domain.StatusCompleted, string(oldStatus),
	)
	if err != nil {
		return fmt.Errorf("failed to update work order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrBadRequest("work order status changed concurrently, please retry")
	}

	var noteArg sql.NullString
	if note != "" {
		noteArg = sql.NullString{String: note, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO status_history (work_order_id, old_status, new_status, note)
		 VALUES ($1, $2, $3, $4)`,
		id, string(oldStatus), string(newStatus), noteArg)
	if err != nil {
		return fmt.Errorf("failed to insert status history: %w", err)
	}

	if intent != nil {
		if err := enqueueIntent(ctx, tx, intent); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}
	return nil
}

func (r *postgresWorkOrdersRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM work_orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete work order: %w", err)
	}
	return requireRowAffected(res, "work order not found")
}

func (r *postgresWorkOrdersRepo) Stats(ctx context.Context) (*WorkOrderStats, error) {
	stats := &WorkOrderStats{
		ByStatus:   make(map[domain.Status]int),
		ByPriority: make(map[domain.Priority]int),
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM work_orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByStatus[domain.Status(s)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.QueryContext(ctx, `SELECT priority, COUNT(*) FROM work_orders GROUP BY priority`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by priority: %w", err)
	}
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByPriority[domain.Priority(p)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*)
		 FROM work_orders
		 WHERE deadline >= NOW() AND deadline <= NOW() + INTERVAL '24 hours'
		   AND status <> $1`,
		string(domain.StatusCompleted),
	).Scan(&stats.NearingDeadline)
	if err != nil {
		return nil, fmt.Errorf("failed to count nearing deadline: %w", err)
	}

	recentRows, err := r.db.QueryContext(ctx, workOrderSelect+` ORDER BY w.created_at DESC LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent orders: %w", err)
	}
	defer recentRows.Close()
	for recentRows.Next() {
		w, err := scanWorkOrder(recentRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recent order: %w", err)
		}
		stats.RecentOrders = append(stats.RecentOrders, w)
	}
	return stats, recentRows.Err()
}
