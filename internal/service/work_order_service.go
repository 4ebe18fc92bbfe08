package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/repository"

	"go.uber.org/zap"
)

// WorkOrderService 工单服务接口
// 状态机、权限矩阵、指派通知都在这一层收口
type WorkOrderService interface {
	List(ctx context.Context, actor Actor, req ListWorkOrdersRequest) (*ListWorkOrdersResponse, error)
	ListMine(ctx context.Context, actor Actor, req ListWorkOrdersRequest) (*ListWorkOrdersResponse, error)
	Get(ctx context.Context, actor Actor, id string) (*WorkOrderDetailResponse, error)
	Create(ctx context.Context, actor Actor, req CreateWorkOrderRequest) (*WorkOrderDetailResponse, error)
	Update(ctx context.Context, actor Actor, id string, req UpdateWorkOrderRequest) (*WorkOrderDetailResponse, error)
	ChangeStatus(ctx context.Context, actor Actor, id string, req ChangeStatusRequest) (*WorkOrderDetailResponse, error)
	Delete(ctx context.Context, actor Actor, id string) error
	Stats(ctx context.Context, actor Actor) (*WorkOrderStatsResponse, error)
}

type workOrderService struct {
	ordersRepo repository.WorkOrdersRepository
	usersRepo  repository.UsersRepository
	logger     *zap.Logger
}

// NewWorkOrderService 创建 WorkOrderService 实例
func NewWorkOrderService(ordersRepo repository.WorkOrdersRepository, usersRepo repository.UsersRepository, logger *zap.Logger) WorkOrderService {
	return &workOrderService{ordersRepo: ordersRepo, usersRepo: usersRepo, logger: logger}
}

// ListWorkOrdersRequest 工单列表请求
type ListWorkOrdersRequest struct {
	Status   string
	Priority string
	Search   string
	Page     int
	Limit    int
}

// ListWorkOrdersResponse 分页工单列表
type ListWorkOrdersResponse struct {
	WorkOrders []*WorkOrderResponse `json:"workOrders"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	Limit      int                  `json:"limit"`
	TotalPages int                  `json:"totalPages"`
}

// CreateWorkOrderRequest 创建工单请求
type CreateWorkOrderRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Location     string   `json:"location"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Priority     string   `json:"priority"`
	Deadline     string   `json:"deadline"` // RFC 3339
	Resources    string   `json:"resources"`
	AssignedToID string   `json:"assignedToId"`
}

// UpdateWorkOrderRequest 更新工单请求（nil 字段不变）
// AssignedToID: nil 不变，"" 取消指派，其余为新指派
type UpdateWorkOrderRequest struct {
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	Location     *string  `json:"location"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Priority     *string  `json:"priority"`
	Deadline     *string  `json:"deadline"`
	Resources    *string  `json:"resources"`
	AssignedToID *string  `json:"assignedToId"`
}

// ChangeStatusRequest 状态转移请求
type ChangeStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

// WorkOrderResponse 工单摘要响应
type WorkOrderResponse struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	Latitude    *float64        `json:"latitude,omitempty"`
	Longitude   *float64        `json:"longitude,omitempty"`
	Priority    domain.Priority `json:"priority"`
	Status      domain.Status   `json:"status"`
	Deadline    time.Time       `json:"deadline"`
	Resources   string          `json:"resources,omitempty"`
	CreatedBy   *domain.UserRef `json:"createdBy"`
	AssignedTo  *domain.UserRef `json:"assignedTo,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// StatusHistoryResponse 状态历史条目
type StatusHistoryResponse struct {
	ID        string        `json:"id"`
	OldStatus *string       `json:"oldStatus"` // 创建条目为 null
	NewStatus domain.Status `json:"newStatus"`
	Note      string        `json:"note,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// WorkOrderDetailResponse 工单详情（含状态历史）
type WorkOrderDetailResponse struct {
	WorkOrderResponse
	StatusHistory []*StatusHistoryResponse `json:"statusHistory,omitempty"`
}

// WorkOrderStatsResponse 工单统计
type WorkOrderStatsResponse struct {
	ByStatus        map[domain.Status]int   `json:"byStatus"`
	ByPriority      map[domain.Priority]int `json:"byPriority"`
	NearingDeadline int                     `json:"nearingDeadline"`
	RecentOrders    []*WorkOrderResponse    `json:"recentOrders"`
}

func toWorkOrderResponse(w *domain.WorkOrder) *WorkOrderResponse {
	resp := &WorkOrderResponse{
		ID:          w.ID,
		Title:       w.Title,
		Description: w.Description,
		Location:    w.Location,
		Priority:    w.Priority,
		Status:      w.Status,
		Deadline:    w.Deadline,
		Resources:   w.Resources.String,
		CreatedBy:   w.CreatedBy,
		AssignedTo:  w.AssignedTo,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
	if w.Latitude.Valid {
		resp.Latitude = &w.Latitude.Float64
	}
	if w.Longitude.Valid {
		resp.Longitude = &w.Longitude.Float64
	}
	if w.CompletedAt.Valid {
		t := w.CompletedAt.Time
		resp.CompletedAt = &t
	}
	return resp
}

func toDetailResponse(w *domain.WorkOrder, history []*domain.StatusHistoryEntry) *WorkOrderDetailResponse {
	detail := &WorkOrderDetailResponse{WorkOrderResponse: *toWorkOrderResponse(w)}
	for _, h := range history {
		entry := &StatusHistoryResponse{
			ID:        h.ID,
			NewStatus: h.NewStatus,
			Note:      h.Note.String,
			CreatedAt: h.CreatedAt,
		}
		if h.OldStatus.Valid {
			s := h.OldStatus.String
			entry.OldStatus = &s
		}
		detail.StatusHistory = append(detail.StatusHistory, entry)
	}
	return detail
}

// normalizePage 默认 page=1 limit=10，limit 上限 100
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func buildFilters(req ListWorkOrdersRequest) (repository.WorkOrderFilters, error) {
	filters := repository.WorkOrderFilters{Search: strings.TrimSpace(req.Search)}
	if req.Status != "" {
		status, ok := domain.ParseStatus(req.Status)
		if !ok {
			return filters, domain.ErrBadRequest("invalid status: " + req.Status)
		}
		filters.Status = &status
	}
	if req.Priority != "" {
		priority, ok := domain.ParsePriority(req.Priority)
		if !ok {
			return filters, domain.ErrBadRequest("invalid priority: " + req.Priority)
		}
		filters.Priority = &priority
	}
	return filters, nil
}

func (s *workOrderService) list(ctx context.Context, filters repository.WorkOrderFilters, page, limit int) (*ListWorkOrdersResponse, error) {
	page, limit = normalizePage(page, limit)
	orders, total, err := s.ordersRepo.List(ctx, filters, page, limit)
	if err != nil {
		return nil, err
	}
	resp := &ListWorkOrdersResponse{
		WorkOrders: make([]*WorkOrderResponse, 0, len(orders)),
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}
	for _, w := range orders {
		resp.WorkOrders = append(resp.WorkOrders, toWorkOrderResponse(w))
	}
	return resp, nil
}

func (s *workOrderService) List(ctx context.Context, actor Actor, req ListWorkOrdersRequest) (*ListWorkOrdersResponse, error) {
	filters, err := buildFilters(req)
	if err != nil {
		return nil, err
	}
	// 所有角色都可浏览全部工单；/my 提供按指派过滤的视图
	return s.list(ctx, filters, req.Page, req.Limit)
}

func (s *workOrderService) ListMine(ctx context.Context, actor Actor, req ListWorkOrdersRequest) (*ListWorkOrdersResponse, error) {
	filters, err := buildFilters(req)
	if err != nil {
		return nil, err
	}
	filters.AssignedToID = actor.ID
	return s.list(ctx, filters, req.Page, req.Limit)
}

func (s *workOrderService) Get(ctx context.Context, actor Actor, id string) (*WorkOrderDetailResponse, error) {
	order, history, err := s.ordersRepo.GetWithHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDetailResponse(order, history), nil
}

// validateAssignee 指派对象必须存在且在职
func (s *workOrderService) validateAssignee(ctx context.Context, assigneeID string) (*domain.User, error) {
	assignee, err := s.usersRepo.Get(ctx, assigneeID)
	if err != nil {
		if domain.StatusOf(err) == 404 {
			return nil, domain.ErrBadRequest("assigned user not found")
		}
		return nil, err
	}
	if !assignee.IsActive {
		return nil, domain.ErrBadRequest("cannot assign work order to a deactivated user")
	}
	return assignee, nil
}

func validateCoordinates(lat, lng *float64) error {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return domain.ErrBadRequest("latitude must be between -90 and 90")
	}
	if lng != nil && (*lng < -180 || *lng > 180) {
		return domain.ErrBadRequest("longitude must be between -180 and 180")
	}
	return nil
}

func parseDeadline(s string) (time.Time, error) {
	deadline, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, domain.ErrBadRequest("deadline must be a valid RFC 3339 timestamp")
	}
	return deadline, nil
}

func assignmentIntent(orderID, orderTitle, assigneeID, actorID string) *domain.NotificationIntent {
	return &domain.NotificationIntent{
		UserID:      assigneeID,
		Type:        domain.NotificationNewAssignment,
		Title:       "New Work Order Assignment",
		Message:     "You have been assigned to: " + orderTitle,
		WorkOrderID: sql.NullString{String: orderID, Valid: orderID != ""},
		SentByID:    sql.NullString{String: actorID, Valid: true},
	}
}

func (s *workOrderService) Create(ctx context.Context, actor Actor, req CreateWorkOrderRequest) (*WorkOrderDetailResponse, error) {
	// 1. 权限：WORKER 不能创建
	if !actor.Role.Allows(domain.ActionCreate) {
		return nil, domain.ErrForbidden("you do not have permission to create work orders")
	}

	// 2. 参数验证
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || req.Description == "" || req.Location == "" || req.Deadline == "" {
		return nil, domain.ErrBadRequest("title, description, location and deadline are required")
	}
	if err := validateCoordinates(req.Latitude, req.Longitude); err != nil {
		return nil, err
	}
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		return nil, err
	}
	priority := domain.PriorityMedium
	if req.Priority != "" {
		p, ok := domain.ParsePriority(req.Priority)
		if !ok {
			return nil, domain.ErrBadRequest("invalid priority: " + req.Priority)
		}
		priority = p
	}

	order := &domain.WorkOrder{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Priority:    priority,
		Deadline:    deadline,
		Resources:   nullString(req.Resources),
		CreatedByID: actor.ID,
	}
	if req.Latitude != nil {
		order.Latitude = sql.NullFloat64{Float64: *req.Latitude, Valid: true}
	}
	if req.Longitude != nil {
		order.Longitude = sql.NullFloat64{Float64: *req.Longitude, Valid: true}
	}

	// 3. 指派校验 + 指派通知意图（与插入同事务）
	var intent *domain.NotificationIntent
	if req.AssignedToID != "" {
		if _, err := s.validateAssignee(ctx, req.AssignedToID); err != nil {
			return nil, err
		}
		order.AssignedToID = sql.NullString{String: req.AssignedToID, Valid: true}
		intent = assignmentIntent("", req.Title, req.AssignedToID, actor.ID)
	}

	id, err := s.ordersRepo.Create(ctx, order, "Work order created", intent)
	if err != nil {
		return nil, err
	}

	s.logger.Info("work order created",
		zap.String("work_order_id", id),
		zap.String("created_by", actor.ID),
		zap.String("priority", string(priority)))

	return s.Get(ctx, actor, id)
}

func (s *workOrderService) Update(ctx context.Context, actor Actor, id string, req UpdateWorkOrderRequest) (*WorkOrderDetailResponse, error) {
	// 1. 存在性先于权限（NotFound 优先）
	order, err := s.ordersRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckWorkOrderAction(actor.Role, actor.ID, domain.ActionUpdate, order); err != nil {
		return nil, err
	}
	// COMPLETED 是终态，任何角色都不能再修改
	if order.Status == domain.StatusCompleted {
		return nil, domain.ErrBadRequest("completed work orders cannot be modified")
	}

	// 2. 合并字段
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, domain.ErrBadRequest("title cannot be empty")
		}
		order.Title = title
	}
	if req.Description != nil {
		order.Description = *req.Description
	}
	if req.Location != nil {
		order.Location = *req.Location
	}
	if err := validateCoordinates(req.Latitude, req.Longitude); err != nil {
		return nil, err
	}
	if req.Latitude != nil {
		order.Latitude = sql.NullFloat64{Float64: *req.Latitude, Valid: true}
	}
	if req.Longitude != nil {
		order.Longitude = sql.NullFloat64{Float64: *req.Longitude, Valid: true}
	}
	if req.Priority != nil {
		p, ok := domain.ParsePriority(*req.Priority)
		if !ok {
			return nil, domain.ErrBadRequest("invalid priority: " + *req.Priority)
		}
		order.Priority = p
	}
	if req.Deadline != nil {
		deadline, err := parseDeadline(*req.Deadline)
		if err != nil {
			return nil, err
		}
		order.Deadline = deadline
	}
	if req.Resources != nil {
		order.Resources = nullString(*req.Resources)
	}

	// 3. 指派变更：仅 ADMIN/MANAGER；新指派产生 NEW_ASSIGNMENT（取消指派不通知）
	var intent *domain.NotificationIntent
	if req.AssignedToID != nil {
		if actor.Role == domain.RoleWorker {
			return nil, domain.ErrForbidden("workers cannot change work order assignment")
		}
		newAssignee := *req.AssignedToID
		if newAssignee == "" {
			order.AssignedToID = sql.NullString{}
		} else if !order.AssignedToID.Valid || order.AssignedToID.String != newAssignee {
			if _, err := s.validateAssignee(ctx, newAssignee); err != nil {
				return nil, err
			}
			order.AssignedToID = sql.NullString{String: newAssignee, Valid: true}
			intent = assignmentIntent(order.ID, order.Title, newAssignee, actor.ID)
		}
	}

	if err := s.ordersRepo.Update(ctx, order, intent); err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, id)
}

func (s *workOrderService) ChangeStatus(ctx context.Context, actor Actor, id string, req ChangeStatusRequest) (*WorkOrderDetailResponse, error) {
	newStatus, ok := domain.ParseStatus(req.Status)
	if !ok {
		return nil, domain.ErrBadRequest("invalid status: " + req.Status)
	}

	// 检查顺序：存在性 → 权限 → 状态机
	order, err := s.ordersRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckWorkOrderAction(actor.Role, actor.ID, domain.ActionChangeStatus, order); err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(newStatus) {
		return nil, domain.ErrBadRequest(fmt.Sprintf("cannot transition from %s to %s", order.Status, newStatus))
	}

	// 状态变更通知发给创建者（操作者本人除外）
	var intent *domain.NotificationIntent
	if order.CreatedByID != actor.ID {
		intent = &domain.NotificationIntent{
			UserID:      order.CreatedByID,
			Type:        domain.NotificationStatusChange,
			Title:       "Work Order Status Updated",
			Message:     fmt.Sprintf("%s status changed from %s to %s", order.Title, order.Status, newStatus),
			WorkOrderID: sql.NullString{String: id, Valid: true},
			SentByID:    sql.NullString{String: actor.ID, Valid: true},
		}
	}

	if err := s.ordersRepo.UpdateStatus(ctx, id, order.Status, newStatus, req.Note, intent); err != nil {
		return nil, err
	}

	s.logger.Info("work order status changed",
		zap.String("work_order_id", id),
		zap.String("old_status", string(order.Status)),
		zap.String("new_status", string(newStatus)),
		zap.String("changed_by", actor.ID))

	return s.Get(ctx, actor, id)
}

func (s *workOrderService) Delete(ctx context.Context, actor Actor, id string) error {
	order, err := s.ordersRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := domain.CheckWorkOrderAction(actor.Role, actor.ID, domain.ActionDelete, order); err != nil {
		return err
	}
	if err := s.ordersRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("work order deleted",
		zap.String("work_order_id", id),
		zap.String("deleted_by", actor.ID))
	return nil
}

func (s *workOrderService) Stats(ctx context.Context, actor Actor) (*WorkOrderStatsResponse, error) {
	if err := requireRole(actor, domain.RoleAdministrator, domain.RoleManager); err != nil {
		return nil, err
	}
	stats, err := s.ordersRepo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	resp := &WorkOrderStatsResponse{
		ByStatus:        stats.ByStatus,
		ByPriority:      stats.ByPriority,
		NearingDeadline: stats.NearingDeadline,
		RecentOrders:    make([]*WorkOrderResponse, 0, len(stats.RecentOrders)),
	}
	for _, w := range stats.RecentOrders {
		resp.RecentOrders = append(resp.RecentOrders, toWorkOrderResponse(w))
	}
	return resp, nil
}
