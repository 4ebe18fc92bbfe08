package service

import (
	"context"
	"fmt"
	"time"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/repository"

	"go.uber.org/zap"
)

// TimeLogService 工时服务接口
// 不变量：一个用户同一时刻最多一个进行中的计时器
type TimeLogService interface {
	Start(ctx context.Context, actor Actor, req StartTimerRequest) (*TimeLogResponse, error)
	Stop(ctx context.Context, actor Actor, req StopTimerRequest) (*TimeLogResponse, error)
	Active(ctx context.Context, actor Actor) (*TimeLogResponse, error)
	ManualEntry(ctx context.Context, actor Actor, req ManualEntryRequest) (*TimeLogResponse, error)
	ListByWorkOrder(ctx context.Context, actor Actor, workOrderID string) (*WorkOrderTimeLogsResponse, error)
}

type timeLogService struct {
	logsRepo   repository.TimeLogsRepository
	ordersRepo repository.WorkOrdersRepository
	logger     *zap.Logger
}

// NewTimeLogService 创建 TimeLogService 实例
func NewTimeLogService(logsRepo repository.TimeLogsRepository, ordersRepo repository.WorkOrdersRepository, logger *zap.Logger) TimeLogService {
	return &timeLogService{logsRepo: logsRepo, ordersRepo: ordersRepo, logger: logger}
}

// StartTimerRequest 开始计时请求
type StartTimerRequest struct {
	WorkOrderID string `json:"workOrderId"`
}

// StopTimerRequest 结束计时请求
type StopTimerRequest struct {
	Note string `json:"note"`
}

// ManualEntryRequest 手工补录请求
type ManualEntryRequest struct {
	WorkOrderID string `json:"workOrderId"`
	StartTime   string `json:"startTime"` // RFC 3339
	EndTime     string `json:"endTime"`   // RFC 3339
	Note        string `json:"note"`
}

// TimeLogResponse 工时记录响应
type TimeLogResponse struct {
	ID             string          `json:"id"`
	WorkOrderID    string          `json:"workOrderId"`
	WorkOrderTitle string          `json:"workOrderTitle,omitempty"`
	User           *domain.UserRef `json:"user,omitempty"`
	StartTime      time.Time       `json:"startTime"`
	EndTime        *time.Time      `json:"endTime,omitempty"`
	Duration       *int64          `json:"duration,omitempty"` // minutes
	Note           string          `json:"note,omitempty"`
	IsManualEntry  bool            `json:"isManualEntry"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// WorkOrderTimeLogsResponse 工单工时列表 + 合计
type WorkOrderTimeLogsResponse struct {
	TimeLogs     []*TimeLogResponse `json:"timeLogs"`
	TotalMinutes int64              `json:"totalMinutes"`
}

func toTimeLogResponse(t *domain.TimeLog) *TimeLogResponse {
	resp := &TimeLogResponse{
		ID:             t.ID,
		WorkOrderID:    t.WorkOrderID,
		WorkOrderTitle: t.WorkOrderTitle,
		User:           t.User,
		StartTime:      t.StartTime,
		Note:           t.Note.String,
		IsManualEntry:  t.IsManualEntry,
		CreatedAt:      t.CreatedAt,
	}
	if t.EndTime.Valid {
		end := t.EndTime.Time
		resp.EndTime = &end
	}
	if t.Duration.Valid {
		d := t.Duration.Int64
		resp.Duration = &d
	}
	return resp
}

// checkWorkOrderAccess WORKER 只能为自己被指派的工单记录工时
func (s *timeLogService) checkWorkOrderAccess(ctx context.Context, actor Actor, workOrderID string) (*domain.WorkOrder, error) {
	order, err := s.ordersRepo.Get(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleWorker {
		if !order.AssignedToID.Valid || order.AssignedToID.String != actor.ID {
			return nil, domain.ErrForbidden("you can only log time on work orders assigned to you")
		}
	}
	return order, nil
}

func (s *timeLogService) Start(ctx context.Context, actor Actor, req StartTimerRequest) (*TimeLogResponse, error) {
	if req.WorkOrderID == "" {
		return nil, domain.ErrBadRequest("workOrderId is required")
	}

	// open-timer 检查先于工单检查；并发漏判由部分唯一索引兜底
	open, err := s.logsRepo.FindOpenByUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, domain.ErrBadRequest(
			fmt.Sprintf("you already have an active timer on work order: %s", open.WorkOrderTitle))
	}

	if _, err := s.checkWorkOrderAccess(ctx, actor, req.WorkOrderID); err != nil {
		return nil, err
	}

	id, err := s.logsRepo.Create(ctx, &domain.TimeLog{
		WorkOrderID: req.WorkOrderID,
		UserID:      actor.ID,
		StartTime:   time.Now(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("timer started",
		zap.String("time_log_id", id),
		zap.String("work_order_id", req.WorkOrderID),
		zap.String("user_id", actor.ID))

	created, err := s.logsRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return toTimeLogResponse(created), nil
}

func (s *timeLogService) Stop(ctx context.Context, actor Actor, req StopTimerRequest) (*TimeLogResponse, error) {
	open, err := s.logsRepo.FindOpenByUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return nil, domain.ErrNotFound("you have no active timer")
	}

	end := time.Now()
	duration := domain.DurationMinutes(open.StartTime, end)
	if err := s.logsRepo.Stop(ctx, open.ID, end, duration, req.Note); err != nil {
		return nil, err
	}

	s.logger.Info("timer stopped",
		zap.String("time_log_id", open.ID),
		zap.Int("duration_minutes", duration))

	stopped, err := s.logsRepo.Get(ctx, open.ID)
	if err != nil {
		return nil, err
	}
	return toTimeLogResponse(stopped), nil
}

func (s *timeLogService) Active(ctx context.Context, actor Actor) (*TimeLogResponse, error) {
	open, err := s.logsRepo.FindOpenByUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return nil, nil
	}
	return toTimeLogResponse(open), nil
}

func (s *timeLogService) ManualEntry(ctx context.Context, actor Actor, req ManualEntryRequest) (*TimeLogResponse, error) {
	// 1. 参数验证
	if req.WorkOrderID == "" || req.StartTime == "" || req.EndTime == "" {
		return nil, domain.ErrBadRequest("workOrderId, startTime and endTime are required")
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return nil, domain.ErrBadRequest("startTime must be a valid RFC 3339 timestamp")
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		return nil, domain.ErrBadRequest("endTime must be a valid RFC 3339 timestamp")
	}
	if !end.After(start) {
		return nil, domain.ErrBadRequest("endTime must be after startTime")
	}
	if end.After(time.Now()) {
		return nil, domain.ErrBadRequest("endTime cannot be in the future")
	}

	if _, err := s.checkWorkOrderAccess(ctx, actor, req.WorkOrderID); err != nil {
		return nil, err
	}

	// 2. 补录是闭区间记录，不触碰 open-timer 不变量
	duration := int64(domain.DurationMinutes(start, end))
	log := &domain.TimeLog{
		WorkOrderID:   req.WorkOrderID,
		UserID:        actor.ID,
		StartTime:     start,
		IsManualEntry: true,
		Note:          nullString(req.Note),
	}
	log.EndTime.Time, log.EndTime.Valid = end, true
	log.Duration.Int64, log.Duration.Valid = duration, true

	id, err := s.logsRepo.Create(ctx, log)
	if err != nil {
		return nil, err
	}
	created, err := s.logsRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return toTimeLogResponse(created), nil
}

func (s *timeLogService) ListByWorkOrder(ctx context.Context, actor Actor, workOrderID string) (*WorkOrderTimeLogsResponse, error) {
	if _, err := s.checkWorkOrderAccess(ctx, actor, workOrderID); err != nil {
		return nil, err
	}
	logs, err := s.logsRepo.ListByWorkOrder(ctx, workOrderID)
	if err != nil {
		return nil, err
	}

	resp := &WorkOrderTimeLogsResponse{TimeLogs: make([]*TimeLogResponse, 0, len(logs))}
	for _, l := range logs {
		resp.TimeLogs = append(resp.TimeLogs, toTimeLogResponse(l))
		if l.Duration.Valid {
			resp.TotalMinutes += l.Duration.Int64
		}
	}
	return resp, nil
}
