package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/repository"
	"fieldops-data/internal/store"

	"go.uber.org/zap"
)

const (
	dashboardCacheKey = "analytics:dashboard"
	dashboardCacheTTL = 60 * time.Second
	defaultTrendSpan  = 6
	maxTrendSpan      = 24
)

// AnalyticsService 分析服务接口（ADMIN + MANAGER）
type AnalyticsService interface {
	Dashboard(ctx context.Context, actor Actor, req DashboardRequest) (*DashboardResponse, error)
	Workers(ctx context.Context, actor Actor) ([]*WorkerAnalyticsResponse, error)
	Trends(ctx context.Context, actor Actor, months int) ([]*TrendResponse, error)
}

type analyticsService struct {
	analyticsRepo repository.AnalyticsRepository
	cache         store.KV
	logger        *zap.Logger
}

// NewAnalyticsService 创建 AnalyticsService 实例
func NewAnalyticsService(analyticsRepo repository.AnalyticsRepository, cache store.KV, logger *zap.Logger) AnalyticsService {
	return &analyticsService{analyticsRepo: analyticsRepo, cache: cache, logger: logger}
}

// DashboardRequest 仪表盘请求（可选时间范围）
type DashboardRequest struct {
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
}

// DashboardResponse 仪表盘响应
type DashboardResponse struct {
	Total          int                     `json:"total"`
	Active         int                     `json:"active"`
	Completed      int                     `json:"completed"`
	CompletionRate float64                 `json:"completionRate"` // percent, 1 decimal
	ByStatus       map[domain.Status]int   `json:"byStatus"`
	ByPriority     map[domain.Priority]int `json:"byPriority"`
}

// WorkerAnalyticsResponse 工人绩效响应
type WorkerAnalyticsResponse struct {
	ID                 string  `json:"id"`
	FirstName          string  `json:"firstName"`
	LastName           string  `json:"lastName"`
	Email              string  `json:"email"`
	AssignedCount      int     `json:"assignedCount"`
	CompletedCount     int     `json:"completedCount"`
	AvgCompletionHours float64 `json:"avgCompletionHours"`
	OnTimeRate         float64 `json:"onTimeRate"` // percent, 1 decimal
	HoursLogged        float64 `json:"hoursLogged"`
}

// TrendResponse 月度趋势
type TrendResponse struct {
	Month     string `json:"month"` // YYYY-MM
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func parseDateRange(req DashboardRequest) (*time.Time, *time.Time, error) {
	var start, end *time.Time
	if req.StartDate != "" {
		t, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return nil, nil, domain.ErrBadRequest("startDate must be in YYYY-MM-DD format")
		}
		start = &t
	}
	if req.EndDate != "" {
		t, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			return nil, nil, domain.ErrBadRequest("endDate must be in YYYY-MM-DD format")
		}
		// 含当天
		t = t.Add(24*time.Hour - time.Nanosecond)
		end = &t
	}
	return start, end, nil
}

func (s *analyticsService) Dashboard(ctx context.Context, actor Actor, req DashboardRequest) (*DashboardResponse, error) {
	if err := requireRole(actor, domain.RoleAdministrator, domain.RoleManager); err != nil {
		return nil, err
	}
	start, end, err := parseDateRange(req)
	if err != nil {
		return nil, err
	}

	// 无时间范围的全量仪表盘走短 TTL 缓存
	cacheable := start == nil && end == nil
	if cacheable {
		if cached, err := s.cache.Get(ctx, dashboardCacheKey); err == nil {
			var resp DashboardResponse
			if json.Unmarshal([]byte(cached), &resp) == nil {
				return &resp, nil
			}
		} else if err != store.ErrMiss {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
	}

	counts, err := s.analyticsRepo.Dashboard(ctx, start, end)
	if err != nil {
		return nil, err
	}

	resp := &DashboardResponse{
		Total:      counts.Total,
		Completed:  counts.Completed,
		Active:     counts.Total - counts.Completed,
		ByStatus:   counts.ByStatus,
		ByPriority: counts.ByPriority,
	}
	if counts.Total > 0 {
		resp.CompletionRate = round1(float64(counts.Completed) / float64(counts.Total) * 100)
	}

	if cacheable {
		if data, err := json.Marshal(resp); err == nil {
			if err := s.cache.Set(ctx, dashboardCacheKey, string(data), dashboardCacheTTL); err != nil {
				s.logger.Warn("dashboard cache write failed", zap.Error(err))
			}
		}
	}
	return resp, nil
}

func (s *analyticsService) Workers(ctx context.Context, actor Actor) ([]*WorkerAnalyticsResponse, error) {
	if err := requireRole(actor, domain.RoleAdministrator, domain.RoleManager); err != nil {
		return nil, err
	}
	perf, err := s.analyticsRepo.WorkerPerformance(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*WorkerAnalyticsResponse, 0, len(perf))
	for _, p := range perf {
		w := &WorkerAnalyticsResponse{
			ID:                 p.ID,
			FirstName:          p.FirstName,
			LastName:           p.LastName,
			Email:              p.Email,
			AssignedCount:      p.AssignedCount,
			CompletedCount:     p.CompletedCount,
			AvgCompletionHours: round1(p.AvgCompletionHours),
			HoursLogged:        round1(float64(p.MinutesLogged) / 60),
		}
		if p.CompletedCount > 0 {
			w.OnTimeRate = round1(float64(p.OnTimeCount) / float64(p.CompletedCount) * 100)
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *analyticsService) Trends(ctx context.Context, actor Actor, months int) ([]*TrendResponse, error) {
	if err := requireRole(actor, domain.RoleAdministrator, domain.RoleManager); err != nil {
		return nil, err
	}
	if months < 1 {
		months = defaultTrendSpan
	}
	if months > maxTrendSpan {
		return nil, domain.ErrBadRequest(fmt.Sprintf("months cannot exceed %d", maxTrendSpan))
	}

	trends, err := s.analyticsRepo.MonthlyTrends(ctx, months)
	if err != nil {
		return nil, err
	}
	out := make([]*TrendResponse, 0, len(trends))
	for _, t := range trends {
		out = append(out, &TrendResponse{Month: t.Month, Total: t.Total, Completed: t.Completed})
	}
	return out, nil
}
