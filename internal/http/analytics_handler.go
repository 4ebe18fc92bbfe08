package httpapi

import (
	"fmt"
	"net/http"

	"fieldops-data/internal/service"

	"go.uber.org/zap"
)

// AnalyticsHandler 分析与导出接口
type AnalyticsHandler struct {
	analytics service.AnalyticsService
	export    service.ExportService
	logger    *zap.Logger
}

// NewAnalyticsHandler 创建 AnalyticsHandler
func NewAnalyticsHandler(analytics service.AnalyticsService, export service.ExportService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, export: export, logger: logger}
}

// Dashboard GET /api/analytics/dashboard?startDate=&endDate=
func (h *AnalyticsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	resp, err := h.analytics.Dashboard(r.Context(), actorFrom(r), service.DashboardRequest{
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

// Workers GET /api/analytics/workers
func (h *AnalyticsHandler) Workers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resp, err := h.analytics.Workers(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

// Trends GET /api/analytics/trends?months=
func (h *AnalyticsHandler) Trends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	months := parseInt(r.URL.Query().Get("months"), 0)
	resp, err := h.analytics.Trends(r.Context(), actorFrom(r), months)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

// Export GET /api/analytics/export?type=work-orders|workers&format=csv|xlsx
// 成功时直接返回文件而不是 JSON 包
func (h *AnalyticsHandler) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	exportType := q.Get("type")
	format := q.Get("format")
	if format == "" {
		format = "csv"
	}

	result, err := h.export.Export(r.Context(), actorFrom(r), exportType, format)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}
