package httpapi

import (
	"net/http"
	"strings"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/service"

	"go.uber.org/zap"
)

// TimeLogHandler 工时接口
type TimeLogHandler struct {
	logs   service.TimeLogService
	logger *zap.Logger
}

// NewTimeLogHandler 创建 TimeLogHandler
func NewTimeLogHandler(logs service.TimeLogService, logger *zap.Logger) *TimeLogHandler {
	return &TimeLogHandler{logs: logs, logger: logger}
}

// Start POST /api/time-logs/start
func (h *TimeLogHandler) Start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req service.StartTimerRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeError(w, h.logger, domain.ErrBadRequest("invalid request body"))
		return
	}
	resp, err := h.logs.Start(r.Context(), actorFrom(r), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, resp)
}

// Stop POST /api/time-logs/stop
func (h *TimeLogHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req service.StopTimerRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeError(w, h.logger, domain.ErrBadRequest("invalid request body"))
		return
	}
	resp, err := h.logs.Stop(r.Context(), actorFrom(r), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

// Manual POST /api/time-logs/manual
func (h *TimeLogHandler) Manual(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req service.ManualEntryRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeError(w, h.logger, domain.ErrBadRequest("invalid request body"))
		return
	}
	resp, err := h.logs.ManualEntry(r.Context(), actorFrom(r), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, resp)
}

// Active GET /api/time-logs/active（无计时器时 data 为 null）
func (h *TimeLogHandler) Active(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resp, err := h.logs.Active(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

// ByWorkOrder GET /api/time-logs/work-order/{id}
func (h *TimeLogHandler) ByWorkOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/time-logs/work-order/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, h.logger, domain.ErrNotFound("not found"))
		return
	}
	resp, err := h.logs.ListByWorkOrder(r.Context(), actorFrom(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}
