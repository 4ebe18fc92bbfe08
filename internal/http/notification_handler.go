package httpapi

import (
	"net/http"
	"strings"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/service"

	"go.uber.org/zap"
)

// NotificationHandler 通知接口
type NotificationHandler struct {
	notifications service.NotificationService
	logger        *zap.Logger
}

// NewNotificationHandler 创建 NotificationHandler
func NewNotificationHandler(notifications service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// List GET /api/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resp, err := h.notifications.List(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

// ReadAll PATCH /api/notifications/read-all
func (h *NotificationHandler) ReadAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	count, err := h.notifications.MarkAllRead(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"updated": count})
}

// Item PATCH /api/notifications/{id}/read
func (h *NotificationHandler) Item(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "read" {
		writeError(w, h.logger, domain.ErrNotFound("not found"))
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	resp, err := h.notifications.MarkRead(r.Context(), actorFrom(r), parts[0])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}
