package httpapi

import (
	"net/http"
	"strings"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/service"

	"go.uber.org/zap"
)

// UserHandler 用户管理接口
type UserHandler struct {
	users  service.UserService
	logger *zap.Logger
}

// NewUserHandler 创建 UserHandler
func NewUserHandler(users service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// Collection GET|POST /api/users
func (h *UserHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req := service.ListUsersRequest{
			Role:   q.Get("role"),
			Search: q.Get("search"),
		}
		if v := q.Get("isActive"); v != "" {
			active := v == "true"
			req.IsActive = &active
		}
		resp, err := h.users.List(r.Context(), actorFrom(r), req)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeData(w, http.StatusOK, resp)
	case http.MethodPost:
		var req service.CreateUserRequest
		if err := readBodyJSON(r, &req); err != nil {
			writeError(w, h.logger, domain.ErrBadRequest("invalid request body"))
			return
		}
		resp, err := h.users.Create(r.Context(), actorFrom(r), req)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeData(w, http.StatusCreated, resp)
	default:
		methodNotAllowed(w)
	}
}

// Workers GET /api/users/workers
func (h *UserHandler) Workers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resp, err := h.users.ListWorkers(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

// WorkerStats GET /api/users/workers/stats
func (h *UserHandler) WorkerStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resp, err := h.users.ListWorkersWithStats(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

// Item 按路径分发 /api/users/{id}[/status]
func (h *UserHandler) Item(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/users/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		h.item(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "status":
		h.setStatus(w, r, parts[0])
	default:
		writeError(w, h.logger, domain.ErrNotFound("not found"))
	}
}

func (h *UserHandler) item(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		resp, err := h.users.Get(r.Context(), actorFrom(r), id)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeData(w, http.StatusOK, resp)
	case http.MethodPut, http.MethodPatch:
		var req service.UpdateUserRequest
		if err := readBodyJSON(r, &req); err != nil {
			writeError(w, h.logger, domain.ErrBadRequest("invalid request body"))
			return
		}
		resp, err := h.users.Update(r.Context(), actorFrom(r), id, req)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeData(w, http.StatusOK, resp)
	case http.MethodDelete:
		if err := h.users.Delete(r.Context(), actorFrom(r), id); err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeMessage(w, http.StatusOK, "user deleted", nil)
	default:
		methodNotAllowed(w)
	}
}

func (h *UserHandler) setStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	var req struct {
		IsActive *bool `json:"isActive"`
	}
	if err := readBodyJSON(r, &req); err != nil || req.IsActive == nil {
		writeError(w, h.logger, domain.ErrBadRequest("isActive is required"))
		return
	}
	resp, err := h.users.SetStatus(r.Context(), actorFrom(r), id, *req.IsActive)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}
