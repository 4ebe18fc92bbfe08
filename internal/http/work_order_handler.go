package httpapi

import (
	"net/http"
	"strings"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/service"

	"go.uber.org/zap"
)

// WorkOrderHandler 工单接口（含嵌套评论路由）
type WorkOrderHandler struct {
	orders   service.WorkOrderService
	comments service.CommentService
	logger   *zap.Logger
}

// NewWorkOrderHandler 创建 WorkOrderHandler
func NewWorkOrderHandler(orders service.WorkOrderService, comments service.CommentService, logger *zap.Logger) *WorkOrderHandler {
	return &WorkOrderHandler{orders: orders, comments: comments, logger: logger}
}

func listRequestFromQuery(r *http.Request) service.ListWorkOrdersRequest {
	q := r.URL.Query()
	return service.ListWorkOrdersRequest{
		Status:   q.Get("status"),
		Priority: q.Get("priority"),
		Search:   q.Get("search"),
		Page:     parseInt(q.Get("page"), 1),
		Limit:    parseInt(q.Get("limit"), 10),
	}
}

// Collection GET|POST /api/work-orders
func (h *WorkOrderHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		resp, err := h.orders.List(r.Context(), actorFrom(r), listRequestFromQuery(r))
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeData(w, http.StatusOK, resp)
	case http.MethodPost:
		var req service.CreateWorkOrderRequest
		if err := readBodyJSON(r, &req); err != nil {
			writeError(w, h.logger, domain.ErrBadRequest("invalid request body"))
			return
		}
		resp, err := h.orders.Create(r.Context(), actorFrom(r), req)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeData(w, http.StatusCreated, resp)
	default:
		methodNotAllowed(w)
	}
}

// Mine GET /api/work-orders/my
func (h *WorkOrderHandler) Mine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resp, err := h.orders.ListMine(r.Context(), actorFrom(r), listRequestFromQuery(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

// Stats GET /api/work-orders/stats
func (h *WorkOrderHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resp, err := h.orders.Stats(r.Context(), actorFrom(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

// Item 按路径分发 /api/work-orders/{id}[...]
//
//	{id}                     GET | PUT | DELETE
//	{id}/status              PATCH
//	{id}/comments            GET | POST
//	{id}/comments/{cid}      PUT | DELETE
func (h *WorkOrderHandler) Item(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/work-orders/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		h.item(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "status":
		h.changeStatus(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "comments":
		h.commentCollection(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "comments":
		h.commentItem(w, r, parts[2])
	default:
		writeError(w, h.logger, domain.ErrNotFound("not found"))
	}
}

func (h *WorkOrderHandler) item(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		resp, err := h.orders.Get(r.Context(), actorFrom(r), id)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeData(w, http.StatusOK, resp)
	case http.MethodPut, http.MethodPatch:
		var req service.UpdateWorkOrderRequest
		if err := readBodyJSON(r, &req); err != nil {
			writeError(w, h.logger, domain.ErrBadRequest("invalid request body"))
			return
		}
		resp, err := h.orders.Update(r.Context(), actorFrom(r), id, req)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeData(w, http.StatusOK, resp)
	case http.MethodDelete:
		if err := h.orders.Delete(r.Context(), actorFrom(r), id); err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeMessage(w, http.StatusOK, "work order deleted", nil)
	default:
		methodNotAllowed(w)
	}
}

func (h *WorkOrderHandler) changeStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	var req service.ChangeStatusRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeError(w, h.logger, domain.ErrBadRequest("invalid request body"))
		return
	}
	resp, err := h.orders.ChangeStatus(r.Context(), actorFrom(r), id, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

func (h *WorkOrderHandler) commentCollection(w http.ResponseWriter, r *http.Request, workOrderID string) {
	switch r.Method {
	case http.MethodGet:
		resp, err := h.comments.ListByWorkOrder(r.Context(), actorFrom(r), workOrderID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeData(w, http.StatusOK, resp)
	case http.MethodPost:
		var req service.CreateCommentRequest
		if err := readBodyJSON(r, &req); err != nil {
			writeError(w, h.logger, domain.ErrBadRequest("invalid request body"))
			return
		}
		resp, err := h.comments.Create(r.Context(), actorFrom(r), workOrderID, req)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeData(w, http.StatusCreated, resp)
	default:
		methodNotAllowed(w)
	}
}

func (h *WorkOrderHandler) commentItem(w http.ResponseWriter, r *http.Request, commentID string) {
	switch r.Method {
	case http.MethodPut, http.MethodPatch:
		var req service.UpdateCommentRequest
		if err := readBodyJSON(r, &req); err != nil {
			writeError(w, h.logger, domain.ErrBadRequest("invalid request body"))
			return
		}
		resp, err := h.comments.Update(r.Context(), actorFrom(r), commentID, req)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeData(w, http.StatusOK, resp)
	case http.MethodDelete:
		if err := h.comments.Delete(r.Context(), actorFrom(r), commentID); err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeMessage(w, http.StatusOK, "comment deleted", nil)
	default:
		methodNotAllowed(w)
	}
}
