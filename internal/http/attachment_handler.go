package httpapi

import (
	"io"
	"net/http"
	"strings"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/service"

	"go.uber.org/zap"
)

// AttachmentHandler 附件接口
type AttachmentHandler struct {
	attachments service.AttachmentService
	logger      *zap.Logger
}

// NewAttachmentHandler 创建 AttachmentHandler
func NewAttachmentHandler(attachments service.AttachmentService, logger *zap.Logger) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments, logger: logger}
}

// Upload POST /api/attachments/upload/{workOrderId}（multipart，字段名 file）
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	workOrderID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/attachments/upload/"), "/")
	if workOrderID == "" || strings.Contains(workOrderID, "/") {
		writeError(w, h.logger, domain.ErrNotFound("not found"))
		return
	}

	// multipart 整体上限略高于单文件上限
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxAttachmentSize+1<<20)
	if err := r.ParseMultipartForm(service.MaxAttachmentSize); err != nil {
		writeError(w, h.logger, domain.ErrBadRequest("file exceeds the 5MB size limit"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, domain.ErrBadRequest("file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, service.MaxAttachmentSize+1))
	if err != nil {
		writeError(w, h.logger, domain.ErrBadRequest("failed to read file"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	resp, err := h.attachments.Upload(r.Context(), actorFrom(r), service.UploadAttachmentRequest{
		WorkOrderID: workOrderID,
		FileName:    header.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, resp)
}

// ByWorkOrder GET /api/attachments/work-order/{id}
func (h *AttachmentHandler) ByWorkOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/attachments/work-order/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, h.logger, domain.ErrNotFound("not found"))
		return
	}
	resp, err := h.attachments.ListByWorkOrder(r.Context(), actorFrom(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

// Item DELETE /api/attachments/{id}
func (h *AttachmentHandler) Item(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/attachments/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, h.logger, domain.ErrNotFound("not found"))
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := h.attachments.Delete(r.Context(), actorFrom(r), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "attachment deleted", nil)
}
