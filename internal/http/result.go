package httpapi

import (
	"net/http"

	"fieldops-data/internal/domain"

	"go.uber.org/zap"
)

// envelope 统一响应包：{"success": bool, "data"?, "message"?, "error"?}
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

// writeError 业务错误按其状态码返回，其余一律 500 + 通用文案
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := domain.StatusOf(err)
	message := err.Error()
	if !domain.IsBusinessError(err) {
		logger.Error("request failed", zap.Error(err))
		status = http.StatusInternalServerError
		message = "internal server error"
	}
	writeJSON(w, status, envelope{Success: false, Error: message})
}
