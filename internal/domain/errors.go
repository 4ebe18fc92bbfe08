package domain

import (
	"errors"
	"net/http"
)

// Error 业务错误（携带 HTTP 状态码）
// 可预期的业务失败使用这个类型；其它错误一律映射为 500
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

func ErrBadRequest(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg}
}

func ErrUnauthorized(msg string) *Error {
	return &Error{Status: http.StatusUnauthorized, Message: msg}
}

func ErrForbidden(msg string) *Error {
	return &Error{Status: http.StatusForbidden, Message: msg}
}

func ErrNotFound(msg string) *Error {
	return &Error{Status: http.StatusNotFound, Message: msg}
}

// StatusOf 提取错误的 HTTP 状态码（未分类错误返回 500）
func StatusOf(err error) int {
	var de *Error
	if errors.As(err, &de) {
		return de.Status
	}
	return http.StatusInternalServerError
}

// IsBusinessError 判断是否可以把错误消息直接返回给客户端
func IsBusinessError(err error) bool {
	var de *Error
	return errors.As(err, &de)
}
