// Package apperr 定义带 HTTP 状态码的领域错误，处理器据此直接决定响应码。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类
type Kind int

const (
	KindInternal Kind = iota
	KindAuth
	KindValidation
	KindNotFound
	KindMalformed
	KindUnavailable
)

// Error 领域错误
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Unauthorized API Key 无效或缺失
func Unauthorized() *Error {
	return &Error{Kind: KindAuth, Status: http.StatusForbidden, Message: "Invalid API Key"}
}

// Validation 请求参数不合法
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: msg}
}

// NotFound 请求的基金/市场/日期不存在
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: msg}
}

// Malformed 上游返回格式异常
func Malformed(msg string, err error) *Error {
	return &Error{Kind: KindMalformed, Status: http.StatusInternalServerError, Message: msg, Err: err}
}

// Internal 其他内部错误，对外只暴露通用信息
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Status: http.StatusInternalServerError, Message: "Data processing error", Err: err}
}

// UpstreamUnavailable 重试耗尽
func UpstreamUnavailable(err error) *Error {
	return &Error{Kind: KindUnavailable, Status: http.StatusServiceUnavailable, Message: "数据源暂时不可用", Err: err}
}

// From 将任意错误转换为 *Error，未知错误统一为 500
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// StatusOf 返回错误对应的 HTTP 状态码
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return From(err).Status
}

// Is 判断错误链中是否存在指定分类的领域错误
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
