package errors

import (
	"errors"
	"fmt"
)

// AppError 带业务错误码的错误
type AppError struct {
	Code    int    // 业务错误码
	Message string // 错误码对应的提示
	Err     error  // 原始错误
	Details string // 补充说明
}

func (e *AppError) Error() string {
	switch {
	case e.Err != nil && e.Details != "":
		return fmt.Sprintf("[%d] %s: %s: %v", e.Code, e.Message, e.Details, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	case e.Details != "":
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus 对应的 HTTP 状态码
func (e *AppError) HTTPStatus() int {
	return GetHTTPStatus(e.Code)
}

// New 创建错误
func New(code int, details ...string) *AppError {
	return &AppError{
		Code:    code,
		Message: GetMessage(code),
		Details: first(details),
	}
}

// Wrap 为已有错误附加错误码；已经是 AppError 时保留原错误码
func Wrap(err error, code int, details ...string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if d := first(details); d != "" {
			return &AppError{Code: appErr.Code, Message: appErr.Message, Err: appErr.Err, Details: d}
		}
		return appErr
	}

	return &AppError{
		Code:    code,
		Message: GetMessage(code),
		Err:     err,
		Details: first(details),
	}
}

// Is 判断是否为指定错误码
func Is(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ExtractCode 提取错误码，普通错误视为内部错误
func ExtractCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternalServer
}

// GetDetails 提取错误详情
func GetDetails(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Details != "" {
			return appErr.Details
		}
		if appErr.Err != nil {
			return appErr.Err.Error()
		}
		return ""
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func first(details []string) string {
	if len(details) > 0 {
		return details[0]
	}
	return ""
}
