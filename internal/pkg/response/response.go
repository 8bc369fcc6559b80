package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/chatbot-rag/internal/pkg/errors"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int    `json:"code"`              // 业务错误码（0 表示成功）
	Message string `json:"message,omitempty"` // 提示信息
	Data    any    `json:"data"`
}

// Success 成功响应（200）
func Success(c *gin.Context, data any) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusOK, Response{Code: apperrors.Success, Data: data})
}

// Created 创建成功（201）
func Created(c *gin.Context, data any) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusCreated, Response{Code: apperrors.Success, Data: data})
}

// BadRequest 400 错误
func BadRequest(c *gin.Context, message string) {
	ErrorWithCode(c, apperrors.ErrBadRequest, message)
}

// HandleError 根据 AppError 错误码输出错误响应。4xx 记 debug，其余记 error
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	code := apperrors.ExtractCode(err)
	status := apperrors.GetHTTPStatus(code)
	log := logger.FromContext(c.Request.Context())
	fields := []zap.Field{zap.String("path", c.Request.URL.Path), zap.Int("code", code), zap.Error(err)}
	if apperrors.IsClientError(code) {
		log.Debug("request rejected", fields...)
	} else {
		log.Error("request failed", fields...)
	}

	c.JSON(status, Response{
		Code:    code,
		Message: apperrors.FormatError(code, apperrors.GetDetails(err)),
		Data:    struct{}{},
	})
}

// ErrorWithCode 使用错误码的错误响应
func ErrorWithCode(c *gin.Context, code int, details ...string) {
	c.JSON(apperrors.GetHTTPStatus(code), Response{
		Code:    code,
		Message: apperrors.FormatError(code, details...),
		Data:    struct{}{},
	})
}

// AbortWithCode 中断后续处理并输出错误
func AbortWithCode(c *gin.Context, code int, details ...string) {
	ErrorWithCode(c, code, details...)
	c.Abort()
}
