package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/fyerfyer/news-classifier/api/model"
	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/fyerfyer/news-classifier/internal/services"
	"github.com/fyerfyer/news-classifier/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// 定义应用中的错误类型常量
const (
	ErrorTypeValidation       = "VALIDATION_ERROR"    // 输入验证错误
	ErrorTypeNotFound         = "NOT_FOUND_ERROR"     // 资源不存在错误
	ErrorTypeModelUnavailable = "MODEL_UNAVAILABLE"   // 模型未初始化
	ErrorTypePersistence      = "PERSISTENCE_ERROR"   // 模型制品读写失败
	ErrorTypeUnavailable      = "SERVICE_UNAVAILABLE" // 依赖服务未启用
	ErrorTypeInternal         = "INTERNAL_ERROR"      // 内部服务器错误
)

// AppError 应用错误结构体
type AppError struct {
	Type    string // 错误类型
	Message string // 错误消息
	Details string // 详细错误信息
	Code    int    // HTTP状态码
}

// Error 实现error接口的方法
func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewModelUnavailableError 创建模型不可用错误
func NewModelUnavailableError(message string) AppError {
	return AppError{
		Type:    ErrorTypeModelUnavailable,
		Message: message,
		Code:    http.StatusServiceUnavailable,
	}
}

// NewPersistenceError 创建持久化错误
func NewPersistenceError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypePersistence,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// NewUnavailableError 创建依赖服务不可用错误
func NewUnavailableError(message string) AppError {
	return AppError{
		Type:    ErrorTypeUnavailable,
		Message: message,
		Code:    http.StatusServiceUnavailable,
	}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// FromError 将领域错误映射为应用错误
func FromError(err error) AppError {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var appErrPtr *AppError
	if errors.As(err, &appErrPtr) {
		return *appErrPtr
	}

	switch {
	case errors.Is(err, models.ErrValidation):
		return NewValidationError(err.Error())
	case errors.Is(err, models.ErrUninitialized):
		return NewModelUnavailableError(err.Error())
	case errors.Is(err, models.ErrPersistence):
		return NewPersistenceError("model artifact could not be read or written", err.Error())
	case errors.Is(err, taskqueue.ErrTaskNotFound):
		return NewNotFoundError("task not found")
	case errors.Is(err, services.ErrQueueDisabled):
		return NewUnavailableError(err.Error())
	default:
		return NewInternalError("internal server error", err.Error())
	}
}

// FromBindingError 将请求绑定错误转换为字段级的校验错误
func FromBindingError(err error) AppError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, describeFieldError(fe))
		}
		return NewValidationError("invalid request parameters", details...)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		return NewValidationError("malformed JSON body", err.Error())
	case errors.As(err, &typeErr):
		return NewValidationError("invalid field type", fmt.Sprintf("%s: expected %s", typeErr.Field, typeErr.Type))
	default:
		return NewValidationError("invalid request parameters", err.Error())
	}
}

// describeFieldError 生成单个字段的校验失败说明
func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must contain at least %s element(s)", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must contain at most %s element(s)", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must have length %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed on %s", field, fe.Tag())
	}
}

// ErrorMiddleware 统一错误处理中间件
// 恢复panic，并把处理器通过 c.Error 记录的错误转换为结构化响应
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(logrus.Fields{
					"error":    err,
					"stack":    string(debug.Stack()),
					"path":     c.Request.URL.Path,
					"trace_id": traceIDFrom(c),
				}).Error("Panic recovered in API request")

				errorResponse := model.NewErrorResponse(
					http.StatusInternalServerError,
					"An unexpected error occurred",
				)
				errorResponse.Error = ErrorTypeInternal
				if gin.Mode() == gin.DebugMode {
					errorResponse.Message = fmt.Sprintf("Panic: %v", err)
				}
				errorResponse.TraceID = traceIDFrom(c)

				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		appErr := FromError(err)
		traceID := traceIDFrom(c)

		entry := log.WithFields(logrus.Fields{
			"error_type": appErr.Type,
			"trace_id":   traceID,
			"path":       c.Request.URL.Path,
		})
		if appErr.Code >= http.StatusInternalServerError {
			entry.WithError(err).Error(appErr.Message)
		} else {
			entry.Warn(appErr.Error())
		}

		errResp := model.NewErrorResponse(appErr.Code, appErr.Message)
		errResp.Error = appErr.Type
		errResp.TraceID = traceID
		// 内部错误的细节只在调试模式下返回
		if appErr.Details != "" && (appErr.Code < http.StatusInternalServerError || gin.Mode() == gin.DebugMode) {
			errResp.Message = appErr.Message + ": " + appErr.Details
		}

		c.AbortWithStatusJSON(appErr.Code, errResp)
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
}

// traceIDFrom 从上下文读取追踪ID
func traceIDFrom(c *gin.Context) string {
	if v, exists := c.Get("TraceID"); exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
