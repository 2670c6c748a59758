package util

import (
	"net/http"

	"studybuddy_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构；Error 为业务错误类别，便于前端区分 409 的不同原因
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// PageResponse 分页响应结构
type PageResponse struct {
	List  interface{} `json:"list"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.Writer.Header().Get("X-Request-ID")),
		zap.Error(err),
	)
	InternalServerError(c)
}

// StatusFor 业务错误到 HTTP 状态码的映射
func StatusFor(err error) int {
	return statusForKind(KindOf(err))
}

func statusForKind(kind ErrorKind) int {
	switch kind {
	case KindAuthorization:
		return http.StatusForbidden
	case KindState, KindLimit, KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthenticated:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// HandleError 业务错误直接返回说明文字和类别，其余记录日志后返回 500
func HandleError(c *gin.Context, err error) {
	kind := KindOf(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		LogInternalError(c, err)
		return
	}
	c.JSON(status, Response{
		Code:    status,
		Message: err.Error(),
		Error:   kind.String(),
	})
}
