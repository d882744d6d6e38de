package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/artifact-manager/internal/api/middleware"
	"github.com/myysophia/artifact-manager/internal/audit"
	"github.com/myysophia/artifact-manager/internal/utils"
)

// BaseHandler 基础处理器
type BaseHandler struct {
	audit *audit.Recorder
}

// NewBaseHandler 创建基础处理器，recorder 为空时不记录审计日志
func NewBaseHandler(recorder *audit.Recorder) *BaseHandler {
	return &BaseHandler{audit: recorder}
}

// Success 成功响应
func (h *BaseHandler) Success(c *gin.Context, data interface{}) {
	utils.ResponseWithData(c, data)
}

// Error 错误响应
func (h *BaseHandler) Error(c *gin.Context, code int, message string) {
	utils.ResponseError(c, code, errors.New(message))
}

// BadRequest 请求参数错误
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	utils.ResponseError(c, utils.CodeInvalidParams, errors.New(message))
}

// Unauthorized 未授权
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	utils.ResponseError(c, utils.CodeUnauthorized, errors.New(message))
}

// Forbidden 禁止访问
func (h *BaseHandler) Forbidden(c *gin.Context, message string) {
	utils.ResponseError(c, utils.CodeForbidden, errors.New(message))
}

// NotFound 资源不存在
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	utils.ResponseError(c, utils.CodeNotFound, errors.New(message))
}

// InternalError 内部错误
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	utils.ResponseError(c, utils.CodeInternalError, errors.New(message))
}

// Audit 记录一条审计日志，未指定用户时使用当前登录用户
func (h *BaseHandler) Audit(c *gin.Context, e audit.Entry) {
	if h.audit == nil {
		return
	}
	if e.User == nil && e.Username == "" {
		e.User = middleware.CurrentUser(c)
	}
	e.IPAddress = c.ClientIP()
	e.UserAgent = c.Request.UserAgent()
	h.audit.Record(c.Request.Context(), e)
}

// parseID 解析路径参数中的ID
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// pagination 解析分页参数
func pagination(c *gin.Context) (page, pageSize int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		page = 1
	}
	pageSize, err = strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if err != nil || pageSize <= 0 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

// pageData 分页响应数据
func pageData(items interface{}, total int64, page, pageSize int) gin.H {
	return gin.H{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"items":     items,
	}
}
