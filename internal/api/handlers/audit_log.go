package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/artifact-manager/internal/db/models"
	"github.com/myysophia/artifact-manager/internal/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditLogHandler 审计日志处理器
type AuditLogHandler struct {
	*BaseHandler
	db *gorm.DB
}

// NewAuditLogHandler 创建审计日志处理器
func NewAuditLogHandler(base *BaseHandler, db *gorm.DB) *AuditLogHandler {
	return &AuditLogHandler{
		BaseHandler: base,
		db:          db,
	}
}

// ListAuditLogs 获取审计日志列表
func (h *AuditLogHandler) ListAuditLogs(c *gin.Context) {
	log := logger.FromContext(c.Request.Context())
	page, pageSize := pagination(c)

	query := h.db.WithContext(c.Request.Context()).Model(&models.AuditLog{})

	// 时间范围
	if s := c.Query("start_time"); s != "" {
		startTime, err := time.Parse(time.RFC3339, s)
		if err != nil {
			h.BadRequest(c, "start_time 必须是 RFC3339 格式")
			return
		}
		query = query.Where("created_at >= ?", startTime)
	}
	if s := c.Query("end_time"); s != "" {
		endTime, err := time.Parse(time.RFC3339, s)
		if err != nil {
			h.BadRequest(c, "end_time 必须是 RFC3339 格式")
			return
		}
		query = query.Where("created_at <= ?", endTime)
	}

	if s := c.Query("user_id"); s != "" {
		userID, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			h.BadRequest(c, "无效的user_id参数")
			return
		}
		query = query.Where("user_id = ?", userID)
	}
	if username := c.Query("username"); username != "" {
		query = query.Where("username LIKE ?", "%"+username+"%")
	}
	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if resourceType := c.Query("resource_type"); resourceType != "" {
		query = query.Where("resource_type = ?", resourceType)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		log.Error("获取审计日志总数失败", zap.Error(err))
		h.InternalError(c, "获取审计日志总数失败")
		return
	}

	var logs []models.AuditLog
	if err := query.Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error; err != nil {
		log.Error("获取审计日志列表失败", zap.Error(err))
		h.InternalError(c, "获取审计日志列表失败")
		return
	}

	log.Debug("审计日志查询结果", zap.Int64("total", total), zap.Int("count", len(logs)))
	h.Success(c, pageData(logs, total, page, pageSize))
}
