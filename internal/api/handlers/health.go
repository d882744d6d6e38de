package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/artifact-manager/internal/db"
	"github.com/myysophia/artifact-manager/internal/logger"
	"github.com/myysophia/artifact-manager/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// healthTimeout 单次健康检查的超时
const healthTimeout = 3 * time.Second

// HealthHandler 健康检查处理器
type HealthHandler struct {
	db      *gorm.DB
	layout  *storage.Layout
	version string
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(conn *gorm.DB, layout *storage.Layout, version string) *HealthHandler {
	return &HealthHandler{db: conn, layout: layout, version: version}
}

// Check 并发检查数据库连接和存储目录可写性
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	roots := h.layout.Roots()
	results := make(map[string]string, len(roots))
	dbStatus := "ok"

	// 各检查互不取消，错误记录在结果中
	var g errgroup.Group
	g.Go(func() error {
		if err := db.Ping(ctx, h.db); err != nil {
			dbStatus = err.Error()
			return err
		}
		return nil
	})
	errs := make([]error, len(roots))
	names := make([]string, 0, len(roots))
	for name := range roots {
		names = append(names, name)
	}
	for i, name := range names {
		i, dir := i, roots[name]
		g.Go(func() error {
			errs[i] = storage.CheckWritable(dir)
			return errs[i]
		})
	}

	healthy := g.Wait() == nil
	for i, name := range names {
		if errs[i] != nil {
			results[name] = errs[i].Error()
		} else {
			results[name] = "ok"
		}
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
		logger.FromContext(c.Request.Context()).Warn("健康检查失败",
			zap.String("database", dbStatus),
			zap.Any("storage", results))
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  dbStatus,
		"storage":   results,
		"version":   h.version,
	})
}
