package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/myysophia/artifact-manager/internal/api"
	"github.com/myysophia/artifact-manager/internal/artifact"
	"github.com/myysophia/artifact-manager/internal/audit"
	"github.com/myysophia/artifact-manager/internal/auth"
	"github.com/myysophia/artifact-manager/internal/db"
	"github.com/myysophia/artifact-manager/internal/db/seed"
	"github.com/myysophia/artifact-manager/internal/logger"
	"github.com/myysophia/artifact-manager/internal/observability"
	"github.com/myysophia/artifact-manager/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, conn, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		logger.Info("构建产物管理服务启动中...", zap.String("version", cfg.App.Version))

		// 内置角色在启动时补齐，不在请求路径上执行
		if err := seed.Run(cmd.Context(), conn); err != nil {
			return err
		}

		layout, err := storage.NewLayout(&cfg.Storage)
		if err != nil {
			return err
		}
		if err := layout.Ensure(); err != nil {
			return err
		}
		logger.Info("存储目录就绪",
			zap.String("testing", layout.TestingDir),
			zap.String("current", layout.CurrentDir),
			zap.String("history", layout.HistoryDir))

		metrics := observability.NewDefaultMetrics()
		router := api.SetupRouter(api.Dependencies{
			Config:    cfg,
			DB:        conn,
			Auth:      auth.NewService(conn, auth.NewTokenManager(&cfg.JWT), cfg.Auth.DefaultRole),
			RBAC:      auth.NewRBAC(conn),
			Artifacts: artifact.NewService(conn, layout, metrics, cfg.App.MaxUploadSize),
			Audit:     audit.NewRecorder(audit.NewGormStore(conn), metrics),
			Metrics:   metrics,
		})

		server := &http.Server{
			Addr:         cfg.App.Addr(),
			Handler:      router,
			ReadTimeout:  cfg.App.GetReadTimeout(),
			WriteTimeout: cfg.App.GetWriteTimeout(),
			IdleTimeout:  cfg.App.GetIdleTimeout(),
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		serveErr := make(chan error, 1)
		go func() {
			logger.Info("HTTP服务器启动成功", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()

		select {
		case err := <-serveErr:
			logger.Error("HTTP服务器启动失败", zap.Error(err))
			_ = db.Close()
			return err
		case <-quit:
		}
		logger.Info("正在关闭服务器...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("服务器关闭异常", zap.Error(err))
		}

		if err := db.Close(); err != nil {
			logger.Error("关闭数据库连接失败", zap.Error(err))
		}
		logger.Info("服务器已安全关闭")
		return nil
	},
}
