package api

import (
	"github.com/gin-gonic/gin"
	"github.com/myysophia/artifact-manager/internal/api/handlers"
	"github.com/myysophia/artifact-manager/internal/api/middleware"
	"github.com/myysophia/artifact-manager/internal/artifact"
	"github.com/myysophia/artifact-manager/internal/audit"
	"github.com/myysophia/artifact-manager/internal/auth"
	"github.com/myysophia/artifact-manager/internal/config"
	"github.com/myysophia/artifact-manager/internal/observability"
	"gorm.io/gorm"
)

// Dependencies 路由依赖
type Dependencies struct {
	Config    *config.Config
	DB        *gorm.DB
	Auth      *auth.Service
	RBAC      *auth.RBAC
	Artifacts *artifact.Service
	Audit     *audit.Recorder
	Metrics   *observability.Metrics
}

// SetupRouter 设置路由
func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	router := gin.New()

	// 全局中间件
	router.Use(
		middleware.RecoveryMiddleware(),
		middleware.RequestID(),
		middleware.MetricsMiddleware(deps.Metrics),
		middleware.LoggerMiddleware(),
	)

	// 创建处理器
	base := handlers.NewBaseHandler(deps.Audit)
	authHandler := handlers.NewAuthHandler(base, deps.Auth, deps.Metrics, handlers.CookieOptions{
		Name:   cfg.JWT.CookieName,
		Secure: cfg.App.Env == "prod",
	})
	versionHandler := handlers.NewVersionHandler(base, deps.Artifacts, cfg.App.RecentLimit)
	userHandler := handlers.NewUserHandler(base, deps.RBAC)
	roleHandler := handlers.NewRoleHandler(base, deps.RBAC)
	permissionHandler := handlers.NewPermissionHandler(base, deps.RBAC)
	auditLogHandler := handlers.NewAuditLogHandler(base, deps.DB)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Artifacts.Layout(), cfg.App.Version)

	// 公开路由
	router.GET("/health", healthHandler.Check)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	router.GET("/api/versions", versionHandler.ListJSON)

	public := router.Group("/api/v1")
	{
		public.POST("/auth/register", authHandler.Register)
		public.POST("/auth/login", authHandler.Login)
		public.GET("/versions/recent", versionHandler.Recent)
	}

	// 需要认证的路由
	authorized := router.Group("/api/v1")
	authorized.Use(middleware.AuthMiddleware(deps.Auth, cfg.JWT.CookieName))
	{
		authorized.POST("/auth/logout", authHandler.Logout)
		authorized.GET("/user/profile", authHandler.GetProfile)
		authorized.PUT("/user/profile", authHandler.UpdateProfile)

		// 制品版本
		versions := authorized.Group("/versions")
		{
			versions.GET("", versionHandler.List)
			versions.GET("/:id", versionHandler.Get)
			versions.POST("",
				middleware.BodyLimit(cfg.App.MaxUploadSize),
				middleware.RequirePermission("file:upload"),
				versionHandler.Upload)
			versions.GET("/:id/download", middleware.RequirePermission("file:download"), versionHandler.Download)
			versions.POST("/archive", middleware.RequirePermission("system:config"), versionHandler.Archive)
		}

		authorized.GET("/analytics", middleware.RequirePermission("stats:view"), versionHandler.Analytics)

		// 审计日志
		auditLogs := authorized.Group("/audit")
		auditLogs.Use(middleware.RequirePermission("audit:view"))
		{
			auditLogs.GET("/logs", auditLogHandler.ListAuditLogs)
		}

		// 用户管理
		users := authorized.Group("/users")
		users.Use(middleware.RequirePermission("user:*"))
		{
			users.GET("", userHandler.List)
			users.GET("/:id", userHandler.Get)
			users.PUT("/:id/role", userHandler.AssignRole)
			users.PUT("/:id/status", userHandler.SetStatus)
		}

		// 角色管理
		roles := authorized.Group("/roles")
		roles.Use(middleware.RequirePermission("role:assign"))
		{
			roles.GET("", roleHandler.List)
			roles.POST("", roleHandler.Create)
			roles.GET("/:id", roleHandler.Get)
			roles.PUT("/:id", roleHandler.Update)
			roles.DELETE("/:id", roleHandler.Delete)
		}

		// 分配角色的用户管理员也需要查看权限列表
		authorized.GET("/permissions", middleware.RequireAnyPermission("role:assign", "user:*"), permissionHandler.List)
	}

	return router
}
