package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/artifact-manager/internal/logger"
	"github.com/myysophia/artifact-manager/internal/utils"
	"go.uber.org/zap"
)

// RequirePermission 要求当前用户拥有全部指定权限，需放在 AuthMiddleware 之后
func RequirePermission(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			utils.ResponseError(c, utils.CodeUnauthorized, errors.New("未登录"))
			return
		}

		for _, p := range permissions {
			if !user.HasPermission(p) {
				logger.FromContext(c.Request.Context()).Warn("权限不足",
					zap.String("permission", p),
					zap.String("role", user.RoleName()))
				utils.ResponseError(c, utils.CodeForbidden, errors.New("没有权限执行此操作"))
				return
			}
		}
		c.Next()
	}
}

// RequireAnyPermission 要求当前用户至少拥有一个指定权限
func RequireAnyPermission(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			utils.ResponseError(c, utils.CodeUnauthorized, errors.New("未登录"))
			return
		}

		for _, p := range permissions {
			if user.HasPermission(p) {
				c.Next()
				return
			}
		}
		utils.ResponseError(c, utils.CodeForbidden, errors.New("没有权限执行此操作"))
	}
}
