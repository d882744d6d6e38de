package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/artifact-manager/internal/db/models"
	"github.com/myysophia/artifact-manager/internal/logger"
	"github.com/myysophia/artifact-manager/internal/utils"
	"go.uber.org/zap"
)

// ContextUserKey 当前用户在 gin.Context 中的键
const ContextUserKey = "currentUser"

// UserResolver 根据令牌解析当前用户，令牌无效或用户不存在时返回 nil
type UserResolver interface {
	CurrentUser(ctx context.Context, token string) (*models.User, error)
}

// AuthMiddleware 认证中间件，令牌来自 Authorization: Bearer 头或会话 Cookie
func AuthMiddleware(resolver UserResolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractToken(c, cookieName)
		if err != nil {
			utils.ResponseError(c, utils.CodeUnauthorized, err)
			return
		}

		user, err := resolver.CurrentUser(c.Request.Context(), token)
		if err != nil {
			logger.FromContext(c.Request.Context()).Error("解析当前用户失败", zap.Error(err))
			utils.ResponseError(c, utils.CodeInternalError, errors.New("认证服务异常"))
			return
		}
		if user == nil {
			utils.ResponseError(c, utils.CodeUnauthorized, errors.New("无效的认证令牌"))
			return
		}
		if !user.IsActive {
			utils.ResponseError(c, utils.CodeAccountDisabled, nil)
			return
		}

		c.Set(ContextUserKey, user)
		c.Request = c.Request.WithContext(logger.NewContext(c.Request.Context(),
			zap.Uint("userID", user.ID),
			zap.String("username", user.Username)))

		c.Next()
	}
}

func extractToken(c *gin.Context, cookieName string) (string, error) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && strings.EqualFold(parts[0], "Bearer")) || strings.TrimSpace(parts[1]) == "" {
			return "", errors.New("认证令牌格式错误")
		}
		return strings.TrimSpace(parts[1]), nil
	}
	if cookieName != "" {
		if token, err := c.Cookie(cookieName); err == nil && token != "" {
			return token, nil
		}
	}
	return "", errors.New("未提供认证令牌")
}

// CurrentUser 取出认证中间件写入的当前用户，未认证返回 nil
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
