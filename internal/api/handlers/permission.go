package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/myysophia/artifact-manager/internal/auth"
)

// PermissionHandler 权限处理器
type PermissionHandler struct {
	*BaseHandler
	rbac *auth.RBAC
}

// NewPermissionHandler 创建权限处理器
func NewPermissionHandler(base *BaseHandler, rbac *auth.RBAC) *PermissionHandler {
	return &PermissionHandler{
		BaseHandler: base,
		rbac:        rbac,
	}
}

// List 获取全部权限
func (h *PermissionHandler) List(c *gin.Context) {
	perms, err := h.rbac.ListPermissions(c.Request.Context())
	if err != nil {
		h.rbacError(c, err, "获取权限列表失败")
		return
	}
	h.Success(c, gin.H{
		"total": len(perms),
		"items": perms,
	})
}
