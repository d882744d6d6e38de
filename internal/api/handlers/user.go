package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/artifact-manager/internal/api/middleware"
	"github.com/myysophia/artifact-manager/internal/audit"
	"github.com/myysophia/artifact-manager/internal/auth"
	"github.com/myysophia/artifact-manager/internal/db/models"
	"github.com/myysophia/artifact-manager/internal/logger"
	"github.com/myysophia/artifact-manager/internal/utils"
	"go.uber.org/zap"
)

// AssignRoleRequest 分配角色请求，role_id 为空表示移除角色
type AssignRoleRequest struct {
	RoleID *uint `json:"role_id"`
}

// UserStatusRequest 启用/禁用请求
type UserStatusRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// UserHandler 用户管理处理器
type UserHandler struct {
	*BaseHandler
	rbac *auth.RBAC
}

// NewUserHandler 创建用户管理处理器
func NewUserHandler(base *BaseHandler, rbac *auth.RBAC) *UserHandler {
	return &UserHandler{
		BaseHandler: base,
		rbac:        rbac,
	}
}

// List 获取用户列表
func (h *UserHandler) List(c *gin.Context) {
	page, pageSize := pagination(c)
	q := auth.UserQuery{
		Username:   c.Query("username"),
		Department: c.Query("department"),
		Page:       page,
		PageSize:   pageSize,
	}
	if s := c.Query("is_active"); s != "" {
		active, err := strconv.ParseBool(s)
		if err != nil {
			h.BadRequest(c, "is_active 参数无效")
			return
		}
		q.IsActive = &active
	}

	users, total, err := h.rbac.ListUsers(c.Request.Context(), q)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("获取用户列表失败", zap.Error(err))
		h.InternalError(c, "获取用户列表失败")
		return
	}
	h.Success(c, pageData(users, total, page, pageSize))
}

// Get 获取用户详情
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.BadRequest(c, "无效的用户ID")
		return
	}

	user, err := h.rbac.GetUser(c.Request.Context(), id)
	if err != nil {
		h.rbacError(c, err, "获取用户失败")
		return
	}
	h.Success(c, user)
}

// AssignRole 分配角色
func (h *UserHandler) AssignRole(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.BadRequest(c, "无效的用户ID")
		return
	}
	var req AssignRoleRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	user, err := h.rbac.AssignRole(c.Request.Context(), id, req.RoleID)
	entry := audit.Entry{
		Action:       models.ActionUserRoleAssign,
		ResourceType: models.ResourceUser,
		ResourceID:   strconv.FormatUint(uint64(id), 10),
	}
	if err != nil {
		entry.Status = models.AuditFailed
		entry.Message = err.Error()
		h.Audit(c, entry)
		h.rbacError(c, err, "分配角色失败")
		return
	}

	entry.ResourceName = user.Username
	entry.Message = fmt.Sprintf("分配角色: %s", user.RoleName())
	h.Audit(c, entry)
	h.Success(c, user)
}

// SetStatus 启用或禁用用户
func (h *UserHandler) SetStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.BadRequest(c, "无效的用户ID")
		return
	}
	var req UserStatusRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if current := middleware.CurrentUser(c); current != nil && current.ID == id && !*req.IsActive {
		h.BadRequest(c, "不能禁用当前登录的账户")
		return
	}

	user, err := h.rbac.SetUserActive(c.Request.Context(), id, *req.IsActive)
	entry := audit.Entry{
		Action:       models.ActionUserStatus,
		ResourceType: models.ResourceUser,
		ResourceID:   strconv.FormatUint(uint64(id), 10),
	}
	if err != nil {
		entry.Status = models.AuditFailed
		entry.Message = err.Error()
		h.Audit(c, entry)
		h.rbacError(c, err, "更新用户状态失败")
		return
	}

	entry.ResourceName = user.Username
	entry.Message = "禁用用户"
	if user.IsActive {
		entry.Message = "启用用户"
	}
	h.Audit(c, entry)
	h.Success(c, user)
}

// rbacError 将角色权限服务的错误映射为响应
func (h *BaseHandler) rbacError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrRoleNotFound):
		utils.ResponseError(c, utils.CodeNotFound, err)
	case errors.Is(err, auth.ErrRoleExists):
		utils.ResponseError(c, utils.CodeRoleExists, err)
	case errors.Is(err, auth.ErrRoleInUse):
		utils.ResponseError(c, utils.CodeRoleInUse, err)
	case errors.Is(err, auth.ErrPermissionNotFound):
		utils.ResponseError(c, utils.CodeInvalidParams, err)
	default:
		logger.FromContext(c.Request.Context()).Error(fallback, zap.Error(err))
		h.InternalError(c, fallback)
	}
}
