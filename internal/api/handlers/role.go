package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/artifact-manager/internal/audit"
	"github.com/myysophia/artifact-manager/internal/auth"
	"github.com/myysophia/artifact-manager/internal/db/models"
	"github.com/myysophia/artifact-manager/internal/utils"
)

// RoleRequest 角色创建/更新请求，permission_ids 整体替换角色权限
type RoleRequest struct {
	Name          string `json:"name" validate:"required,min=2,max=50"`
	Description   string `json:"description" validate:"max=200"`
	PermissionIDs []uint `json:"permission_ids"`
}

// RoleHandler 角色管理处理器
type RoleHandler struct {
	*BaseHandler
	rbac *auth.RBAC
}

// NewRoleHandler 创建角色管理处理器
func NewRoleHandler(base *BaseHandler, rbac *auth.RBAC) *RoleHandler {
	return &RoleHandler{
		BaseHandler: base,
		rbac:        rbac,
	}
}

// List 获取角色列表
func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.rbac.ListRoles(c.Request.Context(), c.Query("name"))
	if err != nil {
		h.rbacError(c, err, "获取角色列表失败")
		return
	}
	h.Success(c, gin.H{
		"total": len(roles),
		"items": roles,
	})
}

// Get 获取角色详情
func (h *RoleHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.BadRequest(c, "无效的角色ID")
		return
	}
	role, err := h.rbac.GetRole(c.Request.Context(), id)
	if err != nil {
		h.rbacError(c, err, "获取角色失败")
		return
	}
	h.Success(c, role)
}

// Create 创建角色
func (h *RoleHandler) Create(c *gin.Context) {
	var req RoleRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	role, err := h.rbac.CreateRole(c.Request.Context(), auth.RoleInput{
		Name:          req.Name,
		Description:   req.Description,
		PermissionIDs: req.PermissionIDs,
	})
	if err != nil {
		h.Audit(c, audit.Entry{
			Action:       models.ActionRoleCreate,
			ResourceType: models.ResourceRole,
			ResourceName: req.Name,
			Status:       models.AuditFailed,
			Message:      err.Error(),
		})
		h.rbacError(c, err, "创建角色失败")
		return
	}

	h.Audit(c, audit.Entry{
		Action:       models.ActionRoleCreate,
		ResourceType: models.ResourceRole,
		ResourceID:   strconv.FormatUint(uint64(role.ID), 10),
		ResourceName: role.Name,
		Message:      "创建角色",
	})
	h.Success(c, role)
}

// Update 更新角色
func (h *RoleHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.BadRequest(c, "无效的角色ID")
		return
	}
	var req RoleRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	role, err := h.rbac.UpdateRole(c.Request.Context(), id, auth.RoleInput{
		Name:          req.Name,
		Description:   req.Description,
		PermissionIDs: req.PermissionIDs,
	})
	entry := audit.Entry{
		Action:       models.ActionRoleUpdate,
		ResourceType: models.ResourceRole,
		ResourceID:   strconv.FormatUint(uint64(id), 10),
		ResourceName: req.Name,
		Message:      "更新角色",
	}
	if err != nil {
		entry.Status = models.AuditFailed
		entry.Message = err.Error()
		h.Audit(c, entry)
		h.rbacError(c, err, "更新角色失败")
		return
	}

	h.Audit(c, entry)
	h.Success(c, role)
}

// Delete 删除角色
func (h *RoleHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.BadRequest(c, "无效的角色ID")
		return
	}

	role, err := h.rbac.DeleteRole(c.Request.Context(), id)
	entry := audit.Entry{
		Action:       models.ActionRoleDelete,
		ResourceType: models.ResourceRole,
		ResourceID:   strconv.FormatUint(uint64(id), 10),
		Message:      "删除角色",
	}
	if err != nil {
		entry.Status = models.AuditFailed
		entry.Message = err.Error()
		h.Audit(c, entry)
		h.rbacError(c, err, "删除角色失败")
		return
	}

	entry.ResourceName = role.Name
	h.Audit(c, entry)
	utils.ResponseWithMsg(c, "角色已删除")
}
