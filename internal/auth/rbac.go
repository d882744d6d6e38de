package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/myysophia/artifact-manager/internal/db/models"
	"github.com/myysophia/artifact-manager/internal/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 定义错误
var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrRoleNotFound       = errors.New("角色不存在")
	ErrRoleExists         = errors.New("角色名已存在")
	ErrRoleInUse          = errors.New("角色仍被用户使用，无法删除")
	ErrPermissionNotFound = errors.New("权限不存在")
	ErrDatabaseOperation  = errors.New("数据库操作失败")
)

// LoadUser 查询用户并预加载角色和权限
func LoadUser(tx *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	err := tx.Preload("Role.Permissions").First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		logger.Error("查询用户失败", zap.Uint("userID", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}
	return &user, nil
}

// RBAC 角色与权限管理
type RBAC struct {
	db *gorm.DB
}

// NewRBAC 创建角色权限管理服务
func NewRBAC(db *gorm.DB) *RBAC {
	return &RBAC{db: db}
}

// UserQuery 用户列表查询条件
type UserQuery struct {
	Username   string
	Department string
	IsActive   *bool
	Page       int
	PageSize   int
}

// ListUsers 分页查询用户
func (r *RBAC) ListUsers(ctx context.Context, q UserQuery) ([]models.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})
	if q.Username != "" {
		query = query.Where("username LIKE ?", "%"+q.Username+"%")
	}
	if q.Department != "" {
		query = query.Where("department = ?", q.Department)
	}
	if q.IsActive != nil {
		query = query.Where("is_active = ?", *q.IsActive)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("获取用户总数失败: %w", err)
	}

	var users []models.User
	if err := query.Preload("Role").
		Order("id ASC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("获取用户列表失败: %w", err)
	}
	return users, total, nil
}

// GetUser 获取用户详情
func (r *RBAC) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return LoadUser(r.db.WithContext(ctx), id)
}

// AssignRole 为用户分配角色，roleID 为 nil 时移除角色
func (r *RBAC) AssignRole(ctx context.Context, userID uint, roleID *uint) (*models.User, error) {
	tx := r.db.WithContext(ctx)
	if _, err := LoadUser(tx, userID); err != nil {
		return nil, err
	}
	if roleID != nil {
		if _, err := r.GetRole(ctx, *roleID); err != nil {
			return nil, err
		}
	}
	if err := tx.Model(&models.User{}).Where("id = ?", userID).Update("role_id", roleID).Error; err != nil {
		return nil, fmt.Errorf("分配角色失败: %w", err)
	}
	return LoadUser(tx, userID)
}

// SetUserActive 启用或禁用用户
func (r *RBAC) SetUserActive(ctx context.Context, userID uint, active bool) (*models.User, error) {
	tx := r.db.WithContext(ctx)
	if _, err := LoadUser(tx, userID); err != nil {
		return nil, err
	}
	if err := tx.Model(&models.User{}).Where("id = ?", userID).Update("is_active", active).Error; err != nil {
		return nil, fmt.Errorf("更新用户状态失败: %w", err)
	}
	return LoadUser(tx, userID)
}

// ListRoles 列出角色及其权限和用户数
func (r *RBAC) ListRoles(ctx context.Context, name string) ([]models.Role, error) {
	query := r.db.WithContext(ctx).Model(&models.Role{})
	if name != "" {
		query = query.Where("name LIKE ?", "%"+name+"%")
	}

	var roles []models.Role
	if err := query.Preload("Permissions").Order("id ASC").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("获取角色列表失败: %w", err)
	}

	type roleCount struct {
		RoleID uint
		Count  int64
	}
	var counts []roleCount
	if err := r.db.WithContext(ctx).Model(&models.User{}).
		Select("role_id, COUNT(*) AS count").
		Where("role_id IS NOT NULL").
		Group("role_id").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("统计角色用户数失败: %w", err)
	}
	byRole := make(map[uint]int64, len(counts))
	for _, c := range counts {
		byRole[c.RoleID] = c.Count
	}
	for i := range roles {
		roles[i].UserCount = byRole[roles[i].ID]
	}
	return roles, nil
}

// GetRole 获取角色详情
func (r *RBAC) GetRole(ctx context.Context, id uint) (*models.Role, error) {
	var role models.Role
	if err := r.db.WithContext(ctx).Preload("Permissions").First(&role, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseOperation, err)
	}
	return &role, nil
}

// RoleInput 角色创建/更新参数
type RoleInput struct {
	Name          string
	Description   string
	PermissionIDs []uint
}

// CreateRole 创建角色
func (r *RBAC) CreateRole(ctx context.Context, in RoleInput) (*models.Role, error) {
	role := &models.Role{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Role{}).Where("name = ?", role.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrRoleExists
		}
		if err := tx.Create(role).Error; err != nil {
			return err
		}
		return replacePermissions(tx, role, in.PermissionIDs)
	})
	if err != nil {
		return nil, err
	}
	return r.GetRole(ctx, role.ID)
}

// UpdateRole 更新角色，权限集合整体替换
func (r *RBAC) UpdateRole(ctx context.Context, id uint, in RoleInput) (*models.Role, error) {
	role, err := r.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	role.Name = name
	role.Description = in.Description
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Role{}).Where("name = ? AND id <> ?", name, id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrRoleExists
		}
		if err := tx.Model(&models.Role{}).Where("id = ?", id).Updates(map[string]interface{}{
			"name":        name,
			"description": in.Description,
		}).Error; err != nil {
			return err
		}
		return replacePermissions(tx, role, in.PermissionIDs)
	})
	if err != nil {
		return nil, err
	}
	return r.GetRole(ctx, id)
}

// DeleteRole 删除角色，仍有用户引用时拒绝
func (r *RBAC) DeleteRole(ctx context.Context, id uint) (*models.Role, error) {
	role, err := r.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("role_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrRoleInUse
		}
		if err := tx.Model(role).Association("Permissions").Clear(); err != nil {
			return err
		}
		return tx.Delete(&models.Role{}, id).Error
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

// ListPermissions 列出全部权限
func (r *RBAC) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	var perms []models.Permission
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&perms).Error; err != nil {
		return nil, fmt.Errorf("获取权限列表失败: %w", err)
	}
	return perms, nil
}

func replacePermissions(tx *gorm.DB, role *models.Role, ids []uint) error {
	perms := make([]*models.Permission, 0, len(ids))
	if len(ids) > 0 {
		if err := tx.Where("id IN ?", ids).Find(&perms).Error; err != nil {
			return err
		}
		if len(perms) != len(uniqueIDs(ids)) {
			return ErrPermissionNotFound
		}
	}
	return tx.Model(role).Association("Permissions").Replace(perms)
}

func uniqueIDs(ids []uint) map[uint]struct{} {
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
