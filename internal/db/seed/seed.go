// Package seed 初始化权限、角色和管理员账户。所有操作可重复执行。
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/myysophia/artifact-manager/internal/auth"
	"github.com/myysophia/artifact-manager/internal/db/models"
	"github.com/myysophia/artifact-manager/internal/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 内置角色
const (
	RoleSuperAdmin = "role_super_admin"
	RoleAdmin      = "role_admin"
	RoleTester     = "role_tester"
	RoleOps        = "role_ops"
	RoleVisitor    = "role_visitor"
)

// PermissionDef 权限定义
type PermissionDef struct {
	Name        string
	Description string
}

// RoleDef 角色定义
type RoleDef struct {
	Name        string
	Description string
	Permissions []string
}

// Permissions 权限词表
var Permissions = []PermissionDef{
	{"system:config", "系统配置"},
	{"user:*", "用户管理"},
	{"role:assign", "分配角色"},
	{"file:edit_remark", "编辑文件备注"},
	{"file:download", "下载文件"},
	{"file:view", "浏览文件"},
	{"file:details", "查看Hash等详情"},
	{"file:upload", "上传文件"},
	{"file:delete_own", "删除自己上传的"},
	{"file:edit_metadata", "编辑文件属性-仅自有"},
	{"file:share", "生成分享链接"},
	{"stats:view", "查看统计"},
	{"audit:view", "查看审计"},
	{models.WildcardPermission, "所有权限 (系统最高权限)"},
}

// Roles 内置角色及其权限
var Roles = []RoleDef{
	{RoleSuperAdmin, "超级管理员", []string{models.WildcardPermission}},
	{RoleAdmin, "管理员", []string{
		"system:config", "user:*", "role:assign",
		"file:edit_remark", "file:edit_metadata", "file:download", "file:view", "file:details",
		"stats:view", "audit:view",
	}},
	{RoleTester, "测试群组", []string{
		"file:upload", "file:download", "file:view", "file:details",
		"file:delete_own", "file:edit_metadata", "file:edit_remark", "file:share",
		"stats:view", "audit:view",
	}},
	{RoleOps, "运维群组", []string{
		"file:edit_remark", "file:download", "file:view", "file:details",
	}},
	{RoleVisitor, "访客群组", []string{
		"file:edit_remark", "file:view", "stats:view",
	}},
}

// legacyRoles 早期版本遗留的角色，无人使用时删除
var legacyRoles = []string{"admin", "user"}

// AdminOptions 管理员账户参数
type AdminOptions struct {
	Username   string
	Email      string
	Password   string
	Phone      string
	Department string
	FullName   string
}

// Run 依次执行权限、角色初始化和遗留角色清理
func Run(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		perms, err := ensurePermissions(tx)
		if err != nil {
			return err
		}
		if err := ensureRoles(tx, perms); err != nil {
			return err
		}
		return removeLegacyRoles(tx)
	})
}

func ensurePermissions(tx *gorm.DB) (map[string]*models.Permission, error) {
	result := make(map[string]*models.Permission, len(Permissions))
	for _, def := range Permissions {
		perm := &models.Permission{}
		if err := tx.Where(models.Permission{Name: def.Name}).
			Assign(models.Permission{Description: def.Description}).
			FirstOrCreate(perm).Error; err != nil {
			return nil, fmt.Errorf("初始化权限 %s 失败: %w", def.Name, err)
		}
		result[def.Name] = perm
	}
	logger.Info("权限初始化完成", zap.Int("count", len(result)))
	return result, nil
}

func ensureRoles(tx *gorm.DB, perms map[string]*models.Permission) error {
	for _, def := range Roles {
		role := &models.Role{}
		if err := tx.Where(models.Role{Name: def.Name}).
			Assign(models.Role{Description: def.Description}).
			FirstOrCreate(role).Error; err != nil {
			return fmt.Errorf("初始化角色 %s 失败: %w", def.Name, err)
		}

		assigned := make([]*models.Permission, 0, len(def.Permissions))
		for _, name := range def.Permissions {
			perm, ok := perms[name]
			if !ok {
				return fmt.Errorf("角色 %s 引用了未定义的权限 %s", def.Name, name)
			}
			assigned = append(assigned, perm)
		}
		if err := tx.Model(role).Association("Permissions").Replace(assigned); err != nil {
			return fmt.Errorf("分配角色 %s 权限失败: %w", def.Name, err)
		}
	}
	logger.Info("角色初始化完成", zap.Int("count", len(Roles)))
	return nil
}

func removeLegacyRoles(tx *gorm.DB) error {
	for _, name := range legacyRoles {
		var role models.Role
		err := tx.Where("name = ?", name).First(&role).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		var users int64
		if err := tx.Model(&models.User{}).Where("role_id = ?", role.ID).Count(&users).Error; err != nil {
			return err
		}
		if users > 0 {
			logger.Warn("遗留角色仍有用户使用，跳过删除", zap.String("role", name), zap.Int64("users", users))
			continue
		}
		if err := tx.Model(&role).Association("Permissions").Clear(); err != nil {
			return err
		}
		if err := tx.Delete(&role).Error; err != nil {
			return err
		}
		logger.Info("已删除遗留角色", zap.String("role", name))
	}
	return nil
}

// EnsureAdmin 创建或更新超级管理员账户
func EnsureAdmin(ctx context.Context, db *gorm.DB, opts AdminOptions) (*models.User, error) {
	if opts.Username == "" || opts.Password == "" {
		return nil, errors.New("管理员用户名和密码不能为空")
	}

	var role models.Role
	if err := db.WithContext(ctx).Where("name = ?", RoleSuperAdmin).First(&role).Error; err != nil {
		return nil, fmt.Errorf("获取超级管理员角色失败: %w", err)
	}

	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return nil, err
	}

	tx := db.WithContext(ctx)
	var user models.User
	err = tx.Where("username = ?", opts.Username).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			Username:     opts.Username,
			Email:        opts.Email,
			Phone:        opts.Phone,
			Department:   opts.Department,
			FullName:     opts.FullName,
			PasswordHash: hash,
			IsActive:     true,
			RoleID:       &role.ID,
		}
		if err := tx.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("创建管理员失败: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("查询管理员失败: %w", err)
	default:
		// 已存在时重置密码、角色和锁定状态
		if err := tx.Model(&user).Updates(map[string]interface{}{
			"password_hash":         hash,
			"role_id":               role.ID,
			"is_active":             true,
			"failed_login_attempts": 0,
			"locked_until":          nil,
		}).Error; err != nil {
			return nil, fmt.Errorf("更新管理员失败: %w", err)
		}
	}

	logger.Info("管理员账户已就绪", zap.String("username", user.Username))
	return auth.LoadUser(db.WithContext(ctx), user.ID)
}
