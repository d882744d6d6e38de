package models

import "time"

// User 用户模型
type User struct {
	Model
	Username            string     `gorm:"size:80;uniqueIndex;not null" json:"username"`
	Email               string     `gorm:"size:120;uniqueIndex;not null" json:"email"`
	Phone               string     `gorm:"size:20" json:"phone"`
	Department          string     `gorm:"size:100" json:"department"`
	FullName            string     `gorm:"size:100" json:"full_name"`
	PasswordHash        string     `gorm:"size:255;not null" json:"-"`
	IsActive            bool       `gorm:"not null;default:true" json:"is_active"`
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	RoleID              *uint      `gorm:"index" json:"role_id,omitempty"`
	Role                *Role      `gorm:"constraint:OnDelete:RESTRICT;" json:"role,omitempty"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// HasPermission 判断用户是否拥有指定权限。没有角色时一律拒绝。
// 需要预加载 Role.Permissions。
func (u *User) HasPermission(name string) bool {
	if u == nil || u.Role == nil {
		return false
	}
	return u.Role.HasPermission(name)
}

// IsLocked 账户在 now 时刻是否处于锁定状态
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// RoleName 角色名，无角色时为空
func (u *User) RoleName() string {
	if u.Role == nil {
		return ""
	}
	return u.Role.Name
}

// DisplayName 优先使用全名
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}
