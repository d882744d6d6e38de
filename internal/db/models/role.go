package models

// Role 角色模型
type Role struct {
	Model
	Name        string        `gorm:"size:50;uniqueIndex;not null" json:"name"`
	Description string        `gorm:"type:text" json:"description"`
	Permissions []*Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
	UserCount   int64         `gorm:"-" json:"user_count"`
}

// TableName 指定表名
func (Role) TableName() string {
	return "roles"
}

// Grants 返回角色拥有的全部授予
func (r *Role) Grants() []Grant {
	grants := make([]Grant, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		if p == nil {
			continue
		}
		grants = append(grants, p.Grant())
	}
	return grants
}

// HasPermission 角色是否拥有指定权限
func (r *Role) HasPermission(name string) bool {
	for _, g := range r.Grants() {
		if g.Allows(name) {
			return true
		}
	}
	return false
}

// PermissionNames 权限名列表
func (r *Role) PermissionNames() []string {
	names := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		if p != nil {
			names = append(names, p.Name)
		}
	}
	return names
}
