package models

// WildcardPermission 通配权限名，拥有它的角色获得全部权限
const WildcardPermission = "*"

// Permission 权限模型，名称采用 "资源:动作" 的命名空间格式，例如 file:upload
type Permission struct {
	Model
	Name        string  `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description string  `gorm:"type:text" json:"description"`
	Roles       []*Role `gorm:"many2many:role_permissions;" json:"roles,omitempty"`
}

// TableName 指定表名
func (Permission) TableName() string {
	return "permissions"
}

// Grant 是权限授予的两种形态之一：AllPermissions 或 NamedPermission
type Grant interface {
	// Allows 判断该授予是否覆盖指定权限
	Allows(name string) bool
	grant()
}

// AllPermissions 通配授予
type AllPermissions struct{}

func (AllPermissions) Allows(string) bool { return true }
func (AllPermissions) grant()             {}
func (AllPermissions) String() string     { return WildcardPermission }

// NamedPermission 精确匹配的单个权限，不做前缀匹配
type NamedPermission string

func (p NamedPermission) Allows(name string) bool { return string(p) == name }
func (NamedPermission) grant()                    {}
func (p NamedPermission) String() string          { return string(p) }

// ParseGrant 将权限名解析为授予
func ParseGrant(name string) Grant {
	if name == WildcardPermission {
		return AllPermissions{}
	}
	return NamedPermission(name)
}

// Grant 返回权限对应的授予
func (p *Permission) Grant() Grant {
	return ParseGrant(p.Name)
}
