package models

import "time"

// 审计动作
const (
	ActionRegister       = "REGISTER"
	ActionLogin          = "LOGIN"
	ActionLogout         = "LOGOUT"
	ActionProfileUpdate  = "PROFILE_UPDATE"
	ActionUpload         = "UPLOAD"
	ActionDownload       = "DOWNLOAD"
	ActionRoleCreate     = "ROLE_CREATE"
	ActionRoleUpdate     = "ROLE_UPDATE"
	ActionRoleDelete     = "ROLE_DELETE"
	ActionUserRoleAssign = "USER_ROLE_ASSIGN"
	ActionUserStatus     = "USER_STATUS"
)

// 资源类型
const (
	ResourceUser    = "USER"
	ResourceRole    = "ROLE"
	ResourceVersion = "VERSION"
)

// 审计状态
const (
	AuditSuccess = "success"
	AuditFailed  = "failed"
	AuditError   = "error"
)

// AuditLog 审计日志模型，只追加不修改
type AuditLog struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	UserID       *uint     `gorm:"index" json:"user_id,omitempty"`
	Username     string    `gorm:"size:80" json:"username"`
	Action       string    `gorm:"size:50;not null;index" json:"action"`
	ResourceType string    `gorm:"size:50" json:"resource_type"`
	ResourceID   string    `gorm:"size:100" json:"resource_id"`
	ResourceName string    `gorm:"size:255" json:"resource_name"`
	IPAddress    string    `gorm:"size:50" json:"ip_address"`
	UserAgent    string    `gorm:"type:text" json:"user_agent"`
	Status       string    `gorm:"size:20;not null" json:"status"`
	Message      string    `gorm:"type:text" json:"message"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (AuditLog) TableName() string {
	return "logs"
}
