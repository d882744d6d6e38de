package models

import "time"

// Model 基础模型
type Model struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// All 返回需要迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&Permission{},
		&Role{},
		&User{},
		&Version{},
		&AuditLog{},
	}
}
