package models

import (
	"math"
	"path/filepath"
	"time"
)

// 测试结果
const (
	TestResultPass    = "pass"
	TestResultFail    = "fail"
	TestResultBlocked = "blocked"
)

// Version 制品版本模型
type Version struct {
	Model
	SoftwareName    string     `gorm:"size:100;not null;index:idx_versions_name_uploaded,priority:1" json:"software_name"`
	Version         string     `gorm:"size:50;not null" json:"version"`
	FilePath        string     `gorm:"size:500;not null" json:"-"`
	FileSize        int64      `gorm:"not null" json:"file_size"`
	FileType        string     `gorm:"size:10;not null" json:"file_type"`
	UpdateNotes     string     `gorm:"type:text;not null" json:"update_notes"`
	TestDescription string     `gorm:"type:text;not null" json:"test_description"`
	TestResult      string     `gorm:"size:20;not null;index" json:"test_result"`
	TestDuration    *int       `json:"test_duration,omitempty"` // 秒
	TestCompletedAt time.Time  `gorm:"not null" json:"test_completed_at"`
	TestID          string     `gorm:"size:50;not null" json:"test_id"`
	DeveloperDRI    string     `gorm:"column:developer_dri;size:100;not null" json:"developer_dri"`
	UploadedBy      string     `gorm:"size:100;not null" json:"uploaded_by"`
	UploaderID      *uint      `gorm:"index" json:"uploader_id,omitempty"`
	UploadedAt      time.Time  `gorm:"not null;index:idx_versions_name_uploaded,priority:2" json:"uploaded_at"`
	DownloadedCount int64      `gorm:"not null;default:0" json:"downloaded_count"`
	ArchivedAt      *time.Time `json:"archived_at,omitempty"`
}

// TableName 指定表名
func (Version) TableName() string {
	return "versions"
}

// FileName 磁盘上的文件名
func (v *Version) FileName() string {
	return filepath.Base(v.FilePath)
}

// FileSizeMB 文件大小（MB，保留两位小数）
func (v *Version) FileSizeMB() float64 {
	return math.Round(float64(v.FileSize)/(1024*1024)*100) / 100
}

// IsArchived 是否已归档到历史目录
func (v *Version) IsArchived() bool {
	return v.ArchivedAt != nil
}
