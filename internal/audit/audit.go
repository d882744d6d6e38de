package audit

import (
	"context"
	"time"

	"github.com/myysophia/artifact-manager/internal/db/models"
	"github.com/myysophia/artifact-manager/internal/logger"
	"github.com/myysophia/artifact-manager/internal/observability"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:generate mockgen -destination=../tests/mocks/mock_audit_store.go -package=mocks github.com/myysophia/artifact-manager/internal/audit Store

// Store 审计日志持久化
type Store interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// GormStore 基于 gorm 的审计日志存储
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, entry *models.AuditLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// Entry 一条待记录的审计事件
type Entry struct {
	User         *models.User
	Username     string // 无用户时使用，例如登录失败时输入的用户名
	Action       string
	ResourceType string
	ResourceID   string
	ResourceName string
	IPAddress    string
	UserAgent    string
	Status       string
	Message      string
}

// Recorder 同步写入审计日志，写入失败只记录日志和指标，不影响业务结果
type Recorder struct {
	store   Store
	metrics *observability.Metrics
	now     func() time.Time
}

func NewRecorder(store Store, metrics *observability.Metrics) *Recorder {
	return &Recorder{store: store, metrics: metrics, now: time.Now}
}

// Record 写入一条审计日志
func (r *Recorder) Record(ctx context.Context, e Entry) {
	entry := &models.AuditLog{
		Username:     e.Username,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		ResourceName: e.ResourceName,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Status:       e.Status,
		Message:      e.Message,
		CreatedAt:    r.now(),
	}
	if e.User != nil {
		id := e.User.ID
		entry.UserID = &id
		entry.Username = e.User.Username
	}
	if entry.Status == "" {
		entry.Status = models.AuditSuccess
	}

	if err := r.store.Create(ctx, entry); err != nil {
		r.metrics.RecordAuditFailure()
		logger.FromContext(ctx).Error("保存审计日志失败",
			zap.Error(err),
			zap.String("action", entry.Action),
			zap.String("username", entry.Username),
			zap.String("resource_type", entry.ResourceType),
			zap.String("resource_id", entry.ResourceID))
	}
}
