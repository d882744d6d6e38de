package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/myysophia/artifact-manager/internal/db/models"
	"github.com/myysophia/artifact-manager/internal/logger"
	"github.com/myysophia/artifact-manager/internal/observability"
	"github.com/myysophia/artifact-manager/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 上传结果指标状态
const (
	uploadSuccess  = "success"
	uploadRejected = "rejected"
	uploadError    = "error"
)

// Service 制品上传、归档与下载
type Service struct {
	db      *gorm.DB
	layout  *storage.Layout
	metrics *observability.Metrics
	maxSize int64
	locks   *nameLocker
	now     func() time.Time
}

// NewService 创建制品服务，maxSize 为单个文件的最大字节数，<=0 表示不限制
func NewService(db *gorm.DB, layout *storage.Layout, metrics *observability.Metrics, maxSize int64) *Service {
	return &Service{
		db:      db,
		layout:  layout,
		metrics: metrics,
		maxSize: maxSize,
		locks:   newNameLocker(),
		now:     time.Now,
	}
}

// SetClock 替换时钟
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Layout 存储目录布局
func (s *Service) Layout() *storage.Layout {
	return s.layout
}

// Upload 校验并保存制品，写入版本记录后执行归档
func (s *Service) Upload(ctx context.Context, actor *models.User, in UploadInput) (*models.Version, error) {
	log := logger.FromContext(ctx)

	u, err := in.Validate()
	if err != nil {
		s.metrics.RecordUpload("unknown", uploadRejected)
		return nil, err
	}

	// 文件头校验必须在任何写入之前完成
	content, err := checkMagic(u.fileType, in.File)
	if err != nil {
		s.metrics.RecordUpload(u.fileType, uploadRejected)
		return nil, err
	}

	unlock := s.locks.Lock(u.softwareName)
	defer unlock()

	name := storage.CanonicalName(u.softwareName, u.version, u.fileType)
	saved, err := s.layout.SaveCurrent(name, content, s.maxSize)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			s.metrics.RecordUpload(u.fileType, uploadRejected)
			return nil, ErrFileTooLarge
		}
		s.metrics.RecordUpload(u.fileType, uploadError)
		log.Error("保存制品文件失败", zap.String("file", name), zap.Error(err))
		return nil, &StorageError{Op: "save", Path: name, Err: err}
	}

	v := &models.Version{
		SoftwareName:    u.softwareName,
		Version:         u.version,
		FilePath:        saved.Path,
		FileSize:        saved.Size,
		FileType:        u.fileType,
		UpdateNotes:     u.updateNotes,
		TestDescription: u.testDescription,
		TestResult:      u.testResult,
		TestDuration:    u.testDuration,
		TestCompletedAt: u.testCompletedAt,
		TestID:          u.testID,
		DeveloperDRI:    u.developerDRI,
		UploadedAt:      s.now(),
	}
	if actor != nil {
		id := actor.ID
		v.UploaderID = &id
		v.UploadedBy = actor.Username
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if saved.Displaced != nil {
			if err := tx.Model(&models.Version{}).
				Where("file_path = ?", saved.Displaced.From).
				Update("file_path", saved.Displaced.To).Error; err != nil {
				return fmt.Errorf("更新被重命名文件的记录失败: %w", err)
			}
		}
		return tx.Create(v).Error
	})
	if err != nil {
		if derr := s.layout.Discard(saved); derr != nil {
			log.Error("回滚已保存文件失败", zap.String("path", saved.Path), zap.Error(derr))
		}
		s.metrics.RecordUpload(u.fileType, uploadError)
		log.Error("保存版本记录失败", zap.String("software", u.softwareName), zap.Error(err))
		return nil, fmt.Errorf("保存版本记录失败: %w", err)
	}

	log.Info("制品上传成功",
		zap.Uint("versionID", v.ID),
		zap.String("software", v.SoftwareName),
		zap.String("version", v.Version),
		zap.String("path", v.FilePath),
		zap.Int64("size", v.FileSize))
	s.metrics.RecordUpload(u.fileType, uploadSuccess)

	// 归档失败不影响本次上传，下一次上传或手动归档会重试
	if res, err := s.archiveLocked(ctx, v.SoftwareName); err != nil {
		log.Warn("归档历史版本未全部完成",
			zap.String("software", v.SoftwareName),
			zap.Int("moved", res.Moved),
			zap.Int("failed", res.Failed),
			zap.Error(err))
	}

	return v, nil
}

// ArchiveResult 一次归档的统计
type ArchiveResult struct {
	Moved   int `json:"moved"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Archive 将 softwareName 除最新版本外仍位于 current 目录的文件移入 history
func (s *Service) Archive(ctx context.Context, softwareName string) (ArchiveResult, error) {
	softwareName = storage.SecureFilename(softwareName)
	unlock := s.locks.Lock(softwareName)
	defer unlock()
	return s.archiveLocked(ctx, softwareName)
}

func (s *Service) archiveLocked(ctx context.Context, softwareName string) (ArchiveResult, error) {
	log := logger.FromContext(ctx)
	var res ArchiveResult

	var versions []models.Version
	if err := s.db.WithContext(ctx).
		Where("software_name = ?", softwareName).
		Order("uploaded_at DESC").
		Order("id DESC").
		Find(&versions).Error; err != nil {
		return res, fmt.Errorf("查询历史版本失败: %w", err)
	}
	if len(versions) < 2 {
		return res, nil
	}

	var errs []error
	for _, v := range versions[1:] {
		if !s.layout.InCurrent(v.FilePath) {
			continue
		}

		dst, err := s.layout.MoveToHistory(v.FilePath)
		if err != nil {
			if errors.Is(err, storage.ErrNotExist) {
				res.Skipped++
				log.Warn("待归档文件不存在，跳过", zap.Uint("versionID", v.ID), zap.String("path", v.FilePath))
				continue
			}
			res.Failed++
			s.metrics.RecordArchiveMove("failed")
			errs = append(errs, &StorageError{Op: "archive", Path: v.FilePath, Err: err})
			continue
		}

		archivedAt := s.now()
		if err := s.db.WithContext(ctx).Model(&models.Version{}).
			Where("id = ?", v.ID).
			Updates(map[string]interface{}{"file_path": dst, "archived_at": archivedAt}).Error; err != nil {
			if rerr := s.layout.Restore(storage.Move{From: v.FilePath, To: dst}); rerr != nil {
				log.Error("归档回滚失败", zap.String("path", dst), zap.Error(rerr))
			}
			res.Failed++
			s.metrics.RecordArchiveMove("failed")
			errs = append(errs, fmt.Errorf("更新版本 %d 路径失败: %w", v.ID, err))
			continue
		}

		res.Moved++
		s.metrics.RecordArchiveMove("success")
		log.Info("版本已归档",
			zap.Uint("versionID", v.ID),
			zap.String("from", v.FilePath),
			zap.String("to", dst))
	}

	return res, errors.Join(errs...)
}

// Download 一次下载：调用方负责关闭 File
type Download struct {
	Version *models.Version
	File    *os.File
	Info    os.FileInfo
	// Name 下载时使用的文件名
	Name string
}

// Download 打开制品文件并原子地增加下载计数
func (s *Service) Download(ctx context.Context, id uint) (*Download, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	f, info, err := storage.Open(v.FilePath)
	if err != nil {
		logger.FromContext(ctx).Error("制品文件无法打开",
			zap.Uint("versionID", v.ID),
			zap.String("path", v.FilePath),
			zap.Error(err))
		return nil, &StorageError{Op: "open", Path: v.FileName(), Err: err}
	}

	result := s.db.WithContext(ctx).Model(&models.Version{}).
		Where("id = ?", id).
		UpdateColumn("downloaded_count", gorm.Expr("downloaded_count + ?", 1))
	if result.Error != nil {
		_ = f.Close()
		return nil, fmt.Errorf("更新下载次数失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		_ = f.Close()
		return nil, ErrNotFound
	}

	var fresh models.Version
	if err := s.db.WithContext(ctx).Select("downloaded_count").Where("id = ?", id).Take(&fresh).Error; err == nil {
		v.DownloadedCount = fresh.DownloadedCount
	}

	s.metrics.RecordDownload(v.FileType)
	return &Download{
		Version: v,
		File:    f,
		Info:    info,
		Name:    storage.CanonicalName(v.SoftwareName, v.Version, v.FileType),
	}, nil
}

// Get 查询版本详情
func (s *Service) Get(ctx context.Context, id uint) (*models.Version, error) {
	var v models.Version
	if err := s.db.WithContext(ctx).First(&v, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询版本失败: %w", err)
	}
	return &v, nil
}

// Recent 最近上传的版本
func (s *Service) Recent(ctx context.Context, limit int) ([]models.Version, error) {
	if limit <= 0 {
		limit = 10
	}
	var versions []models.Version
	err := s.db.WithContext(ctx).
		Order("uploaded_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("查询最近版本失败: %w", err)
	}
	return versions, nil
}

// ListQuery 版本列表查询条件
type ListQuery struct {
	SoftwareName string
	TestResult   string
	Page         int
	PageSize     int
}

// List 分页查询版本
func (s *Service) List(ctx context.Context, q ListQuery) ([]models.Version, int64, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > 100 {
		q.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Version{})
	if q.SoftwareName != "" {
		query = query.Where("software_name = ?", storage.SecureFilename(q.SoftwareName))
	}
	if q.TestResult != "" {
		query = query.Where("test_result = ?", q.TestResult)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("获取版本总数失败: %w", err)
	}

	var versions []models.Version
	if err := query.Order("uploaded_at DESC").
		Order("id DESC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&versions).Error; err != nil {
		return nil, 0, fmt.Errorf("查询版本列表失败: %w", err)
	}
	return versions, total, nil
}

// ListItem 版本列表接口的条目
type ListItem struct {
	ID              uint    `json:"id"`
	Software        string  `json:"software"`
	Version         string  `json:"version"`
	TestResult      string  `json:"test_result"`
	TestID          string  `json:"test_id"`
	DeveloperDRI    string  `json:"developer_dri"`
	FileSizeMB      float64 `json:"file_size_mb"`
	UploadedAt      string  `json:"uploaded_at"`
	DownloadedCount int64   `json:"downloaded_count"`
}

// NewListItem 转换为列表条目
func NewListItem(v *models.Version) ListItem {
	return ListItem{
		ID:              v.ID,
		Software:        v.SoftwareName,
		Version:         v.Version,
		TestResult:      v.TestResult,
		TestID:          v.TestID,
		DeveloperDRI:    v.DeveloperDRI,
		FileSizeMB:      v.FileSizeMB(),
		UploadedAt:      v.UploadedAt.Format("2006-01-02 15:04"),
		DownloadedCount: v.DownloadedCount,
	}
}

// All 全部版本，按上传时间倒序
func (s *Service) All(ctx context.Context) ([]ListItem, error) {
	var versions []models.Version
	if err := s.db.WithContext(ctx).
		Order("uploaded_at DESC").
		Order("id DESC").
		Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("查询版本失败: %w", err)
	}

	items := make([]ListItem, 0, len(versions))
	for i := range versions {
		items = append(items, NewListItem(&versions[i]))
	}
	return items, nil
}
