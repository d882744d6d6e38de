package handlers

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/artifact-manager/internal/api/middleware"
	"github.com/myysophia/artifact-manager/internal/artifact"
	"github.com/myysophia/artifact-manager/internal/audit"
	"github.com/myysophia/artifact-manager/internal/db/models"
	"github.com/myysophia/artifact-manager/internal/logger"
	"github.com/myysophia/artifact-manager/internal/utils"
	"go.uber.org/zap"
)

// VersionHandler 制品版本处理器
type VersionHandler struct {
	*BaseHandler
	svc         *artifact.Service
	recentLimit int
}

// NewVersionHandler 创建制品版本处理器
func NewVersionHandler(base *BaseHandler, svc *artifact.Service, recentLimit int) *VersionHandler {
	if recentLimit <= 0 {
		recentLimit = 10
	}
	return &VersionHandler{
		BaseHandler: base,
		svc:         svc,
		recentLimit: recentLimit,
	}
}

// Recent 最近上传的版本
func (h *VersionHandler) Recent(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.recentLimit)))
	if err != nil || limit <= 0 || limit > 100 {
		limit = h.recentLimit
	}

	versions, err := h.svc.Recent(c.Request.Context(), limit)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("获取最近版本失败", zap.Error(err))
		h.InternalError(c, "获取最近版本失败")
		return
	}
	items := make([]artifact.ListItem, 0, len(versions))
	for i := range versions {
		items = append(items, artifact.NewListItem(&versions[i]))
	}
	h.Success(c, items)
}

// ListJSON 全部版本的简要列表，直接返回数组供外部脚本使用
func (h *VersionHandler) ListJSON(c *gin.Context) {
	items, err := h.svc.All(c.Request.Context())
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("获取版本列表失败", zap.Error(err))
		h.InternalError(c, "获取版本列表失败")
		return
	}
	c.JSON(http.StatusOK, items)
}

// List 分页查询版本
func (h *VersionHandler) List(c *gin.Context) {
	page, pageSize := pagination(c)
	versions, total, err := h.svc.List(c.Request.Context(), artifact.ListQuery{
		SoftwareName: c.Query("software_name"),
		TestResult:   c.Query("test_result"),
		Page:         page,
		PageSize:     pageSize,
	})
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("获取版本列表失败", zap.Error(err))
		h.InternalError(c, "获取版本列表失败")
		return
	}
	h.Success(c, pageData(versions, total, page, pageSize))
}

// Get 版本详情
func (h *VersionHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.BadRequest(c, "无效的版本ID")
		return
	}
	v, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.artifactError(c, err, "获取版本失败")
		return
	}
	h.Success(c, gin.H{
		"version":      v,
		"file_name":    v.FileName(),
		"file_size_mb": v.FileSizeMB(),
		"archived":     v.IsArchived(),
	})
}

// Upload 上传制品，multipart 表单字段与版本元数据同名
func (h *VersionHandler) Upload(c *gin.Context) {
	user := middleware.CurrentUser(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.uploadFailed(c, c.PostForm("software_name"), artifact.ErrFileTooLarge)
			return
		}
		h.uploadFailed(c, c.PostForm("software_name"), &artifact.ValidationError{Field: "file", Message: "解析上传表单失败"})
		return
	}

	in := artifact.UploadInput{
		SoftwareName:    c.PostForm("software_name"),
		Version:         c.PostForm("version"),
		UpdateNotes:     c.PostForm("update_notes"),
		TestDescription: c.PostForm("test_description"),
		TestResult:      c.PostForm("test_result"),
		TestDuration:    c.PostForm("test_duration"),
		TestCompletedAt: c.PostForm("test_completed_at"),
		TestID:          c.PostForm("test_id"),
		DeveloperDRI:    c.PostForm("developer_dri"),
	}
	if file != nil {
		defer file.Close()
		in.FileName = header.Filename
		in.File = file
	}

	v, err := h.svc.Upload(c.Request.Context(), user, in)
	if err != nil {
		h.uploadFailed(c, c.PostForm("software_name"), err)
		return
	}

	h.Audit(c, audit.Entry{
		User:         user,
		Action:       models.ActionUpload,
		ResourceType: models.ResourceVersion,
		ResourceID:   strconv.FormatUint(uint64(v.ID), 10),
		ResourceName: v.FileName(),
		Message:      "上传 " + v.SoftwareName + " " + v.Version,
	})
	utils.ResponseWithMsgAndData(c, "上传成功", v)
}

func (h *VersionHandler) uploadFailed(c *gin.Context, softwareName string, err error) {
	entry := audit.Entry{
		Action:       models.ActionUpload,
		ResourceType: models.ResourceVersion,
		ResourceName: softwareName,
		Status:       models.AuditFailed,
		Message:      err.Error(),
	}

	var verr *artifact.ValidationError
	var serr *artifact.StorageError
	switch {
	case errors.As(err, &verr):
		h.Audit(c, entry)
		utils.ResponseErrorWithData(c, utils.CodeInvalidParams, errors.New(verr.Message), gin.H{"field": verr.Field})
	case errors.Is(err, artifact.ErrFileTooLarge):
		h.Audit(c, entry)
		utils.ResponseError(c, utils.CodeFileTooLarge, nil)
	case errors.As(err, &serr):
		entry.Status = models.AuditError
		h.Audit(c, entry)
		utils.ResponseError(c, utils.CodeStorageError, errors.New("保存文件失败"))
	default:
		entry.Status = models.AuditError
		h.Audit(c, entry)
		logger.FromContext(c.Request.Context()).Error("上传制品失败", zap.Error(err))
		h.InternalError(c, "上传失败")
	}
}

// Download 下载制品并增加下载计数
func (h *VersionHandler) Download(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		h.BadRequest(c, "无效的版本ID")
		return
	}

	d, err := h.svc.Download(c.Request.Context(), id)
	if err != nil {
		h.Audit(c, audit.Entry{
			Action:       models.ActionDownload,
			ResourceType: models.ResourceVersion,
			ResourceID:   strconv.FormatUint(uint64(id), 10),
			Status:       models.AuditFailed,
			Message:      err.Error(),
		})
		h.artifactError(c, err, "下载失败")
		return
	}
	defer d.File.Close()

	h.Audit(c, audit.Entry{
		Action:       models.ActionDownload,
		ResourceType: models.ResourceVersion,
		ResourceID:   strconv.FormatUint(uint64(id), 10),
		ResourceName: d.Name,
		Message:      "下载 " + d.Version.SoftwareName + " " + d.Version.Version,
	})

	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Name}))
	http.ServeContent(c.Writer, c.Request, d.Name, d.Info.ModTime(), d.File)
}

// Analytics 统计概览
func (h *VersionHandler) Analytics(c *gin.Context) {
	stats, err := h.svc.Analytics(c.Request.Context())
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("获取统计数据失败", zap.Error(err))
		h.InternalError(c, "获取统计数据失败")
		return
	}
	h.Success(c, stats)
}

func (h *VersionHandler) artifactError(c *gin.Context, err error, fallback string) {
	var serr *artifact.StorageError
	switch {
	case errors.Is(err, artifact.ErrNotFound):
		utils.ResponseError(c, utils.CodeVersionNotFound, nil)
	case errors.As(err, &serr):
		utils.ResponseError(c, utils.CodeFileNotFound, nil)
	default:
		logger.FromContext(c.Request.Context()).Error(fallback, zap.Error(err))
		h.InternalError(c, fallback)
	}
}

// ArchiveRequest 手动归档请求
type ArchiveRequest struct {
	SoftwareName string `json:"software_name" validate:"required,max=100"`
}

// Archive 手动执行一次归档，用于重试之前失败的移动
func (h *VersionHandler) Archive(c *gin.Context) {
	var req ArchiveRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	res, err := h.svc.Archive(c.Request.Context(), req.SoftwareName)
	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("归档未全部完成",
			zap.String("software", req.SoftwareName),
			zap.Error(err))
		utils.ResponseErrorWithData(c, utils.CodeStorageError, errors.New("部分文件归档失败"), res)
		return
	}
	h.Success(c, res)
}
