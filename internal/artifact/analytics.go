package artifact

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/myysophia/artifact-manager/internal/db/models"
)

// topDownloadsLimit 下载排行条数
const topDownloadsLimit = 10

// Bucket 分组计数
type Bucket struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Analytics 统计概览
type Analytics struct {
	TotalVersions  int64      `json:"total_versions"`
	TotalSoftware  int64      `json:"total_software"`
	TotalDownloads int64      `json:"total_downloads"`
	TotalSizeMB    float64    `json:"total_size_mb"`
	ByMonth        []Bucket   `json:"by_month"`
	ByTestResult   []Bucket   `json:"by_test_result"`
	ByFileType     []Bucket   `json:"by_file_type"`
	TopDownloads   []ListItem `json:"top_downloads"`
}

// Analytics 汇总版本统计
func (s *Service) Analytics(ctx context.Context) (*Analytics, error) {
	db := s.db.WithContext(ctx)
	out := &Analytics{}

	var totals struct {
		Versions  int64
		Software  int64
		Downloads int64
		Size      int64
	}
	if err := db.Model(&models.Version{}).
		Select("COUNT(*) AS versions, COUNT(DISTINCT software_name) AS software, " +
			"COALESCE(SUM(downloaded_count), 0) AS downloads, COALESCE(SUM(file_size), 0) AS size").
		Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("统计版本总数失败: %w", err)
	}
	out.TotalVersions = totals.Versions
	out.TotalSoftware = totals.Software
	out.TotalDownloads = totals.Downloads
	out.TotalSizeMB = (&models.Version{FileSize: totals.Size}).FileSizeMB()

	// 月份在内存中分组，避免依赖数据库的日期函数
	var uploadedAt []time.Time
	if err := db.Model(&models.Version{}).Pluck("uploaded_at", &uploadedAt).Error; err != nil {
		return nil, fmt.Errorf("统计上传月份失败: %w", err)
	}
	out.ByMonth = groupByMonth(uploadedAt)

	var err error
	if out.ByTestResult, err = s.groupCount(ctx, "test_result"); err != nil {
		return nil, err
	}
	if out.ByFileType, err = s.groupCount(ctx, "file_type"); err != nil {
		return nil, err
	}

	var top []models.Version
	if err := db.Where("downloaded_count > 0").
		Order("downloaded_count DESC").
		Order("id ASC").
		Limit(topDownloadsLimit).
		Find(&top).Error; err != nil {
		return nil, fmt.Errorf("查询下载排行失败: %w", err)
	}
	out.TopDownloads = make([]ListItem, 0, len(top))
	for i := range top {
		out.TopDownloads = append(out.TopDownloads, NewListItem(&top[i]))
	}

	return out, nil
}

func (s *Service) groupCount(ctx context.Context, column string) ([]Bucket, error) {
	buckets := []Bucket{}
	err := s.db.WithContext(ctx).Model(&models.Version{}).
		Select(column + " AS name, COUNT(*) AS count").
		Group(column).
		Order("count DESC").
		Order(column).
		Scan(&buckets).Error
	if err != nil {
		return nil, fmt.Errorf("按 %s 分组统计失败: %w", column, err)
	}
	return buckets, nil
}

// groupByMonth 按月份升序计数，月份格式 2006-01
func groupByMonth(times []time.Time) []Bucket {
	counts := make(map[string]int64)
	for _, t := range times {
		counts[t.Format("2006-01")]++
	}
	buckets := make([]Bucket, 0, len(counts))
	for month, n := range counts {
		buckets = append(buckets, Bucket{Name: month, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Name < buckets[j].Name })
	return buckets
}
