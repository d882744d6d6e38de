package storage

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/myysophia/artifact-manager/internal/config"
	"github.com/myysophia/artifact-manager/internal/logger"
	"go.uber.org/zap"
)

// ErrTooLarge 文件超过大小限制
var ErrTooLarge = errors.New("文件超过大小限制")

// ErrNotExist 源文件不存在
var ErrNotExist = errors.New("文件不存在")

// Layout 制品存储目录：testing 预留，current 存放最新版本，history 存放历史版本
type Layout struct {
	TestingDir string
	CurrentDir string
	HistoryDir string
	now        func() time.Time
}

// NewLayout 根据配置创建存储目录布局，路径统一转换为绝对路径
func NewLayout(cfg *config.StorageConfig) (*Layout, error) {
	l := &Layout{now: time.Now}
	var err error
	if l.TestingDir, err = filepath.Abs(cfg.TestingDir); err != nil {
		return nil, err
	}
	if l.CurrentDir, err = filepath.Abs(cfg.CurrentDir); err != nil {
		return nil, err
	}
	if l.HistoryDir, err = filepath.Abs(cfg.HistoryDir); err != nil {
		return nil, err
	}
	return l, nil
}

// SetClock 替换时钟，用于冲突重命名的时间戳
func (l *Layout) SetClock(now func() time.Time) {
	l.now = now
}

// Roots 返回全部存储目录
func (l *Layout) Roots() map[string]string {
	return map[string]string{
		"testing": l.TestingDir,
		"current": l.CurrentDir,
		"history": l.HistoryDir,
	}
}

// Ensure 创建存储目录
func (l *Layout) Ensure() error {
	for name, dir := range l.Roots() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建%s目录失败: %w", name, err)
		}
	}
	return nil
}

// CheckWritable 通过写入并删除探测文件检查目录可写
func CheckWritable(dir string) error {
	probe := filepath.Join(dir, ".probe-"+uuid.NewString())
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return err
	}
	return os.Remove(probe)
}

// InCurrent 路径是否位于 current 目录下
func (l *Layout) InCurrent(path string) bool {
	return within(l.CurrentDir, path)
}

// InHistory 路径是否位于 history 目录下
func (l *Layout) InHistory(path string) bool {
	return within(l.HistoryDir, path)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// SaveResult 保存结果
type SaveResult struct {
	Path string
	Size int64
	// Displaced 同名文件被重命名时记录原路径和新路径
	Displaced *Move
}

// Move 一次文件移动
type Move struct {
	From string
	To   string
}

// SaveCurrent 将内容写入 current 目录下的 name。
// 先写临时文件再重命名；超过 limit 字节返回 ErrTooLarge 且不留下任何文件。
// 同名文件已存在时先将其重命名为带时间戳的名字。
func (l *Layout) SaveCurrent(name string, r io.Reader, limit int64) (*SaveResult, error) {
	if err := os.MkdirAll(l.CurrentDir, 0755); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(l.CurrentDir, ".upload-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if limit <= 0 {
		limit = math.MaxInt64 - 1
	}
	lr := &limitedReader{r: r, remaining: limit}
	written, err := io.Copy(tmp, lr)
	if err != nil {
		cleanup()
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	target := filepath.Join(l.CurrentDir, name)
	result := &SaveResult{Path: target, Size: written}

	if _, err := os.Stat(target); err == nil {
		displaced := l.timestamped(target)
		if err := os.Rename(target, displaced); err != nil {
			_ = os.Remove(tmpPath)
			return nil, fmt.Errorf("重命名已存在文件失败: %w", err)
		}
		result.Displaced = &Move{From: target, To: displaced}
		logger.Warn("同名文件已存在，已重命名",
			zap.String("from", target),
			zap.String("to", displaced))
	}

	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		if result.Displaced != nil {
			_ = os.Rename(result.Displaced.To, result.Displaced.From)
		}
		return nil, fmt.Errorf("保存文件失败: %w", err)
	}
	return result, nil
}

// Discard 撤销一次保存：删除新文件并恢复被重命名的旧文件
func (l *Layout) Discard(res *SaveResult) error {
	if res == nil {
		return nil
	}
	if err := os.Remove(res.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if res.Displaced != nil {
		return os.Rename(res.Displaced.To, res.Displaced.From)
	}
	return nil
}

// MoveToHistory 将 current 下的文件移动到 history 目录，保持文件名；
// history 中已有同名文件时追加时间戳。源文件不存在返回 ErrNotExist。
func (l *Layout) MoveToHistory(src string) (string, error) {
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotExist
		}
		return "", err
	}
	if err := os.MkdirAll(l.HistoryDir, 0755); err != nil {
		return "", err
	}

	dst := filepath.Join(l.HistoryDir, filepath.Base(src))
	if _, err := os.Stat(dst); err == nil {
		dst = l.timestamped(dst)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// Restore 将文件移回原位置
func (l *Layout) Restore(m Move) error {
	return os.Rename(m.To, m.From)
}

// Open 打开文件用于下载
func Open(path string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotExist
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

// timestamped 在扩展名前追加时间戳，例如 App_v1.0_20240101120000.dll
func (l *Layout) timestamped(path string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	stamp := l.now().Format("20060102150405")
	candidate := fmt.Sprintf("%s_%s%s", base, stamp, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%s_%d%s", base, stamp, i, ext)
	}
}

// limitedReader 读取超过 remaining 字节时返回 ErrTooLarge
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	if lr.remaining < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > lr.remaining+1 {
		p = p[:lr.remaining+1]
	}
	n, err := lr.r.Read(p)
	lr.remaining -= int64(n)
	if lr.remaining < 0 {
		return n, ErrTooLarge
	}
	return n, err
}
