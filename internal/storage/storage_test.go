package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/myysophia/artifact-manager/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLayout(t *testing.T) *Layout {
	t.Helper()
	root := t.TempDir()
	l, err := NewLayout(&config.StorageConfig{
		TestingDir: filepath.Join(root, "testing"),
		CurrentDir: filepath.Join(root, "current"),
		HistoryDir: filepath.Join(root, "history"),
	})
	require.NoError(t, err)
	require.NoError(t, l.Ensure())
	l.SetClock(func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) })
	return l
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSecureFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"MyApp", "MyApp"},
		{"My App", "My_App"},
		{"../../etc/passwd", "etc_passwd"},
		{"  spaced  out  ", "spaced_out"},
		{"名字App", "App"},
		{"release-1.2_beta", "release-1.2_beta"},
		{".hidden", "hidden"},
		{"a/b\\c", "a_b_c"},
		{"Café", "Cafe"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SecureFilename(tt.in), tt.in)
	}
}

func TestCanonicalName(t *testing.T) {
	assert.Equal(t, "MyApp_v1.0.dll", CanonicalName("MyApp", "1.0", "dll"))
	assert.Equal(t, "tool_v1.0-rc1.so", CanonicalName("../tool", "1.0-rc1", "so"))
	assert.Equal(t, "My_App_v2.3.1.apk", CanonicalName("My App", "2.3.1", "APK"))
}

func TestSaveCurrent(t *testing.T) {
	l := newLayout(t)

	res, err := l.SaveCurrent("App_v1.dll", strings.NewReader("MZ-content"), 1024)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(l.CurrentDir, "App_v1.dll"), res.Path)
	assert.Equal(t, int64(10), res.Size)
	assert.Nil(t, res.Displaced)
	assert.Equal(t, []string{"App_v1.dll"}, listDir(t, l.CurrentDir))
	assert.True(t, l.InCurrent(res.Path))
	assert.False(t, l.InHistory(res.Path))
}

func TestSaveCurrentCollision(t *testing.T) {
	l := newLayout(t)

	_, err := l.SaveCurrent("App_v1.dll", strings.NewReader("old"), 1024)
	require.NoError(t, err)

	res, err := l.SaveCurrent("App_v1.dll", strings.NewReader("new"), 1024)
	require.NoError(t, err)
	require.NotNil(t, res.Displaced)
	assert.Equal(t, filepath.Join(l.CurrentDir, "App_v1_20240102030405.dll"), res.Displaced.To)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	old, err := os.ReadFile(res.Displaced.To)
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))

	require.NoError(t, l.Discard(res))
	data, err = os.ReadFile(filepath.Join(l.CurrentDir, "App_v1.dll"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	assert.Equal(t, []string{"App_v1.dll"}, listDir(t, l.CurrentDir))
}

func TestSaveCurrentTooLarge(t *testing.T) {
	l := newLayout(t)

	_, err := l.SaveCurrent("Big_v1.dll", bytes.NewReader(make([]byte, 2048)), 1024)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Empty(t, listDir(t, l.CurrentDir))

	res, err := l.SaveCurrent("Exact_v1.dll", bytes.NewReader(make([]byte, 1024)), 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), res.Size)
}

func TestMoveToHistory(t *testing.T) {
	l := newLayout(t)

	res, err := l.SaveCurrent("App_v1.dll", strings.NewReader("v1"), 0)
	require.NoError(t, err)

	dst, err := l.MoveToHistory(res.Path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(l.HistoryDir, "App_v1.dll"), dst)
	assert.True(t, l.InHistory(dst))
	assert.Empty(t, listDir(t, l.CurrentDir))

	_, err = l.MoveToHistory(res.Path)
	assert.ErrorIs(t, err, ErrNotExist)

	// history 中同名文件不会被覆盖
	res, err = l.SaveCurrent("App_v1.dll", strings.NewReader("v1-again"), 0)
	require.NoError(t, err)
	dst2, err := l.MoveToHistory(res.Path)
	require.NoError(t, err)
	assert.NotEqual(t, dst, dst2)
	assert.Len(t, listDir(t, l.HistoryDir), 2)

	require.NoError(t, l.Restore(Move{From: res.Path, To: dst2}))
	assert.Equal(t, []string{"App_v1.dll"}, listDir(t, l.CurrentDir))
}

func TestCheckWritable(t *testing.T) {
	l := newLayout(t)
	assert.NoError(t, CheckWritable(l.CurrentDir))
	assert.Error(t, CheckWritable(filepath.Join(l.CurrentDir, "missing")))
	assert.Empty(t, listDir(t, l.CurrentDir))
}

func TestWithin(t *testing.T) {
	assert.True(t, within("/data/current", "/data/current/a.dll"))
	assert.False(t, within("/data/current", "/data/current"))
	assert.False(t, within("/data/current", "/data/history/a.dll"))
	assert.False(t, within("/data/current", "/data/current-old/a.dll"))
}
