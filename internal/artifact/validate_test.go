package artifact

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput(fileName, content string) UploadInput {
	return UploadInput{
		SoftwareName:    "App",
		Version:         "1.0",
		UpdateNotes:     "修复崩溃",
		TestDescription: "回归测试",
		TestResult:      "pass",
		TestDuration:    "30",
		TestCompletedAt: "2024-01-15T10:30",
		TestID:          "T-1",
		DeveloperDRI:    "bob",
		FileName:        fileName,
		File:            strings.NewReader(content),
	}
}

func TestValidateNormalizes(t *testing.T) {
	in := validInput("build.DLL", "MZ")
	in.SoftwareName = "  My App  "
	in.Version = " v2.1.0 "
	in.TestResult = "PASS"

	u, err := in.Validate()
	require.NoError(t, err)
	assert.Equal(t, "My_App", u.softwareName)
	assert.Equal(t, "2.1.0", u.version)
	assert.Equal(t, "dll", u.fileType)
	assert.Equal(t, "pass", u.testResult)
	require.NotNil(t, u.testDuration)
	assert.Equal(t, 30, *u.testDuration)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.Local), u.testCompletedAt)
}

func TestValidateRequiredFields(t *testing.T) {
	tests := []struct {
		field string
		clear func(in *UploadInput)
	}{
		{"software_name", func(in *UploadInput) { in.SoftwareName = "   " }},
		{"version", func(in *UploadInput) { in.Version = "" }},
		{"update_notes", func(in *UploadInput) { in.UpdateNotes = "" }},
		{"test_description", func(in *UploadInput) { in.TestDescription = "\t" }},
		{"test_result", func(in *UploadInput) { in.TestResult = "" }},
		{"test_completed_at", func(in *UploadInput) { in.TestCompletedAt = "" }},
		{"test_id", func(in *UploadInput) { in.TestID = "" }},
		{"developer_dri", func(in *UploadInput) { in.DeveloperDRI = " " }},
		{"file", func(in *UploadInput) { in.File = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			in := validInput("app.dll", "MZ")
			tt.clear(&in)
			_, err := in.Validate()

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "want ValidationError, got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(in *UploadInput)
	}{
		{"non ascii name", "software_name", func(in *UploadInput) { in.SoftwareName = "中文" }},
		{"only separators", "software_name", func(in *UploadInput) { in.SoftwareName = "../.." }},
		{"bad version", "version", func(in *UploadInput) { in.Version = "1.0/../x" }},
		{"only v", "version", func(in *UploadInput) { in.Version = "-1" }},
		{"unknown result", "test_result", func(in *UploadInput) { in.TestResult = "maybe" }},
		{"bad time", "test_completed_at", func(in *UploadInput) { in.TestCompletedAt = "yesterday" }},
		{"negative duration", "test_duration", func(in *UploadInput) { in.TestDuration = "-5" }},
		{"non numeric duration", "test_duration", func(in *UploadInput) { in.TestDuration = "abc" }},
		{"extension", "file", func(in *UploadInput) { in.FileName = "notes.txt" }},
		{"no extension", "file", func(in *UploadInput) { in.FileName = "binary" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput("app.dll", "MZ")
			tt.edit(&in)
			_, err := in.Validate()

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "want ValidationError, got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateOptionalDuration(t *testing.T) {
	in := validInput("app.so", "\x7fELF")
	in.TestDuration = ""
	u, err := in.Validate()
	require.NoError(t, err)
	assert.Nil(t, u.testDuration)
}

func TestParseCompletedAt(t *testing.T) {
	for _, s := range []string{
		"2024-03-01T09:15",
		"2024-03-01T09:15:30",
		"2024-03-01T09:15:30Z",
		"2024-03-01T09:15:30+08:00",
		"2024-03-01 09:15:30",
	} {
		_, ok := parseCompletedAt(s)
		assert.True(t, ok, s)
	}
	_, ok := parseCompletedAt("03/01/2024")
	assert.False(t, ok)
}

func TestNormalizeVersion(t *testing.T) {
	assert.Equal(t, "1.2.3", NormalizeVersion("v1.2.3"))
	assert.Equal(t, "1.2.3", NormalizeVersion("V1.2.3"))
	assert.Equal(t, "v", NormalizeVersion("v"))
	assert.Equal(t, "2.0-rc1", NormalizeVersion(" 2.0-rc1 "))
}

func TestCheckMagic(t *testing.T) {
	tests := []struct {
		fileType string
		content  string
		ok       bool
	}{
		{"dll", "MZ\x90\x00rest", true},
		{"exe", "MZ", true},
		{"so", "\x7fELF\x02\x01", true},
		{"apk", "PK\x03\x04manifest", true},
		{"jar", "PK\x03\x04", true},
		{"dll", "PK\x03\x04", false},
		{"so", "MZ", false},
		{"apk", "PK", false},
		{"exe", "", false},
	}
	for _, tt := range tests {
		r, err := checkMagic(tt.fileType, strings.NewReader(tt.content))
		if !tt.ok {
			assert.Error(t, err, "%s %q", tt.fileType, tt.content)
			continue
		}
		require.NoError(t, err, "%s %q", tt.fileType, tt.content)

		// 读取的文件头会被放回
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, tt.content, string(data))
	}
}
