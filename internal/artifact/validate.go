package artifact

import (
	"bytes"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/myysophia/artifact-manager/internal/db/models"
	"github.com/myysophia/artifact-manager/internal/storage"
)

// 允许上传的文件类型及其文件头
var magicNumbers = map[string][]byte{
	"dll": []byte("MZ"),
	"exe": []byte("MZ"),
	"so":  []byte("\x7fELF"),
	"apk": []byte("PK\x03\x04"),
	"jar": []byte("PK\x03\x04"),
}

// magicLen 最长文件头长度
const magicLen = 4

var versionPattern = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z._+-]*$`)

// 测试完成时间支持的格式，datetime-local 表单提交的是前两种
var completedAtLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// AllowedFileTypes 允许的扩展名
func AllowedFileTypes() []string {
	return []string{"dll", "exe", "apk", "so", "jar"}
}

// UploadInput 上传参数，字符串字段保持表单原样，由 Validate 规范化
type UploadInput struct {
	SoftwareName    string
	Version         string
	UpdateNotes     string
	TestDescription string
	TestResult      string
	TestDuration    string
	TestCompletedAt string
	TestID          string
	DeveloperDRI    string

	FileName string
	File     io.Reader
}

// upload 校验通过后的参数
type upload struct {
	softwareName    string
	version         string
	fileType        string
	updateNotes     string
	testDescription string
	testResult      string
	testDuration    *int
	testCompletedAt time.Time
	testID          string
	developerDRI    string
}

// Validate 校验元数据和文件扩展名，不读取文件内容
func (in *UploadInput) Validate() (*upload, error) {
	required := []struct {
		field string
		value string
		label string
	}{
		{"software_name", in.SoftwareName, "软件名称"},
		{"version", in.Version, "版本号"},
		{"update_notes", in.UpdateNotes, "更新说明"},
		{"test_description", in.TestDescription, "测试描述"},
		{"test_result", in.TestResult, "测试结果"},
		{"test_completed_at", in.TestCompletedAt, "测试完成时间"},
		{"test_id", in.TestID, "测试ID"},
		{"developer_dri", in.DeveloperDRI, "开发负责人"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, invalid(r.field, "%s不能为空", r.label)
		}
	}

	u := &upload{
		softwareName:    storage.SecureFilename(in.SoftwareName),
		version:         NormalizeVersion(in.Version),
		updateNotes:     strings.TrimSpace(in.UpdateNotes),
		testDescription: strings.TrimSpace(in.TestDescription),
		testResult:      strings.ToLower(strings.TrimSpace(in.TestResult)),
		testID:          strings.TrimSpace(in.TestID),
		developerDRI:    strings.TrimSpace(in.DeveloperDRI),
	}

	// 名称同时作为分组键、锁键和文件名前缀
	if u.softwareName == "" {
		return nil, invalid("software_name", "软件名称只能包含字母、数字、点、下划线和短横线: %s", in.SoftwareName)
	}

	if u.version == "" || !versionPattern.MatchString(u.version) {
		return nil, invalid("version", "版本号格式不正确: %s", in.Version)
	}

	switch u.testResult {
	case models.TestResultPass, models.TestResultFail, models.TestResultBlocked:
	default:
		return nil, invalid("test_result", "测试结果必须是 pass、fail 或 blocked")
	}

	completedAt, ok := parseCompletedAt(strings.TrimSpace(in.TestCompletedAt))
	if !ok {
		return nil, invalid("test_completed_at", "测试完成时间格式不正确")
	}
	u.testCompletedAt = completedAt

	if d := strings.TrimSpace(in.TestDuration); d != "" {
		seconds, err := strconv.Atoi(d)
		if err != nil || seconds < 0 {
			return nil, invalid("test_duration", "测试时长必须是非负整数（秒）")
		}
		u.testDuration = &seconds
	}

	if in.File == nil || strings.TrimSpace(in.FileName) == "" {
		return nil, invalid("file", "请选择要上传的文件")
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(in.FileName), "."))
	if _, ok := magicNumbers[ext]; !ok {
		return nil, invalid("file", "不支持的文件类型，仅允许 %s", strings.Join(AllowedFileTypes(), ", "))
	}
	u.fileType = ext

	return u, nil
}

// NormalizeVersion 去掉首尾空白和一个前导 v
func NormalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 1 && (v[0] == 'v' || v[0] == 'V') {
		v = v[1:]
	}
	return v
}

func parseCompletedAt(s string) (time.Time, bool) {
	for _, layout := range completedAtLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// checkMagic 读取文件头并与扩展名比对，返回可从头读取完整内容的 Reader
func checkMagic(fileType string, r io.Reader) (io.Reader, error) {
	head := make([]byte, magicLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	head = head[:n]

	if !bytes.HasPrefix(head, magicNumbers[fileType]) {
		return nil, invalid("file", "文件内容与扩展名 .%s 不符", fileType)
	}
	return io.MultiReader(bytes.NewReader(head), r), nil
}
