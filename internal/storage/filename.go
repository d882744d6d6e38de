package storage

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SecureFilename 将任意字符串转换为安全的文件名片段：
// 只保留 ASCII 字母数字和 ._-，空白转为下划线，去掉首尾的 . 和 _
func SecureFilename(name string) string {
	name = norm.NFKD.String(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r > unicode.MaxASCII:
			continue
		case unicode.IsSpace(r), r == '/', r == '\\':
			b.WriteByte('_')
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), "._")
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return out
}

// CanonicalName 生成制品文件名 {名称}_v{版本}.{扩展名}
func CanonicalName(softwareName, version, ext string) string {
	return fmt.Sprintf("%s_v%s.%s", SecureFilename(softwareName), SecureFilename(version), strings.ToLower(ext))
}
