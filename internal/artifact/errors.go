package artifact

import (
	"errors"
	"fmt"
)

// ErrNotFound 版本不存在
var ErrNotFound = errors.New("版本不存在")

// ErrFileTooLarge 上传文件超过大小限制
var ErrFileTooLarge = errors.New("文件大小超过限制")

// ValidationError 上传参数校验失败，Field 为出错字段
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StorageError 文件系统操作失败
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("存储操作 %s 失败 (%s): %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
