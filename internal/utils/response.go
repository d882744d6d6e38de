package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/artifact-manager/internal/logger"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// 定义状态码，五位业务码的前三位即 HTTP 状态码
const (
	CodeSuccess       = 200 // 成功
	CodeInvalidParams = 400 // 参数错误
	CodeUnauthorized  = 401 // 未授权
	CodeForbidden     = 403 // 禁止访问
	CodeNotFound      = 404 // 资源不存在
	CodeInternalError = 500 // 服务器内部错误

	// 认证相关
	CodeInvalidCredentials = 40101 // 用户名或密码错误
	CodeAccountLocked      = 40102 // 账户已锁定
	CodeAccountDisabled    = 40103 // 账户已禁用

	// 资源冲突
	CodeUserExists = 40901 // 用户名或邮箱已存在
	CodeRoleExists = 40902 // 角色已存在
	CodeRoleInUse  = 40903 // 角色正在使用中

	// 制品相关
	CodeVersionNotFound = 40404 // 版本不存在
	CodeFileNotFound    = 40405 // 文件不存在
	CodeFileTooLarge    = 41301 // 文件过大
	CodeStorageError    = 50002 // 存储错误
)

// 对应的消息
var codeMsgMap = map[int]string{
	CodeSuccess:       "操作成功",
	CodeInvalidParams: "参数错误",
	CodeUnauthorized:  "未授权",
	CodeForbidden:     "禁止访问",
	CodeNotFound:      "资源不存在",
	CodeInternalError: "服务器内部错误",

	CodeInvalidCredentials: "用户名或密码错误",
	CodeAccountLocked:      "账户已锁定，请稍后再试",
	CodeAccountDisabled:    "账户已禁用",

	CodeUserExists: "用户名或邮箱已存在",
	CodeRoleExists: "角色已存在",
	CodeRoleInUse:  "角色正在使用中",

	CodeVersionNotFound: "版本不存在",
	CodeFileNotFound:    "文件不存在",
	CodeFileTooLarge:    "文件大小超过限制",
	CodeStorageError:    "存储错误",
}

// HTTPStatus 业务码对应的 HTTP 状态码
func HTTPStatus(code int) int {
	if code >= 10000 {
		code /= 100
	}
	if http.StatusText(code) == "" {
		return http.StatusInternalServerError
	}
	return code
}

// Message 业务码对应的默认消息
func Message(code int) string {
	if msg, ok := codeMsgMap[code]; ok {
		return msg
	}
	return "未知错误"
}

// ResponseWithJSON 返回JSON响应
func ResponseWithJSON(c *gin.Context, code int, data interface{}) {
	c.JSON(HTTPStatus(code), Response{
		Code:    code,
		Message: Message(code),
		Data:    data,
	})
}

// ResponseWithData 返回成功响应，包含数据
func ResponseWithData(c *gin.Context, data interface{}) {
	ResponseWithJSON(c, CodeSuccess, data)
}

// ResponseSuccess 返回成功响应，不包含数据
func ResponseSuccess(c *gin.Context) {
	ResponseWithJSON(c, CodeSuccess, nil)
}

// ResponseWithMsg 返回带自定义消息的成功响应
func ResponseWithMsg(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
	})
}

// ResponseWithMsgAndData 返回带自定义消息和数据的成功响应
func ResponseWithMsgAndData(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// ResponseError 返回错误响应，err 不为空时使用其信息作为消息
func ResponseError(c *gin.Context, code int, err error) {
	ResponseErrorWithData(c, code, err, nil)
}

// ResponseErrorWithData 返回带附加数据的错误响应，例如校验失败的字段
func ResponseErrorWithData(c *gin.Context, code int, err error, data interface{}) {
	msg := Message(code)
	if err != nil {
		msg = err.Error()
	}

	status := HTTPStatus(code)
	fields := []zap.Field{
		zap.Int("code", code),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.String("message", msg),
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("API错误响应", fields...)
	} else {
		logger.FromContext(c.Request.Context()).Warn("API错误响应", fields...)
	}

	c.AbortWithStatusJSON(status, Response{
		Code:    code,
		Message: msg,
		Data:    data,
	})
}

// ResponseBadRequest 返回参数错误响应
func ResponseBadRequest(c *gin.Context, err error) {
	ResponseError(c, CodeInvalidParams, err)
}

// ResponseUnauthorized 返回未授权响应
func ResponseUnauthorized(c *gin.Context, err error) {
	ResponseError(c, CodeUnauthorized, err)
}

// ResponseForbidden 返回禁止访问响应
func ResponseForbidden(c *gin.Context, err error) {
	ResponseError(c, CodeForbidden, err)
}

// ResponseNotFound 返回资源不存在响应
func ResponseNotFound(c *gin.Context, err error) {
	ResponseError(c, CodeNotFound, err)
}

// ResponseInternalError 返回服务器内部错误响应
func ResponseInternalError(c *gin.Context, err error) {
	ResponseError(c, CodeInternalError, err)
}
