package utils

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/myysophia/artifact-manager/internal/logger"
	"go.uber.org/zap"
)

// 全局验证器
var (
	validate *validator.Validate
	trans    ut.Translator
	initOnce sync.Once
)

// InitValidator 初始化验证器，可重复调用
func InitValidator() {
	initOnce.Do(func() {
		validate = validator.New()

		// 错误信息中使用 json 字段名
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})

		zhTrans := zh.New()
		uni := ut.New(zhTrans, zhTrans)
		trans, _ = uni.GetTranslator("zh")

		if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
			logger.Error("注册验证器翻译失败", zap.Error(err))
		}

		registerCustomValidators()
	})
}

// registerCustomValidators 注册自定义验证器
func registerCustomValidators() {
	register := func(tag, msg string, fn validator.Func) {
		if err := validate.RegisterValidation(tag, fn); err != nil {
			logger.Error("注册自定义验证器失败", zap.String("tag", tag), zap.Error(err))
			return
		}
		_ = validate.RegisterTranslation(tag, trans,
			func(ut ut.Translator) error { return ut.Add(tag, "{0}"+msg, true) },
			func(ut ut.Translator, fe validator.FieldError) string {
				t, _ := ut.T(tag, fe.Field())
				return t
			})
	}

	register("test_result", "必须是 pass、fail 或 blocked", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(fl.Field().String()) {
		case "", "pass", "fail", "blocked":
			return true
		}
		return false
	})

	// 用户名只允许字母、数字、下划线、点和短横线
	register("username", "只能包含字母、数字、下划线、点和短横线", func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '.' || r == '-') {
				return false
			}
		}
		return true
	})
}

// Validate 校验结构体并翻译错误信息
func Validate(obj interface{}) error {
	InitValidator()
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		errMsgs := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			errMsgs = append(errMsgs, e.Translate(trans))
		}
		return errors.New(strings.Join(errMsgs, "; "))
	}
	return err
}

// BindAndValidate 绑定并验证请求数据
func BindAndValidate(c *gin.Context, obj interface{}) error {
	var err error
	switch c.Request.Method {
	case "GET":
		err = c.ShouldBindQuery(obj)
	case "POST", "PUT", "PATCH":
		contentType := c.GetHeader("Content-Type")
		if strings.Contains(contentType, "application/json") {
			err = c.ShouldBindJSON(obj)
		} else if strings.Contains(contentType, "multipart/form-data") {
			err = c.ShouldBindWith(obj, binding.FormMultipart)
		} else {
			err = c.ShouldBind(obj)
		}
	default:
		err = c.ShouldBind(obj)
	}

	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("请求数据绑定失败",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		return err
	}

	if err := Validate(obj); err != nil {
		logger.FromContext(c.Request.Context()).Warn("数据验证失败",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		return err
	}
	return nil
}
