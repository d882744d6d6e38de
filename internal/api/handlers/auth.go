package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/myysophia/artifact-manager/internal/api/middleware"
	"github.com/myysophia/artifact-manager/internal/audit"
	"github.com/myysophia/artifact-manager/internal/auth"
	"github.com/myysophia/artifact-manager/internal/db/models"
	"github.com/myysophia/artifact-manager/internal/logger"
	"github.com/myysophia/artifact-manager/internal/observability"
	"github.com/myysophia/artifact-manager/internal/utils"
	"go.uber.org/zap"
)

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username   string `json:"username" validate:"required,min=3,max=32,username"`
	Password   string `json:"password" validate:"required,min=6,max=64"`
	Email      string `json:"email" validate:"required,email,max=120"`
	Phone      string `json:"phone" validate:"max=20"`
	Department string `json:"department" validate:"max=100"`
	FullName   string `json:"full_name" validate:"max=100"`
}

// ProfileRequest 个人资料更新请求，未提供的字段保持不变
type ProfileRequest struct {
	Email           *string `json:"email" validate:"omitempty,email,max=120"`
	Phone           *string `json:"phone" validate:"omitempty,max=20"`
	Department      *string `json:"department" validate:"omitempty,max=100"`
	FullName        *string `json:"full_name" validate:"omitempty,max=100"`
	CurrentPassword string  `json:"current_password"`
	NewPassword     string  `json:"new_password" validate:"omitempty,min=6,max=64"`
}

// CookieOptions 会话 Cookie 设置
type CookieOptions struct {
	Name   string
	Secure bool
}

// AuthHandler 认证处理器
type AuthHandler struct {
	*BaseHandler
	svc     *auth.Service
	metrics *observability.Metrics
	cookie  CookieOptions
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(base *BaseHandler, svc *auth.Service, metrics *observability.Metrics, cookie CookieOptions) *AuthHandler {
	return &AuthHandler{
		BaseHandler: base,
		svc:         svc,
		metrics:     metrics,
		cookie:      cookie,
	}
}

// Register 用户注册
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	user, err := h.svc.Register(c.Request.Context(), auth.RegisterInput{
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		Phone:      req.Phone,
		Department: req.Department,
		FullName:   req.FullName,
	})
	if err != nil {
		h.Audit(c, audit.Entry{
			Username:     req.Username,
			Action:       models.ActionRegister,
			ResourceType: models.ResourceUser,
			ResourceName: req.Username,
			Status:       models.AuditFailed,
			Message:      err.Error(),
		})
		if errors.Is(err, auth.ErrUsernameTaken) || errors.Is(err, auth.ErrEmailTaken) {
			utils.ResponseError(c, utils.CodeUserExists, err)
			return
		}
		logger.FromContext(c.Request.Context()).Error("注册用户失败", zap.Error(err))
		h.InternalError(c, "注册失败")
		return
	}

	h.Audit(c, audit.Entry{
		User:         user,
		Action:       models.ActionRegister,
		ResourceType: models.ResourceUser,
		ResourceID:   strconv.FormatUint(uint64(user.ID), 10),
		ResourceName: user.Username,
		Message:      "注册成功",
	})
	h.Success(c, user)
}

// Login 用户登录，成功后同时返回令牌和设置会话 Cookie
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	user, err := h.svc.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.loginFailed(c, req.Username, user, err)
		return
	}

	token, err := h.svc.IssueToken(user.ID)
	if err != nil {
		logger.FromContext(c.Request.Context()).Error("生成令牌失败", zap.Error(err))
		h.InternalError(c, "生成令牌失败")
		return
	}

	ttl := h.svc.Tokens().TTL()
	h.setCookie(c, token, int(ttl.Seconds()))
	h.metrics.RecordLogin("success")
	h.Audit(c, audit.Entry{
		User:         user,
		Action:       models.ActionLogin,
		ResourceType: models.ResourceUser,
		ResourceID:   strconv.FormatUint(uint64(user.ID), 10),
		ResourceName: user.Username,
		Message:      "登录成功",
	})

	h.Success(c, gin.H{
		"token":      token,
		"expires_in": int(ttl.Seconds()),
		"user":       user,
	})
}

func (h *AuthHandler) loginFailed(c *gin.Context, username string, user *models.User, err error) {
	entry := audit.Entry{
		User:         user,
		Username:     username,
		Action:       models.ActionLogin,
		ResourceType: models.ResourceUser,
		ResourceName: username,
		Status:       models.AuditFailed,
		Message:      err.Error(),
	}
	if user != nil {
		entry.ResourceID = strconv.FormatUint(uint64(user.ID), 10)
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.metrics.RecordLogin("failed")
		h.Audit(c, entry)
		utils.ResponseError(c, utils.CodeInvalidCredentials, nil)
	case errors.Is(err, auth.ErrAccountLocked):
		h.metrics.RecordLogin("locked")
		h.Audit(c, entry)
		utils.ResponseError(c, utils.CodeAccountLocked, nil)
	case errors.Is(err, auth.ErrAccountDisabled):
		h.metrics.RecordLogin("disabled")
		h.Audit(c, entry)
		utils.ResponseError(c, utils.CodeAccountDisabled, nil)
	default:
		h.metrics.RecordLogin("error")
		entry.Status = models.AuditError
		h.Audit(c, entry)
		logger.FromContext(c.Request.Context()).Error("登录失败", zap.String("username", username), zap.Error(err))
		h.InternalError(c, "登录失败")
	}
}

// Logout 退出登录，清除会话 Cookie
func (h *AuthHandler) Logout(c *gin.Context) {
	user := middleware.CurrentUser(c)
	h.setCookie(c, "", -1)
	h.Audit(c, audit.Entry{
		User:         user,
		Action:       models.ActionLogout,
		ResourceType: models.ResourceUser,
		ResourceID:   strconv.FormatUint(uint64(user.ID), 10),
		ResourceName: user.Username,
		Message:      "退出登录",
	})
	utils.ResponseWithMsg(c, "已退出登录")
}

// GetProfile 获取当前用户信息
func (h *AuthHandler) GetProfile(c *gin.Context) {
	user := middleware.CurrentUser(c)
	permissions := []string{}
	if user.Role != nil {
		permissions = user.Role.PermissionNames()
	}
	h.Success(c, gin.H{
		"user":        user,
		"permissions": permissions,
	})
}

// UpdateProfile 更新当前用户资料
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req ProfileRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	user := middleware.CurrentUser(c)
	updated, err := h.svc.UpdateProfile(c.Request.Context(), user, auth.ProfileInput{
		Email:           req.Email,
		Phone:           req.Phone,
		Department:      req.Department,
		FullName:        req.FullName,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})

	entry := audit.Entry{
		User:         user,
		Action:       models.ActionProfileUpdate,
		ResourceType: models.ResourceUser,
		ResourceID:   strconv.FormatUint(uint64(user.ID), 10),
		ResourceName: user.Username,
		Message:      "更新个人资料",
	}
	if err != nil {
		entry.Status = models.AuditFailed
		entry.Message = err.Error()
		h.Audit(c, entry)
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			utils.ResponseError(c, utils.CodeUserExists, err)
		case errors.Is(err, auth.ErrWrongPassword):
			h.BadRequest(c, err.Error())
		default:
			logger.FromContext(c.Request.Context()).Error("更新个人资料失败", zap.Error(err))
			h.InternalError(c, "更新个人资料失败")
		}
		return
	}

	if req.NewPassword != "" {
		entry.Message = "更新个人资料并修改密码"
	}
	h.Audit(c, entry)
	h.Success(c, updated)
}

func (h *AuthHandler) setCookie(c *gin.Context, value string, maxAge int) {
	if h.cookie.Name == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", "", h.cookie.Secure, true)
}
