package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/myysophia/artifact-manager/internal/db/models"
	"github.com/myysophia/artifact-manager/internal/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 登录锁定策略
const (
	MaxFailedAttempts = 5
	LockoutDuration   = 15 * time.Minute
)

// 认证错误，对外只暴露通用提示
var (
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrAccountLocked      = errors.New("账户已被锁定，请稍后再试")
	ErrAccountDisabled    = errors.New("账户已被禁用")
	ErrUsernameTaken      = errors.New("用户名已存在")
	ErrEmailTaken         = errors.New("邮箱已被注册")
	ErrWrongPassword      = errors.New("原密码错误")
)

// Service 认证服务
type Service struct {
	db          *gorm.DB
	tokens      *TokenManager
	defaultRole string
	now         func() time.Time
}

// NewService 创建认证服务
func NewService(db *gorm.DB, tokens *TokenManager, defaultRole string) *Service {
	return &Service{
		db:          db,
		tokens:      tokens,
		defaultRole: defaultRole,
		now:         time.Now,
	}
}

// SetClock 替换时钟
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.tokens.now = now
}

// Tokens 令牌管理器
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// RegisterInput 注册参数
type RegisterInput struct {
	Username   string
	Email      string
	Password   string
	Phone      string
	Department string
	FullName   string
}

// Register 注册新用户并分配默认角色
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", in.Username).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("检查用户名失败: %w", err)
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", in.Email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("检查邮箱失败: %w", err)
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		Phone:        strings.TrimSpace(in.Phone),
		Department:   strings.TrimSpace(in.Department),
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: hash,
		IsActive:     true,
	}

	if s.defaultRole != "" {
		var role models.Role
		err := s.db.WithContext(ctx).Where("name = ?", s.defaultRole).First(&role).Error
		switch {
		case err == nil:
			user.RoleID = &role.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			logger.Warn("默认角色不存在，用户将没有角色", zap.String("role", s.defaultRole))
		default:
			return nil, fmt.Errorf("获取默认角色失败: %w", err)
		}
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}
	return s.loadUser(ctx, user.ID)
}

// Authenticate 校验用户名和密码。
// 连续失败 MaxFailedAttempts 次后锁定 LockoutDuration；成功后清空失败计数。
// 返回的 user 在用户存在时非空，便于审计记录。
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}

	now := s.now()
	if user.IsLocked(now) {
		return &user, ErrAccountLocked
	}
	if !user.IsActive {
		return &user, ErrAccountDisabled
	}

	// 锁定已过期，重新计数
	if user.LockedUntil != nil {
		user.LockedUntil = nil
		user.FailedLoginAttempts = 0
	}

	if !CheckPassword(user.PasswordHash, password) {
		user.FailedLoginAttempts++
		updates := map[string]interface{}{
			"failed_login_attempts": user.FailedLoginAttempts,
			"locked_until":          nil,
		}
		if user.FailedLoginAttempts >= MaxFailedAttempts {
			until := now.Add(LockoutDuration)
			user.LockedUntil = &until
			updates["locked_until"] = until
			logger.Warn("登录失败次数过多，账户已锁定",
				zap.String("username", user.Username),
				zap.Time("locked_until", until))
		}
		if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
			return &user, fmt.Errorf("更新登录失败次数失败: %w", err)
		}
		return &user, ErrInvalidCredentials
	}

	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"last_login_at":         now,
	}).Error; err != nil {
		return &user, fmt.Errorf("更新登录状态失败: %w", err)
	}

	return s.loadUser(ctx, user.ID)
}

// IssueToken 为用户签发令牌
func (s *Service) IssueToken(userID uint) (string, error) {
	return s.tokens.IssueToken(userID)
}

// VerifyToken 校验令牌
func (s *Service) VerifyToken(token string) (uint, bool) {
	return s.tokens.VerifyToken(token)
}

// CurrentUser 由令牌得到当前用户：校验令牌、查询用户并预加载角色权限。
// 令牌无效或用户不存在时返回 nil, nil。
func (s *Service) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}
	userID, ok := s.tokens.VerifyToken(token)
	if !ok {
		return nil, nil
	}
	user, err := s.loadUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	return user, err
}

// ProfileInput 个人资料更新参数，nil 表示不修改
type ProfileInput struct {
	Email           *string
	Phone           *string
	Department      *string
	FullName        *string
	CurrentPassword string
	NewPassword     string
}

// UpdateProfile 更新个人资料，修改密码时需要校验原密码
func (s *Service) UpdateProfile(ctx context.Context, user *models.User, in ProfileInput) (*models.User, error) {
	updates := map[string]interface{}{}

	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email != user.Email {
			var count int64
			if err := s.db.WithContext(ctx).Model(&models.User{}).
				Where("email = ? AND id <> ?", email, user.ID).Count(&count).Error; err != nil {
				return nil, fmt.Errorf("检查邮箱失败: %w", err)
			}
			if count > 0 {
				return nil, ErrEmailTaken
			}
			updates["email"] = email
		}
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.Department != nil {
		updates["department"] = strings.TrimSpace(*in.Department)
	}
	if in.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*in.FullName)
	}

	if in.NewPassword != "" {
		if !CheckPassword(user.PasswordHash, in.CurrentPassword) {
			return nil, ErrWrongPassword
		}
		hash, err := HashPassword(in.NewPassword)
		if err != nil {
			return nil, err
		}
		updates["password_hash"] = hash
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("更新个人资料失败: %w", err)
		}
	}
	return s.loadUser(ctx, user.ID)
}

// loadUser 查询用户并预加载角色和权限
func (s *Service) loadUser(ctx context.Context, id uint) (*models.User, error) {
	return LoadUser(s.db.WithContext(ctx), id)
}
