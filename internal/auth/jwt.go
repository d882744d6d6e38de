package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/myysophia/artifact-manager/internal/config"
)

// DefaultTokenTTL 令牌默认有效期
const DefaultTokenTTL = 24 * time.Hour

// 定义错误
var (
	ErrInvalidToken = errors.New("令牌无效")
	ErrExpiredToken = errors.New("令牌已过期")
)

// Claims JWT声明
type Claims struct {
	UserID uint `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenManager 签发和校验会话令牌
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager 创建令牌管理器
func NewTokenManager(cfg *config.JWTConfig) *TokenManager {
	ttl := cfg.GetJWTExpiration()
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{
		secret: []byte(cfg.SecretKey),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL 令牌有效期
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// IssueToken 为用户签发令牌
func (m *TokenManager) IssueToken(userID uint) (string, error) {
	now := m.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("生成令牌失败: %w", err)
	}
	return tokenString, nil
}

// ParseToken 解析JWT令牌
func (m *TokenManager) ParseToken(tokenString string) (*Claims, error) {
	// 过期时间由注入的时钟校验
	parser := jwt.Parser{SkipClaimsValidation: true}
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}

	if claims.ExpiresAt == nil || !m.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrExpiredToken
	}
	return claims, nil
}

// VerifyToken 校验令牌并返回用户ID，不检查账户锁定和启用状态
func (m *TokenManager) VerifyToken(tokenString string) (uint, bool) {
	claims, err := m.ParseToken(tokenString)
	if err != nil {
		return 0, false
	}
	return claims.UserID, true
}
