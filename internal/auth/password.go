package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// 密码哈希格式：pbkdf2:sha256:<iterations>$<salt>$<hex>
const (
	hashMethod      = "pbkdf2:sha256"
	hashIterations  = 600000
	saltLength      = 16
	derivedKeyBytes = 32
	saltAlphabet    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var ErrMalformedHash = errors.New("密码哈希格式错误")

// HashPassword 对明文密码加盐哈希
func HashPassword(password string) (string, error) {
	salt, err := randomSalt(saltLength)
	if err != nil {
		return "", fmt.Errorf("生成盐值失败: %w", err)
	}
	sum := pbkdf2.Key([]byte(password), []byte(salt), hashIterations, derivedKeyBytes, sha256.New)
	return fmt.Sprintf("%s:%d$%s$%s", hashMethod, hashIterations, salt, hex.EncodeToString(sum)), nil
}

// CheckPassword 校验密码，兼容 bcrypt 旧哈希
func CheckPassword(hash, password string) bool {
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}

	iterations, salt, want, err := parseHash(hash)
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(password), []byte(salt), iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func parseHash(hash string) (int, string, []byte, error) {
	parts := strings.SplitN(hash, "$", 3)
	if len(parts) != 3 {
		return 0, "", nil, ErrMalformedHash
	}

	method := strings.Split(parts[0], ":")
	if len(method) != 3 || method[0] != "pbkdf2" || method[1] != "sha256" {
		return 0, "", nil, ErrMalformedHash
	}
	iterations, err := strconv.Atoi(method[2])
	if err != nil || iterations <= 0 {
		return 0, "", nil, ErrMalformedHash
	}

	want, err := hex.DecodeString(parts[2])
	if err != nil || len(want) == 0 {
		return 0, "", nil, ErrMalformedHash
	}
	return iterations, parts[1], want, nil
}

func randomSalt(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = saltAlphabet[int(b)%len(saltAlphabet)]
	}
	return string(buf), nil
}
