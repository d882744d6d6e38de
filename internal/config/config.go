package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 ARTIFACT_JWT_SECRET_KEY
const EnvPrefix = "ARTIFACT"

type Config struct {
	App      AppConfig
	JWT      JWTConfig
	Database DatabaseConfig
	Log      LogConfig
	Storage  StorageConfig
	Auth     AuthConfig
}

type AppConfig struct {
	Name          string
	Env           string
	Version       string
	Host          string
	Port          int
	ReadTimeout   int   `mapstructure:"read_timeout"`
	WriteTimeout  int   `mapstructure:"write_timeout"`
	IdleTimeout   int   `mapstructure:"idle_timeout"`
	MaxUploadSize int64 `mapstructure:"max_upload_size"` // 上传文件大小上限（字节）
	RecentLimit   int   `mapstructure:"recent_limit"`    // 首页展示的最近版本数量
}

type JWTConfig struct {
	SecretKey  string `mapstructure:"secret_key"`
	ExpiresIn  int    `mapstructure:"expires_in"`
	Issuer     string
	CookieName string `mapstructure:"cookie_name"`
}

type DatabaseConfig struct {
	Driver          string // postgres 或 sqlite
	Host            string
	Port            int
	Username        string
	Password        string
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	Path            string // sqlite 数据库文件路径
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type LogConfig struct {
	Level    string
	Format   string
	Output   string
	FilePath string `mapstructure:"file_path"`
}

type StorageConfig struct {
	TestingDir string `mapstructure:"testing_dir"`
	CurrentDir string `mapstructure:"current_dir"`
	HistoryDir string `mapstructure:"history_dir"`
}

type AuthConfig struct {
	DefaultRole string `mapstructure:"default_role"` // 注册用户的默认角色
}

var globalConfig *Config

// setDefaults 设置默认配置
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "artifact-manager")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.read_timeout", 60)
	v.SetDefault("app.write_timeout", 300)
	v.SetDefault("app.idle_timeout", 120)
	v.SetDefault("app.max_upload_size", 200<<20)
	v.SetDefault("app.recent_limit", 20)

	v.SetDefault("jwt.secret_key", "")
	v.SetDefault("jwt.expires_in", 86400)
	v.SetDefault("jwt.issuer", "artifact-manager")
	v.SetDefault("jwt.cookie_name", "session_token")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "data/artifacts.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.conn_max_lifetime", 3600)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("storage.testing_dir", "storage/testing")
	v.SetDefault("storage.current_dir", "storage/current")
	v.SetDefault("storage.history_dir", "storage/history")

	v.SetDefault("auth.default_role", "role_visitor")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfigWithEnv 根据环境加载多个配置文件
// 支持传入目录（会自动寻找目录下的 app.yaml）或者特定配置文件路径
// env 参数可选："dev", "test", "prod"，默认为 "dev"
func LoadConfigWithEnv(configPath string, env string) (*Config, error) {
	if env == "" {
		env = "dev"
	}

	v := newViper()

	configPaths := []string{
		configPath,
		"./configs",
		"../configs",
		"../../configs",
	}

	configFound := false
	var configFile string

	for _, path := range configPaths {
		if path == "" {
			continue
		}
		if isDir(path) {
			baseConfigFile := filepath.Join(path, "app.yaml")
			if fileExists(baseConfigFile) {
				v.AddConfigPath(path)
				v.SetConfigName("app")
				configFile = baseConfigFile
				configFound = true
				break
			}
		} else if fileExists(path) {
			v.SetConfigFile(path)
			configFile = path
			configFound = true
			break
		}
	}

	if !configFound {
		return nil, fmt.Errorf("无法找到配置文件，已尝试路径: %v", configPaths)
	}

	fmt.Printf("使用配置文件: %s\n", configFile)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取基本配置文件失败: %w", err)
	}

	// 读取环境特定配置
	configDir := filepath.Dir(v.ConfigFileUsed())
	envConfigFile := filepath.Join(configDir, fmt.Sprintf("app.%s.yaml", env))
	if fileExists(envConfigFile) {
		envViper := viper.New()
		envViper.SetConfigFile(envConfigFile)

		if err := envViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取环境配置文件失败: %w", err)
		}

		if err := v.MergeConfigMap(envViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("合并环境配置失败: %w", err)
		}

		fmt.Printf("已合并环境配置: %s\n", envConfigFile)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	config.App.Env = env

	if err := config.Validate(); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Default 返回仅包含默认值和环境变量的配置，用于没有配置文件的场景
func Default() *Config {
	v := newViper()
	config := &Config{}
	_ = v.Unmarshal(config)
	return config
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("jwt.secret_key 不能为空")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}
	if c.App.MaxUploadSize <= 0 {
		return fmt.Errorf("app.max_upload_size 必须大于0")
	}
	return nil
}

// 检查是否是目录
func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// 检查文件是否存在
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.DBName, c.SSLMode)
}

// GetConnMaxLifetime 获取数据库连接最大生命周期
func (c *DatabaseConfig) GetConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Second
}

// GetJWTExpiration 获取 JWT 过期时间
func (c *JWTConfig) GetJWTExpiration() time.Duration {
	return time.Duration(c.ExpiresIn) * time.Second
}

func (c *AppConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Second
}

func (c *AppConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

func (c *AppConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeout) * time.Second
}

// Addr 监听地址
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
