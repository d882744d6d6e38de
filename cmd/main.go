package main

import (
	"fmt"
	"os"

	"github.com/myysophia/artifact-manager/internal/config"
	"github.com/myysophia/artifact-manager/internal/db"
	"github.com/myysophia/artifact-manager/internal/logger"
	"github.com/myysophia/artifact-manager/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	configPath string
	env        string
)

var rootCmd = &cobra.Command{
	Use:   "artifact-manager",
	Short: "构建产物管理服务",
	Long:  `内部构建产物（DLL/EXE/APK/SO/JAR）的上传、版本管理与分发服务。`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs", "配置文件路径或目录")
	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", os.Getenv("APP_ENV"), "运行环境 dev/test/prod")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// bootstrap 加载配置、初始化日志和数据库并完成迁移
func bootstrap() (*config.Config, *gorm.DB, error) {
	cfg, err := config.LoadConfigWithEnv(configPath, env)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	if err := logger.InitLogger(&cfg.Log); err != nil {
		return nil, nil, fmt.Errorf("初始化日志系统失败: %w", err)
	}
	logger.Info("配置加载成功", zap.String("env", cfg.App.Env))

	utils.InitValidator()

	conn, err := db.Init(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	if err := db.AutoMigrate(conn); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return cfg, conn, nil
}
