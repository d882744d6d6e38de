package main

import (
	"errors"
	"os"

	"github.com/myysophia/artifact-manager/internal/db"
	"github.com/myysophia/artifact-manager/internal/db/seed"
	"github.com/myysophia/artifact-manager/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// AdminPasswordEnv 管理员密码环境变量，避免在命令行中暴露
const AdminPasswordEnv = "ARTIFACT_ADMIN_PASSWORD"

var admin seed.AdminOptions

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "创建或更新超级管理员账户",
	RunE: func(cmd *cobra.Command, args []string) error {
		if admin.Password == "" {
			admin.Password = os.Getenv(AdminPasswordEnv)
		}
		if admin.Password == "" {
			return errors.New("请通过 --admin-password 或 " + AdminPasswordEnv + " 指定管理员密码")
		}

		_, conn, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer db.Close()

		if err := seed.Run(cmd.Context(), conn); err != nil {
			return err
		}
		user, err := seed.EnsureAdmin(cmd.Context(), conn, admin)
		if err != nil {
			return err
		}
		logger.Info("管理员账户已就绪", zap.Uint("userID", user.ID), zap.String("username", user.Username))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&admin.Username, "admin-username", "admin", "管理员用户名")
	seedCmd.Flags().StringVar(&admin.Password, "admin-password", "", "管理员密码，也可通过 "+AdminPasswordEnv+" 设置")
	seedCmd.Flags().StringVar(&admin.Email, "admin-email", "admin@example.com", "管理员邮箱")
	seedCmd.Flags().StringVar(&admin.FullName, "admin-full-name", "系统管理员", "管理员姓名")
	seedCmd.Flags().StringVar(&admin.Department, "admin-department", "", "管理员部门")
}
