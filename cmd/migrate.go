package main

import (
	"github.com/myysophia/artifact-manager/internal/db"
	"github.com/myysophia/artifact-manager/internal/db/seed"
	"github.com/myysophia/artifact-manager/internal/logger"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "执行数据库迁移并写入内置角色与权限",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, conn, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer db.Close()

		return seed.Run(cmd.Context(), conn)
	},
}
