package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/paktel/notify-gateway/internal/config"
	"github.com/paktel/notify-gateway/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Recreate the schema (dev only: drops and creates all tables)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		script := filepath.Join("migrations", "001_init.sql")
		ddl, err := os.ReadFile(script)
		if err != nil {
			return fmt.Errorf("read %s: %w", script, err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		if err := runScript(sqlDB, string(ddl)); err != nil {
			return err
		}
		fmt.Printf(">> applied %s\n", script)
		return nil
	},
}

// runScript executes a multi-statement DDL script. FK checks are off
// for the duration so table order in the script does not matter.
func runScript(sqlDB *sqlx.DB, ddl string) error {
	if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		return fmt.Errorf("disable fk checks: %w", err)
	}
	defer func() { _, _ = sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1") }()

	if _, err := sqlDB.Exec(ddl); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}
