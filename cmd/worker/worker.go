package worker

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/paktel/notify-gateway/internal/config"
	"github.com/paktel/notify-gateway/internal/db"
	"github.com/paktel/notify-gateway/internal/logger"
	"github.com/spf13/cobra"
)

// NewWorkerCmd returns the parent "worker" command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background workers",
	}
	cmd.AddCommand(dispatcherCmd)
	cmd.AddCommand(releaserCmd)
	cmd.AddCommand(ingestCmd)
	return cmd
}

// loadConfig resolves the root --config flag and initializes logging.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Logging.Level)
	return cfg, nil
}

func connectMySQL(cfg config.Config) (*sqlx.DB, error) {
	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("mysql connect: %w", err)
	}
	return dbx, nil
}
