package cmd

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/paktel/notify-gateway/internal/config"
	"github.com/paktel/notify-gateway/internal/db"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo tenants, credits and templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo tenants...")
		if err := seedTenants(sqlDB); err != nil {
			return err
		}
		if err := seedCredits(sqlDB); err != nil {
			return err
		}
		if err := seedTemplates(sqlDB); err != nil {
			return err
		}
		if err := seedChannelConfigs(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed")
		return nil
	},
}

type seedTenant struct {
	name    string
	apiKey  string
	status  string
	isAdmin bool
	rps     *int
}

func intptr(v int) *int { return &v }

// seedTenants inserts deterministic demo tenants (idempotent on api_key).
func seedTenants(dbx *sqlx.DB) error {
	tenants := []seedTenant{
		{"Acme Corp", "11111111111111111111111111111111", "active", false, intptr(20)},
		{"Foobar LLC", "22222222222222222222222222222222", "active", false, intptr(50)},
		{"Beta Testers", "test_3333333333333333333333333333", "active", false, intptr(5)},
		{"Suspended Inc", "44444444444444444444444444444444", "suspended", false, nil},
		{"Platform Ops", "55555555555555555555555555555555", "active", true, nil},
	}
	for _, t := range tenants {
		_, err := dbx.Exec(`
			INSERT INTO tenants (name, api_key, status, is_admin, rate_limit_rps, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, NOW(), NOW())
			ON DUPLICATE KEY UPDATE name = VALUES(name), status = VALUES(status),
			                        is_admin = VALUES(is_admin), rate_limit_rps = VALUES(rate_limit_rps)
		`, t.name, t.apiKey, t.status, t.isAdmin, t.rps)
		if err != nil {
			return fmt.Errorf("seed tenant %s: %w", t.name, err)
		}
	}
	return nil
}

// seedCredits gives every active tenant a starting balance in both
// environments.
func seedCredits(dbx *sqlx.DB) error {
	_, err := dbx.Exec(`
		INSERT INTO credit_accounts (tenant_id, is_live, balance, created_at, updated_at)
		SELECT t.id, e.is_live, 1000, NOW(), NOW()
		  FROM tenants t
		 CROSS JOIN (SELECT 1 AS is_live UNION ALL SELECT 0) e
		 WHERE t.status = 'active'
		ON DUPLICATE KEY UPDATE tenant_id = tenant_id
	`)
	if err != nil {
		return fmt.Errorf("seed credits: %w", err)
	}
	return nil
}

func seedTemplates(dbx *sqlx.DB) error {
	templates := []struct{ key, channel, body string }{
		{"user-invite", "email", "Hi {{name}}, you have been invited to {{workspace}}. Accept here: {{link}}"},
		{"user-invite", "sms", "{{name}}, join {{workspace}}: {{link}}"},
		{"order-shipped", "sms", "Your order {{order_id}} has shipped and arrives {{eta}}."},
		{"order-shipped", "email", "Hello {{name}}, order {{order_id}} is on its way. ETA {{eta}}."},
		{"order-shipped", "whatsapp", "Order {{order_id}} shipped. ETA {{eta}}."},
		{"payment-failed", "inapp", "Payment for invoice {{invoice_id}} failed: {{reason}}"},
	}
	for _, t := range templates {
		_, err := dbx.Exec(`
			INSERT INTO templates (template_key, channel_code, body, created_at, updated_at)
			VALUES (?, ?, ?, NOW(), NOW())
			ON DUPLICATE KEY UPDATE body = VALUES(body)
		`, t.key, t.channel, t.body)
		if err != nil {
			return fmt.Errorf("seed template %s/%s: %w", t.key, t.channel, err)
		}
	}
	return nil
}

// seedChannelConfigs switches whatsapp off for Acme's order flow as a
// working example of the per-source channel policy.
func seedChannelConfigs(dbx *sqlx.DB) error {
	_, err := dbx.Exec(`
		INSERT INTO tenant_channel_configs
			(tenant_id, source_type_code, channels_enabled, is_enabled, is_active, created_at, updated_at)
		SELECT t.id, 'order', 'email,sms,inapp', 1, 1, NOW(), NOW()
		  FROM tenants t
		 WHERE t.api_key = '11111111111111111111111111111111'
		ON DUPLICATE KEY UPDATE channels_enabled = VALUES(channels_enabled)
	`)
	if err != nil {
		return fmt.Errorf("seed channel configs: %w", err)
	}
	return nil
}
