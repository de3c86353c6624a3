package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP         HTTPConfig       `mapstructure:"http"`
	Logging      LoggingConfig    `mapstructure:"logging"`
	MySQL        DatabaseConfig   `mapstructure:"mysql"`
	ClickHouse   DatabaseConfig   `mapstructure:"clickhouse"`
	Redis        RedisConfig      `mapstructure:"redis"`
	Kafka        KafkaConfig      `mapstructure:"kafka"`
	Dispatcher   DispatcherConfig `mapstructure:"dispatcher"`
	Release      ReleaseConfig    `mapstructure:"release"`
	RateLimit    RateLimitConfig  `mapstructure:"rate_limit"`
	Senders      []SenderConfig   `mapstructure:"senders"`
	Pricing      PricingConfig    `mapstructure:"pricing"`
	ChannelCache CacheConfig      `mapstructure:"channel_cache"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	EnqueueTopic   string   `mapstructure:"enqueue_topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type DispatcherConfig struct {
	WorkerCount       int           `mapstructure:"worker_count"`
	ClaimBatch        int           `mapstructure:"claim_batch"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	SendTimeout       time.Duration `mapstructure:"send_timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	Backoff           BackoffConfig `mapstructure:"backoff"`
	Reaper            ReaperConfig  `mapstructure:"reaper"`
}

type BackoffConfig struct {
	Base time.Duration `mapstructure:"base"`
	Max  time.Duration `mapstructure:"max"`
}

type ReaperConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	Batch      int           `mapstructure:"batch"`
}

type ReleaseConfig struct {
	Schedule     string `mapstructure:"schedule"` // cron spec, e.g. "@every 1m"
	MaxPerTenant int    `mapstructure:"max_per_tenant"`
}

type RateLimitConfig struct {
	RPS   int `mapstructure:"rps"`
	Burst int `mapstructure:"burst"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type SenderConfig struct {
	Channel   string        `mapstructure:"channel"` // email|sms|whatsapp|inapp
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	Path      string        `mapstructure:"path"`
	TimeoutMs int           `mapstructure:"timeout_ms"`
	Async     bool          `mapstructure:"async"` // provider confirms delivery later
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type PricingConfig struct {
	Email    int64 `mapstructure:"email"`
	SMS      int64 `mapstructure:"sms"`
	WhatsApp int64 `mapstructure:"whatsapp"`
	InApp    int64 `mapstructure:"inapp"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (NOTIFYGW_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (NOTIFYGW_*)
	v.SetEnvPrefix("NOTIFYGW")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
