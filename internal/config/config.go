package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	MySQL      DatabaseConfig   `mapstructure:"mysql"`
	ClickHouse DatabaseConfig   `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Instancing InstancingConfig `mapstructure:"instancing"`
	Tokens     TokensConfig     `mapstructure:"tokens"`
	Cron       CronConfig       `mapstructure:"cron"`
}

// ---- Leaf structs ----

type AppConfig struct {
	Env           string `mapstructure:"env"` // production|development
	LogLevel      string `mapstructure:"log_level"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

func (a AppConfig) Development() bool {
	return strings.EqualFold(a.Env, "development") || strings.EqualFold(a.Env, "dev")
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
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
	TriggerTopic   string   `mapstructure:"trigger_topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type GatewayConfig struct {
	Name       string        `mapstructure:"name"`
	BaseURL    string        `mapstructure:"base_url"`
	SendPath   string        `mapstructure:"send_path"`
	APIKey     string        `mapstructure:"api_key"`
	TimeoutMs  int           `mapstructure:"timeout_ms"`
	ReplyHook  string        `mapstructure:"reply_webhook_url"`
	Breaker    BreakerConfig `mapstructure:"breaker"`
	DisableNet bool          `mapstructure:"disable_network"` // log-only gateway for local runs
}

type WebhookConfig struct {
	Secret string        `mapstructure:"secret"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

type NotifyConfig struct {
	SendDelay               time.Duration `mapstructure:"send_delay"`
	DedupWindow             time.Duration `mapstructure:"dedup_window"`
	DefaultReminderTemplate string        `mapstructure:"default_reminder_template"`
	ConfirmationTemplate    string        `mapstructure:"confirmation_template"`
}

type InstancingConfig struct {
	Horizon       int `mapstructure:"horizon"`
	SlugAttempts  int `mapstructure:"slug_attempts"`
	SiblingWindow int `mapstructure:"sibling_window"`
}

type TokensConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type CronConfig struct {
	Secret string `mapstructure:"secret"`
}

// DefaultPath is read when present and no path was given explicitly.
const DefaultPath = "config.yaml"

// ResolvePath returns the file Load should read. An explicit path is
// returned as is so a typo surfaces as an error; otherwise DefaultPath is
// used only if it exists.
func ResolvePath(path string, explicit bool) string {
	if explicit {
		return path
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (VOLUNTEERS_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	// env override (VOLUNTEERS_MYSQL_DSN, ...)
	v.SetEnvPrefix("VOLUNTEERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
