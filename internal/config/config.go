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
	HTTP       HTTPConfig       `mapstructure:"http"`
	MySQL      DatabaseConfig   `mapstructure:"mysql"`
	ClickHouse DatabaseConfig   `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Refund     RefundConfig     `mapstructure:"refund"`
	Poll       PollConfig       `mapstructure:"poll"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Sched      SchedConfig      `mapstructure:"sched"`
	Log        LogConfig        `mapstructure:"log"`
}

// ---- Leaf structs ----

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
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	RelayLimit   int           `mapstructure:"relay_limit"`
	RelayEvery   time.Duration `mapstructure:"relay_every"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"`
}

type GatewayConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	SendPath   string        `mapstructure:"send_path"`
	StatusPath string        `mapstructure:"status_path"`
	APIKey     string        `mapstructure:"api_key"`
	TimeoutMs  int           `mapstructure:"timeout_ms"`
	RPS        int           `mapstructure:"rps"`
	Breaker    BreakerConfig `mapstructure:"breaker"`
}

// DispatchConfig tunes the fan-out. The defaults exist to stay under the
// carrier's undocumented per-request ceiling; they are configuration, not
// constants.
type DispatchConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	WindowSize   int           `mapstructure:"window_size"`
	WindowDelay  time.Duration `mapstructure:"window_delay"`
	BatchDelay   time.Duration `mapstructure:"batch_delay"`
	JobRetention time.Duration `mapstructure:"job_retention"`
	SweepEvery   time.Duration `mapstructure:"sweep_every"`
}

type RefundConfig struct {
	GraceWindow time.Duration `mapstructure:"grace_window"`
	BatchLimit  int           `mapstructure:"batch_limit"`
}

type PollConfig struct {
	GraceWindow     time.Duration `mapstructure:"grace_window"`
	BatchLimit      int           `mapstructure:"batch_limit"`
	TerminalTimeout time.Duration `mapstructure:"terminal_timeout"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

type SchedConfig struct {
	ReconcileSpec string `mapstructure:"reconcile_spec"`
	PollSpec      string `mapstructure:"poll_spec"`
	AuthToken     string `mapstructure:"auth_token"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (SMSPF_*).
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

	// env override (SMSPF_*)
	v.SetEnvPrefix("SMSPF")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
