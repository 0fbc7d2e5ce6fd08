package internal

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"zcommit/pkg/zcommit"
)

// AppConfig represents the main application configuration.
type AppConfig struct {
	// Server holds server-specific configuration.
	Server struct {
		Port           int    `yaml:"port"`
		MountPath      string `yaml:"mount_path"`
		ReadTimeoutMS  int64  `yaml:"read_timeout_ms"`
		WriteTimeoutMS int64  `yaml:"write_timeout_ms"`
		IdleTimeoutMS  int64  `yaml:"idle_timeout_ms"`
		ReadHeaderMS   int64  `yaml:"read_header_timeout_ms"`
		MaxBodyBytes   int64  `yaml:"max_body_bytes"`
		RateLimitRPS   int64  `yaml:"rate_limit_rps"`
		RateLimitBurst int64  `yaml:"rate_limit_burst"`
		MetricsEnabled bool   `yaml:"metrics_enabled"`
		MetricsPath    string `yaml:"metrics_path"`
	} `yaml:"server"`
	// ZCommit controls how pushes become zephyrs.
	ZCommit ZCommitConfig `yaml:"zcommit"`
	// ZSend locates the delivery executable.
	ZSend ZSendConfig `yaml:"zsend"`
	Log   LogConfig   `yaml:"log"`
	// Mirror republishes every delivered notification through Watermill.
	Mirror  MirrorConfig  `yaml:"mirror"`
	Storage StorageConfig `yaml:"storage"`
}

// Config represents the application configuration including rules.
type Config struct {
	AppConfig   `yaml:",inline"`
	Rules       []Rule `yaml:"rules"`
	RulesStrict bool   `yaml:"rules_strict"`
}

// ZCommitConfig holds translation settings.
type ZCommitConfig struct {
	// CommitOrder is "forward" (payload order) or "reverse".
	CommitOrder string `yaml:"commit_order"`
	// GitHubSecret enables X-Hub-Signature verification on the push endpoint.
	GitHubSecret string `yaml:"github_secret"`
}

// ZSendConfig holds the delivery command settings.
type ZSendConfig struct {
	Path      string `yaml:"path"`
	TimeoutMS int64  `yaml:"timeout_ms"`
	DryRun    bool   `yaml:"dry_run"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MirrorConfig holds the configuration for Watermill, which republishes notifications.
type MirrorConfig struct {
	Enabled      bool               `yaml:"enabled"`
	Topic        string             `yaml:"topic"`
	Driver       string             `yaml:"driver"`
	Drivers      []string           `yaml:"drivers"`
	GoChannel    GoChannelConfig    `yaml:"gochannel"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	NATS         NATSConfig         `yaml:"nats"`
	AMQP         AMQPConfig         `yaml:"amqp"`
	SQL          SQLConfig          `yaml:"sql"`
	HTTP         HTTPConfig         `yaml:"http"`
	RiverQueue   RiverQueueConfig   `yaml:"riverqueue"`
	ConnectRetry ConnectRetryConfig `yaml:"connect_retry"`
}

// GoChannelConfig holds configuration for the GoChannel pub/sub.
type GoChannelConfig struct {
	OutputChannelBuffer            int64 `yaml:"output_buffer"`
	Persistent                     bool  `yaml:"persistent"`
	BlockPublishUntilSubscriberAck bool  `yaml:"block_publish_until_subscriber_ack"`
}

// KafkaConfig holds configuration for the Kafka pub/sub.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// NATSConfig holds configuration for the NATS pub/sub.
type NATSConfig struct {
	ClusterID string `yaml:"cluster_id"`
	ClientID  string `yaml:"client_id"`
	URL       string `yaml:"url"`
}

// AMQPConfig holds configuration for the AMQP pub/sub.
type AMQPConfig struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
}

// SQLConfig holds configuration for the SQL pub/sub.
type SQLConfig struct {
	Driver               string `yaml:"driver"`
	DSN                  string `yaml:"dsn"`
	Dialect              string `yaml:"dialect"`
	AutoInitializeSchema bool   `yaml:"auto_initialize_schema"`
}

// HTTPConfig holds configuration for the HTTP publisher.
type HTTPConfig struct {
	BaseURL string `yaml:"base_url"`
	Mode    string `yaml:"mode"`
}

// RiverQueueConfig holds configuration for the RiverQueue publisher.
type RiverQueueConfig struct {
	DSN         string   `yaml:"dsn"`
	Queue       string   `yaml:"queue"`
	MaxAttempts int      `yaml:"max_attempts"`
	Priority    int      `yaml:"priority"`
	Tags        []string `yaml:"tags"`
}

// ConnectRetryConfig bounds the attempts to reach a broker at startup.
type ConnectRetryConfig struct {
	Attempts uint `yaml:"attempts"`
	DelayMS  int  `yaml:"delay_ms"`
}

// StorageConfig configures the delivery journal.
type StorageConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	Table       string `yaml:"table"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// envOverrides are read from ZCOMMIT_* variables after the file is decoded.
type envOverrides struct {
	Port         int    `envconfig:"PORT"`
	ZSendPath    string `envconfig:"ZSEND_PATH"`
	CommitOrder  string `envconfig:"COMMIT_ORDER"`
	LogLevel     string `envconfig:"LOG_LEVEL"`
	GitHubSecret string `envconfig:"GITHUB_SECRET"`
}

// LoadConfig loads the full application configuration, including rules, from a YAML file.
// It expands environment variables, applies ZCOMMIT_* overrides and defaults, and
// normalizes rules.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, err
	}

	if err := applyEnvOverrides(&cfg.AppConfig); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg.AppConfig)
	if _, err := zcommit.ParseOrder(cfg.ZCommit.CommitOrder); err != nil {
		return cfg, err
	}
	normalized, err := normalizeRules(cfg.Rules)
	if err != nil {
		return cfg, err
	}
	cfg.Rules = normalized

	return cfg, nil
}

// RulesConfig represents the rule-specific parts of the configuration.
type RulesConfig struct {
	Rules  []Rule         `yaml:"rules"`
	Strict bool           `yaml:"rules_strict"`
	Logger zerolog.Logger `yaml:"-"`
}

func applyEnvOverrides(cfg *AppConfig) error {
	var env envOverrides
	if err := envconfig.Process("zcommit", &env); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	if env.Port != 0 {
		cfg.Server.Port = env.Port
	}
	if env.ZSendPath != "" {
		cfg.ZSend.Path = env.ZSendPath
	}
	if env.CommitOrder != "" {
		cfg.ZCommit.CommitOrder = env.CommitOrder
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if env.GitHubSecret != "" {
		cfg.ZCommit.GitHubSecret = env.GitHubSecret
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MountPath == "" {
		cfg.Server.MountPath = "/zcommit"
	}
	cfg.Server.MountPath = "/" + strings.Trim(cfg.Server.MountPath, "/")
	if cfg.Server.ReadTimeoutMS == 0 {
		cfg.Server.ReadTimeoutMS = 5000
	}
	if cfg.Server.WriteTimeoutMS == 0 {
		cfg.Server.WriteTimeoutMS = 120000
	}
	if cfg.Server.IdleTimeoutMS == 0 {
		cfg.Server.IdleTimeoutMS = 60000
	}
	if cfg.Server.ReadHeaderMS == 0 {
		cfg.Server.ReadHeaderMS = 5000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.ZCommit.CommitOrder == "" {
		cfg.ZCommit.CommitOrder = string(zcommit.OrderForward)
	}
	if cfg.ZSend.Path == "" {
		cfg.ZSend.Path = "bin/zsend"
	}
	if cfg.ZSend.TimeoutMS == 0 {
		cfg.ZSend.TimeoutMS = 30000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Mirror.Topic == "" {
		cfg.Mirror.Topic = "zcommit.notifications"
	}
	if cfg.Mirror.Driver == "" {
		cfg.Mirror.Driver = "gochannel"
	}
	if cfg.Mirror.GoChannel.OutputChannelBuffer == 0 {
		cfg.Mirror.GoChannel.OutputChannelBuffer = 64
	}
	if cfg.Mirror.HTTP.Mode == "" {
		cfg.Mirror.HTTP.Mode = "topic_url"
	}
	if cfg.Mirror.RiverQueue.Queue == "" {
		cfg.Mirror.RiverQueue.Queue = "default"
	}
	if cfg.Mirror.RiverQueue.MaxAttempts == 0 {
		cfg.Mirror.RiverQueue.MaxAttempts = 25
	}
	if cfg.Mirror.ConnectRetry.Attempts == 0 {
		cfg.Mirror.ConnectRetry.Attempts = 10
	}
	if cfg.Mirror.ConnectRetry.DelayMS == 0 {
		cfg.Mirror.ConnectRetry.DelayMS = 2000
	}
	if cfg.Storage.Table == "" {
		cfg.Storage.Table = "zcommit_deliveries"
	}
}

func normalizeRules(rules []Rule) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for i := range rules {
		rule := rules[i]
		rule.When = strings.TrimSpace(rule.When)
		emit := make(EmitList, 0, len(rule.Emit))
		for _, topic := range rule.Emit {
			if trimmed := strings.TrimSpace(topic); trimmed != "" {
				emit = append(emit, trimmed)
			}
		}
		rule.Emit = emit
		if rule.When == "" || len(rule.Emit) == 0 {
			return nil, fmt.Errorf("rule %d is missing when or emit", i)
		}
		if len(rule.Drivers) > 0 {
			drivers := make([]string, 0, len(rule.Drivers))
			for _, driver := range rule.Drivers {
				trimmed := strings.TrimSpace(driver)
				if trimmed != "" {
					drivers = append(drivers, strings.ToLower(trimmed))
				}
			}
			rule.Drivers = drivers
		}
		out = append(out, rule)
	}
	return out, nil
}
