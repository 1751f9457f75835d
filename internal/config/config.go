package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPath 指定配置文件路径的环境变量。
const EnvPath = "AGENTVAULT_CONFIG"

// DefaultPath 是未设置环境变量时读取的配置文件。
const DefaultPath = "configs/agentvault.yaml"

// Config 描述了 AgentVault 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Ledger    LedgerConfig    `json:"ledger" yaml:"ledger"`
	Directory DirectoryConfig `json:"directory" yaml:"directory"`
	Events    EventsConfig    `json:"events" yaml:"events"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Runtime   RuntimeConfig   `json:"runtime" yaml:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address                string `json:"address" yaml:"address"`
	ReadTimeoutSeconds     int    `json:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `json:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// AuthConfig 选择调用方认证方式。
type AuthConfig struct {
	Mode           string `json:"mode" yaml:"mode"`
	MaxSkewSeconds int    `json:"max_skew_seconds" yaml:"max_skew_seconds"`
}

// StorageConfig 描述金库与目录共享的持久化后端。
type StorageConfig struct {
	Driver                 string `json:"driver" yaml:"driver"`
	DSN                    string `json:"dsn" yaml:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
	SkipMigrations         bool   `json:"skip_migrations" yaml:"skip_migrations"`
}

// LedgerConfig 配置金库的初始状态。金额均为人类可读的十进制字符串。
type LedgerConfig struct {
	Controller         string             `json:"controller" yaml:"controller"`
	DefaultNativeLimit string             `json:"default_native_limit" yaml:"default_native_limit"`
	TokenLimits        []TokenLimitConfig `json:"token_limits" yaml:"token_limits"`
	InitialDeposit     string             `json:"initial_deposit" yaml:"initial_deposit"`
}

// TokenLimitConfig 为单个代币预置额度。
type TokenLimitConfig struct {
	Asset    string `json:"asset" yaml:"asset"`
	Limit    string `json:"limit" yaml:"limit"`
	Decimals int32  `json:"decimals" yaml:"decimals"`
}

// DirectoryConfig 配置代理目录。
type DirectoryConfig struct {
	Admin               string `json:"admin" yaml:"admin"`
	ReputationReporting string `json:"reputation_reporting" yaml:"reputation_reporting"`
}

// EventsConfig 选择事件投递目标。
type EventsConfig struct {
	Sinks    []string       `json:"sinks" yaml:"sinks"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RedisConfig 描述 Redis 事件列表。
type RedisConfig struct {
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	List     string `json:"list" yaml:"list"`
	MaxLen   int64  `json:"max_len" yaml:"max_len"`
}

// RabbitMQConfig 描述 RabbitMQ 事件队列。
type RabbitMQConfig struct {
	URL      string `json:"url" yaml:"url"`
	Exchange string `json:"exchange" yaml:"exchange"`
	Queue    string `json:"queue" yaml:"queue"`
	Durable  *bool  `json:"durable" yaml:"durable"`
}

// LoggingConfig 对应 pkg/logger 的配置。
type LoggingConfig struct {
	Level     string      `json:"level" yaml:"level"`
	Format    string      `json:"format" yaml:"format"`
	Outputs   []string    `json:"outputs" yaml:"outputs"`
	AddSource bool        `json:"add_source" yaml:"add_source"`
	Audit     AuditConfig `json:"audit" yaml:"audit"`
}

// AuditConfig 控制审计日志文件。
type AuditConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

// MetricsConfig 控制指标暴露方式。Address 为空时挂载在 API 路由上。
type MetricsConfig struct {
	Enabled *bool  `json:"enabled" yaml:"enabled"`
	Address string `json:"address" yaml:"address"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// PathFromEnv 返回环境变量指定的配置路径。
func PathFromEnv() string {
	if path := strings.TrimSpace(os.Getenv(EnvPath)); path != "" {
		return path
	}
	return DefaultPath
}

// Load 负责解析指定路径的配置文件，.json 使用 JSON，其余按 YAML 解析。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(content, &cfg)
	default:
		err = yaml.Unmarshal(content, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 15
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		c.Server.ShutdownTimeoutSeconds = 10
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "header"
	}
	if c.Auth.MaxSkewSeconds <= 0 {
		c.Auth.MaxSkewSeconds = 300
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Driver == "sqlite" && c.Storage.DSN == "" {
		c.Storage.DSN = filepath.Join(c.Runtime.DataDir, "agentvault.db")
	}
	if c.Storage.MaxOpenConns <= 0 {
		c.Storage.MaxOpenConns = 20
	}
	if c.Storage.MaxIdleConns <= 0 {
		c.Storage.MaxIdleConns = 10
	}
	if c.Storage.ConnMaxLifetimeSeconds <= 0 {
		c.Storage.ConnMaxLifetimeSeconds = 1800
	}

	if c.Ledger.DefaultNativeLimit == "" {
		c.Ledger.DefaultNativeLimit = "0.1"
	}
	for i := range c.Ledger.TokenLimits {
		if c.Ledger.TokenLimits[i].Decimals == 0 {
			c.Ledger.TokenLimits[i].Decimals = 18
		}
	}
	if c.Directory.ReputationReporting == "" {
		c.Directory.ReputationReporting = "open"
	}

	if len(c.Events.Sinks) == 0 {
		c.Events.Sinks = []string{"log"}
	}
	if c.Events.Redis.List == "" {
		c.Events.Redis.List = "agentvault:events"
	}
	if c.Events.RabbitMQ.Queue == "" {
		c.Events.RabbitMQ.Queue = "agentvault.events"
	}
	if c.Events.RabbitMQ.Durable == nil {
		durable := true
		c.Events.RabbitMQ.Durable = &durable
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if len(c.Logging.Outputs) == 0 {
		c.Logging.Outputs = []string{"stdout"}
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(c.Runtime.DataDir, "audit", "audit.log")
	}

	if c.Metrics.Enabled == nil {
		enabled := true
		c.Metrics.Enabled = &enabled
	}
}

// MetricsEnabled 报告是否暴露指标。
func (c *Config) MetricsEnabled() bool {
	return c.Metrics.Enabled == nil || *c.Metrics.Enabled
}
