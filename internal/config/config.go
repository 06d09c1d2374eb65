package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 sovereignd 在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Audit    AuditConfig    `json:"audit"`
	Vault    VaultConfig    `json:"vault"`
	Chains   ChainsConfig   `json:"chains"`
	Logging  LoggingConfig  `json:"logging"`
	Alerting AlertingConfig `json:"alerting"`
	Runtime  RuntimeConfig  `json:"runtime"`
	Treasury TreasuryConfig `json:"treasury"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// StorageConfig 统一描述账本、钱包与圣殿状态的存储后端。
type StorageConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// AuditConfig 描述审计作业队列的连接方式。
type AuditConfig struct {
	QueueDriver string         `json:"queue_driver"`
	Workers     int            `json:"workers"`
	Redis       RedisConfig    `json:"redis"`
	RabbitMQ    RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列后端的连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Queue    string `json:"queue"`
}

// RabbitMQConfig 描述 RabbitMQ 队列后端的连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// VaultConfig 描述主权金库密封文件与密钥来源。
type VaultConfig struct {
	SealedFile    string `json:"sealed_file"`
	PassphraseEnv string `json:"passphrase_env"`
}

// ChainsConfig 指定收税链配置文件以及兜底链。
type ChainsConfig struct {
	ConfigPath   string `json:"config_path"`
	DefaultChain string `json:"default_chain"`
}

// LoggingConfig 对应 pkg/logger 的初始化参数。
type LoggingConfig struct {
	Level           string   `json:"level"`
	Format          string   `json:"format"`
	OutputPaths     []string `json:"output_paths"`
	AuditLogPath    string   `json:"audit_log_path"`
	AuditMaxSizeMB  int      `json:"audit_max_size_mb"`
	AuditMaxBackups int      `json:"audit_max_backups"`
	AuditMaxAgeDays int      `json:"audit_max_age_days"`
}

// AlertingConfig 描述告警通知渠道。未配置的渠道不会被装配。
type AlertingConfig struct {
	Email    EmailAlertConfig `json:"email"`
	DingTalk WebhookConfig    `json:"dingtalk"`
	Slack    SlackAlertConfig `json:"slack"`
}

// EmailAlertConfig 描述 SMTP 邮件告警参数。
type EmailAlertConfig struct {
	Host          string   `json:"host"`
	Port          int      `json:"port"`
	Username      string   `json:"username"`
	Password      string   `json:"password"`
	From          string   `json:"from"`
	To            []string `json:"to"`
	SubjectPrefix string   `json:"subject_prefix"`
}

// WebhookConfig 描述单一 webhook 地址。
type WebhookConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// SlackAlertConfig 描述 Slack 告警参数。
type SlackAlertConfig struct {
	WebhookURL string `json:"webhook_url"`
	Channel    string `json:"channel"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// TreasuryConfig 暴露铸币引擎的可调参数。
type TreasuryConfig struct {
	MintingRatio float64 `json:"minting_ratio"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}

	if c.Audit.QueueDriver == "" {
		c.Audit.QueueDriver = "memory"
	}
	if c.Audit.Workers <= 0 {
		c.Audit.Workers = 2
	}

	if c.Vault.PassphraseEnv == "" {
		c.Vault.PassphraseEnv = "SOVEREIGN_VAULT_PASSPHRASE"
	}

	if c.Chains.DefaultChain == "" {
		c.Chains.DefaultChain = "ETH"
	}
	if c.Chains.ConfigPath != "" && !filepath.IsAbs(c.Chains.ConfigPath) {
		c.Chains.ConfigPath = filepath.Join(baseDir, c.Chains.ConfigPath)
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if c.Vault.SealedFile == "" {
		c.Vault.SealedFile = filepath.Join(c.Runtime.DataDir, "sovereign.enc")
	} else if !filepath.IsAbs(c.Vault.SealedFile) {
		c.Vault.SealedFile = filepath.Join(baseDir, c.Vault.SealedFile)
	}

	if c.Treasury.MintingRatio <= 0 {
		c.Treasury.MintingRatio = 10
	}
}
