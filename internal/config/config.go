package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// EnvConfigPath 指定配置文件路径的环境变量名。
const EnvConfigPath = "OPENAGENT_CONFIG"

// Config 描述了 OpenAgent 在启动阶段需要加载的核心配置。
type Config struct {
	Server       ServerConfig       `json:"server"`
	Logging      LoggingConfig      `json:"logging"`
	Storage      StorageConfig      `json:"storage"`
	LLM          LLMConfig          `json:"llm"`
	Tools        ToolsConfig        `json:"tools"`
	Guardrail    GuardrailConfig    `json:"guardrail"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	RunQueue     RunQueueConfig     `json:"run_queue"`
	Alerting     AlertingConfig     `json:"alerting"`
	Runtime      RuntimeConfig      `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
	AuthToken      string `json:"auth_token"`
}

// LoggingConfig 控制日志级别、格式与审计输出。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	Audit       AuditLog `json:"audit"`
}

// AuditLog 描述审计日志的落盘与轮转策略。
type AuditLog struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// StorageConfig 统一描述会话历史与会话归档的后端连接信息。
type StorageConfig struct {
	Memory   MemoryStoreConfig `json:"memory"`
	Sessions SessionsConfig    `json:"sessions"`
}

// MemoryStoreConfig 选择会话历史存储后端：memory、redis 或 mysql。
type MemoryStoreConfig struct {
	Driver string      `json:"driver"`
	Redis  RedisConfig `json:"redis"`
	MySQL  MySQLConfig `json:"mysql"`
}

// SessionsConfig 选择会话归档存储后端：memory 或 mysql。
type SessionsConfig struct {
	Driver string      `json:"driver"`
	MySQL  MySQLConfig `json:"mysql"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Addr       string `json:"addr"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// MySQLConfig 描述 MySQL 连接参数。
type MySQLConfig struct {
	DSN          string `json:"dsn"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider string       `json:"provider"`
	OpenAI   OpenAIConfig `json:"openai"`
}

// OpenAIConfig 描述 OpenAI 兼容接口的访问参数。
type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ToolsConfig 选择工具网关模式：local 使用内置注册表，remote 走 HTTP 网关。
type ToolsConfig struct {
	Mode        string            `json:"mode"`
	ManifestDir string            `json:"manifest_dir"`
	Remote      RemoteToolsConfig `json:"remote"`
}

// RemoteToolsConfig 描述远端工具网关的访问参数。
type RemoteToolsConfig struct {
	BaseURL        string `json:"base_url"`
	Token          string `json:"token"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// GuardrailConfig 指定护栏策略文件位置。
type GuardrailConfig struct {
	PolicyPath string `json:"policy_path"`
}

// OrchestratorConfig 控制编排循环的行为参数。
type OrchestratorConfig struct {
	MaxIterations int `json:"max_iterations"`
}

// RunQueueConfig 描述异步运行队列的后端与消费参数。
type RunQueueConfig struct {
	Driver     string         `json:"driver"`
	Workers    int            `json:"workers"`
	MaxRetries int            `json:"max_retries"`
	Redis      RedisConfig    `json:"redis"`
	RabbitMQ   RabbitMQConfig `json:"rabbitmq"`
	Store      RunStoreConfig `json:"store"`
}

// RunStoreConfig 选择运行状态存储后端：memory 或 mysql。
type RunStoreConfig struct {
	Driver string      `json:"driver"`
	MySQL  MySQLConfig `json:"mysql"`
}

// RabbitMQConfig 描述 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL string `json:"url"`
}

// AlertingConfig 描述告警通知渠道。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load 负责解析指定路径的 JSON 配置文件。路径为空时回退到
// OPENAGENT_CONFIG 环境变量。
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
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

// OpenAITimeout 返回推理请求的超时时间。
func (c OpenAIConfig) OpenAITimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Storage.Memory.Driver == "" {
		c.Storage.Memory.Driver = "memory"
	}
	if c.Storage.Sessions.Driver == "" {
		c.Storage.Sessions.Driver = "memory"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}

	if c.Tools.Mode == "" {
		c.Tools.Mode = "local"
	}
	if c.Tools.ManifestDir != "" && !filepath.IsAbs(c.Tools.ManifestDir) {
		c.Tools.ManifestDir = filepath.Join(baseDir, c.Tools.ManifestDir)
	}

	if c.Guardrail.PolicyPath != "" && !filepath.IsAbs(c.Guardrail.PolicyPath) {
		c.Guardrail.PolicyPath = filepath.Join(baseDir, c.Guardrail.PolicyPath)
	}

	if c.Orchestrator.MaxIterations <= 0 {
		c.Orchestrator.MaxIterations = 10
	}

	if c.RunQueue.Driver == "" {
		c.RunQueue.Driver = "memory"
	}
	if c.RunQueue.Workers <= 0 {
		c.RunQueue.Workers = 4
	}
	if c.RunQueue.MaxRetries <= 0 {
		c.RunQueue.MaxRetries = 3
	}
	if c.RunQueue.Store.Driver == "" {
		c.RunQueue.Store.Driver = "memory"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
