package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了议会服务在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Queue    QueueConfig    `json:"queue"`
	Backends BackendsConfig `json:"backends"`
	Council  CouncilConfig  `json:"council"`
	Web3     Web3Config     `json:"web3"`
	Auth     AuthConfig     `json:"auth"`
	Log      LogConfig      `json:"log"`
	Runtime  RuntimeConfig  `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// StorageConfig 统一描述工单存储与台账的连接信息。
type StorageConfig struct {
	ReviewStore ReviewStoreConfig `json:"review_store"`
	Ledger      LedgerConfig      `json:"ledger"`
}

// ReviewStoreConfig 支持 memory 与 mysql 两种驱动。
type ReviewStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// LedgerConfig 描述议会台账的落盘方式。
type LedgerConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// QueueConfig 描述工单队列的实现方式。
type QueueConfig struct {
	Driver   string        `json:"driver"`
	Size     int           `json:"size"`
	Redis    RedisQueue    `json:"redis"`
	RabbitMQ RabbitMQQueue `json:"rabbitmq"`
}

// RedisQueue 描述 Redis 队列的连接参数。
type RedisQueue struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Queue    string `json:"queue"`
}

// RabbitMQQueue 描述 RabbitMQ 队列的连接参数。
type RabbitMQQueue struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// BackendsConfig 汇总各模型后端的调用配置。
type BackendsConfig struct {
	OpenAI      OpenAIConfig      `json:"openai"`
	Anthropic   AnthropicConfig   `json:"anthropic"`
	LocalBridge LocalBridgeConfig `json:"local_bridge"`
}

// OpenAIConfig 描述 OpenAI 兼容后端的调用参数。
type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// AnthropicConfig 描述 Anthropic 后端的调用参数。
type AnthropicConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// LocalBridgeConfig 描述通过本地脚本完成推理时所需的信息。
type LocalBridgeConfig struct {
	Enabled    bool   `json:"enabled"`
	Executable string `json:"executable"`
	ScriptPath string `json:"script_path"`
	WorkingDir string `json:"working_dir"`
}

// CouncilConfig 控制议会评审的表决参数。
type CouncilConfig struct {
	ApprovalThreshold     float64  `json:"approval_threshold"`
	CallTimeoutSeconds    int      `json:"call_timeout_seconds"`
	SessionTimeoutSeconds int      `json:"session_timeout_seconds"`
	Workers               int      `json:"workers"`
	MaxRetries            int      `json:"max_retries"`
	RegistryPath          string   `json:"registry_path"`
	GuidelinesPath        string   `json:"guidelines_path"`
	AllowedHosts          []string `json:"allowed_hosts"`
}

// Web3Config 包含访问区块链节点所需的 RPC 地址。
type Web3Config struct {
	Enabled      bool   `json:"enabled"`
	RPCURL       string `json:"rpc_url"`
	ChainConfig  string `json:"chain_config"`
	DefaultChain string `json:"default_chain"`
}

// AuthConfig 控制 API 访问鉴权。
type AuthConfig struct {
	Enabled bool     `json:"enabled"`
	APIKeys []string `json:"api_keys"`
}

// LogConfig 控制日志输出与审计日志。
type LogConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	AuditPath   string   `json:"audit_path"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
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

	if c.Storage.ReviewStore.Driver == "" {
		c.Storage.ReviewStore.Driver = "memory"
	}
	if c.Storage.Ledger.Driver == "" {
		c.Storage.Ledger.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Size <= 0 {
		c.Queue.Size = 256
	}

	if c.Council.ApprovalThreshold <= 0 || c.Council.ApprovalThreshold > 1 {
		c.Council.ApprovalThreshold = 0.5
	}
	if c.Council.CallTimeoutSeconds <= 0 {
		c.Council.CallTimeoutSeconds = 60
	}
	if c.Council.SessionTimeoutSeconds <= 0 {
		c.Council.SessionTimeoutSeconds = 300
	}
	if c.Council.Workers <= 0 {
		c.Council.Workers = 4
	}
	if c.Council.MaxRetries <= 0 {
		c.Council.MaxRetries = 3
	}
	if c.Council.RegistryPath != "" && !filepath.IsAbs(c.Council.RegistryPath) {
		c.Council.RegistryPath = filepath.Join(baseDir, c.Council.RegistryPath)
	}
	if c.Council.GuidelinesPath != "" && !filepath.IsAbs(c.Council.GuidelinesPath) {
		c.Council.GuidelinesPath = filepath.Join(baseDir, c.Council.GuidelinesPath)
	}

	if c.Backends.LocalBridge.Executable == "" {
		c.Backends.LocalBridge.Executable = "python3"
	}
	if c.Backends.LocalBridge.WorkingDir == "" {
		c.Backends.LocalBridge.WorkingDir = baseDir
	} else if !filepath.IsAbs(c.Backends.LocalBridge.WorkingDir) {
		c.Backends.LocalBridge.WorkingDir = filepath.Join(baseDir, c.Backends.LocalBridge.WorkingDir)
	}

	if c.Web3.ChainConfig != "" && !filepath.IsAbs(c.Web3.ChainConfig) {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
