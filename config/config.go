package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Lock      LockConfig      `mapstructure:"lock"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Retention RetentionConfig `mapstructure:"retention"`
}

type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Mode      string `mapstructure:"mode"`
	PublicURL string `mapstructure:"public_url"` // 用于拼接 job_url / logs_stream_url
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type QueueConfig struct {
	JobQueue   string `mapstructure:"job_queue"`
	MaxWorkers int    `mapstructure:"max_workers"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// LockConfig 分支锁配置
// PR 分析和 reconciliation 可接受的等待时间不同，超时分开配置
type LockConfig struct {
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	WaitTimeoutPR        time.Duration `mapstructure:"wait_timeout_pr"`
	WaitTimeoutBranch    time.Duration `mapstructure:"wait_timeout_branch"`
	WaitTimeoutReconcile time.Duration `mapstructure:"wait_timeout_reconcile"`
	LeaseTTL             time.Duration `mapstructure:"lease_ttl"`
}

type AnalysisConfig struct {
	MaxDiffBytes int           `mapstructure:"max_diff_bytes"` // 超过此大小直接失败，避免浪费 AI 调用
	AIEndpoint   string        `mapstructure:"ai_endpoint"`
	AIAPIKey     string        `mapstructure:"ai_api_key"`
	AITimeout    time.Duration `mapstructure:"ai_timeout"`
}

// ProvidersConfig 各 VCS 平台的 API 访问配置
type ProvidersConfig struct {
	Bitbucket ProviderConfig `mapstructure:"bitbucket"`
	Github    ProviderConfig `mapstructure:"github"`
	Gitlab    ProviderConfig `mapstructure:"gitlab"`
}

type ProviderConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	AccessToken string `mapstructure:"access_token"`
}

type RetentionConfig struct {
	JobDays int `mapstructure:"job_days"` // 已完成任务保留天数
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults 锁/队列相关默认值，config.yaml 缺省时生效
func setDefaults() {
	viper.SetDefault("lock.poll_interval", "2s")
	viper.SetDefault("lock.wait_timeout_pr", "90s")
	viper.SetDefault("lock.wait_timeout_branch", "90s")
	viper.SetDefault("lock.wait_timeout_reconcile", "10s")
	viper.SetDefault("lock.lease_ttl", "15m")
	viper.SetDefault("analysis.max_diff_bytes", 512*1024)
	viper.SetDefault("analysis.ai_timeout", "10m")
	viper.SetDefault("queue.job_queue", "codecrow:jobs")
	viper.SetDefault("queue.max_workers", 4)
	viper.SetDefault("retention.job_days", 30)
}

// WaitTimeout 返回指定锁类型的等待超时
func (l LockConfig) WaitTimeout(kind string) time.Duration {
	switch kind {
	case "PR_RECONCILIATION":
		return l.WaitTimeoutReconcile
	case "BRANCH_ANALYSIS":
		return l.WaitTimeoutBranch
	default:
		return l.WaitTimeoutPR
	}
}
