package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ExchangeConfig 交易所 API 配置
type ExchangeConfig struct {
	APIKey    string `yaml:"api_key" json:"api_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Testnet   bool   `yaml:"testnet" json:"testnet"`
	// 每秒最大请求数（REST 限流），默认 5
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// AccountConfig 同步账户配置
type AccountConfig struct {
	ID         string   `yaml:"id" json:"id"`                   // 账户标识（本地唯一）
	Exchange   string   `yaml:"exchange" json:"exchange"`       // 所属交易所
	Symbols    []string `yaml:"symbols" json:"symbols"`         // 需要同步的交易对
	Schedule   string   `yaml:"schedule" json:"schedule"`       // cron 表达式（留空则只支持手动触发）
	RunOnStart bool     `yaml:"run_on_start" json:"run_on_start"` // 启动时立即执行一次
}

// SyncConfig 同步流程配置
type SyncConfig struct {
	WindowHours     int `yaml:"window_hours" json:"window_hours"`           // 每次同步回看窗口（小时），默认 24
	PageLimit       int `yaml:"page_limit" json:"page_limit"`               // 单页拉取条数，默认 1000
	FetchTimeoutSec int `yaml:"fetch_timeout_seconds" json:"fetch_timeout_seconds"` // 整个拉取阶段超时（秒），默认 120

	// 失败退避
	BackoffBaseSec        int `yaml:"backoff_base_seconds" json:"backoff_base_seconds"`                 // 退避基数（秒），默认 30
	BackoffExponentCap    int `yaml:"backoff_exponent_cap" json:"backoff_exponent_cap"`                 // 指数上限，默认 6
	BackoffMaxSec         int `yaml:"backoff_max_seconds" json:"backoff_max_seconds"`                   // 退避时间上限（秒），默认 3600
	FailureAlertThreshold int `yaml:"failure_alert_threshold" json:"failure_alert_threshold"`           // 连续失败告警阈值，默认 3
}

// ReconcileConfig 对账容差配置
type ReconcileConfig struct {
	AbsoluteEpsilon float64 `yaml:"absolute_epsilon" json:"absolute_epsilon"` // 绝对容差，默认 0.01
	RelativeEpsilon float64 `yaml:"relative_epsilon" json:"relative_epsilon"` // 相对容差，默认 0.0001
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type            string `yaml:"type" json:"type"` // sqlite, postgres, mysql
	DSN             string `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds" json:"conn_max_lifetime_seconds"`
	LogLevel        string `yaml:"log_level" json:"log_level"` // silent, error, warn, info
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// LockConfig 单飞锁配置
type LockConfig struct {
	Type       string      `yaml:"type" json:"type"`               // memory, redis
	Prefix     string      `yaml:"prefix" json:"prefix"`           // 锁 key 前缀
	DefaultTTL int         `yaml:"default_ttl_seconds" json:"default_ttl_seconds"` // 锁 TTL（秒），默认 600
	Redis      RedisConfig `yaml:"redis" json:"redis"`
}

// QuotaConfig 同步配额配置
type QuotaConfig struct {
	DailyLimit int         `yaml:"daily_limit" json:"daily_limit"` // 每账户每日最大同步次数，默认 96
	Type       string      `yaml:"type" json:"type"`               // memory, redis
	Prefix     string      `yaml:"prefix" json:"prefix"`
	Redis      RedisConfig `yaml:"redis" json:"redis"`
}

// NotificationConfig 通知配置
type NotificationConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	Telegram struct {
		Enabled  bool   `yaml:"enabled" json:"enabled"`
		BotToken string `yaml:"bot_token" json:"bot_token"`
		ChatID   string `yaml:"chat_id" json:"chat_id"`
	} `yaml:"telegram" json:"telegram"`

	Webhook struct {
		Enabled bool              `yaml:"enabled" json:"enabled"`
		URL     string            `yaml:"url" json:"url"`
		Headers map[string]string `yaml:"headers" json:"headers"`
	} `yaml:"webhook" json:"webhook"`

	// 通知规则（按告警类型开关）
	Rules struct {
		SyncFailed        bool `yaml:"sync_failed" json:"sync_failed"`
		ReconcileMismatch bool `yaml:"reconcile_mismatch" json:"reconcile_mismatch"`
		FailureStreak     bool `yaml:"failure_streak" json:"failure_streak"`
		DataQuality       bool `yaml:"data_quality" json:"data_quality"`
	} `yaml:"rules" json:"rules"`
}

// WebConfig Web 服务配置
type WebConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen"` // 监听地址，默认 :8080
}

// Config 同步系统配置
type Config struct {
	App struct {
		LogLevel string `yaml:"log_level"` // debug, info, warn, error
		Timezone string `yaml:"timezone"`  // 日志时区，默认本地时区
	} `yaml:"app"`

	Exchanges map[string]ExchangeConfig `yaml:"exchanges"`
	Accounts  []AccountConfig           `yaml:"accounts"`

	Sync          SyncConfig         `yaml:"sync"`
	Reconcile     ReconcileConfig    `yaml:"reconcile"`
	Database      DatabaseConfig     `yaml:"database"`
	Lock          LockConfig         `yaml:"lock"`
	Quota         QuotaConfig        `yaml:"quota"`
	Notifications NotificationConfig `yaml:"notifications"`
	Web           WebConfig          `yaml:"web"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %v", err)
	}

	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes 从字节数组加载配置（用于测试）
func LoadConfigFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %v", err)
	}

	return &cfg, nil
}

// Validate 验证配置并填充默认值
func (c *Config) Validate() error {
	if len(c.Exchanges) == 0 {
		return fmt.Errorf("未配置任何交易所，请在 exchanges 中添加配置")
	}

	for name, ex := range c.Exchanges {
		if ex.APIKey == "" || ex.SecretKey == "" {
			return fmt.Errorf("交易所 %s 的 API 配置不完整", name)
		}
		if ex.RequestsPerSecond <= 0 {
			ex.RequestsPerSecond = 5
			c.Exchanges[name] = ex
		}
	}

	if len(c.Accounts) == 0 {
		return fmt.Errorf("未配置任何同步账户，请在 accounts 中添加配置")
	}

	seen := make(map[string]bool, len(c.Accounts))
	for i, acc := range c.Accounts {
		if acc.ID == "" {
			return fmt.Errorf("账户 #%d 缺少 id", i)
		}
		if seen[acc.ID] {
			return fmt.Errorf("账户 id 重复: %s", acc.ID)
		}
		seen[acc.ID] = true

		if acc.Exchange == "" {
			return fmt.Errorf("账户 %s 缺少 exchange", acc.ID)
		}
		if _, ok := c.Exchanges[acc.Exchange]; !ok {
			return fmt.Errorf("账户 %s 引用的交易所 %s 不存在", acc.ID, acc.Exchange)
		}
		if len(acc.Symbols) == 0 {
			return fmt.Errorf("账户 %s 未配置任何交易对", acc.ID)
		}
	}

	// ==== 同步流程默认值 ====
	if c.Sync.WindowHours <= 0 {
		c.Sync.WindowHours = 24
	}
	if c.Sync.PageLimit <= 0 || c.Sync.PageLimit > 1000 {
		c.Sync.PageLimit = 1000
	}
	if c.Sync.FetchTimeoutSec <= 0 {
		c.Sync.FetchTimeoutSec = 120
	}
	if c.Sync.BackoffBaseSec <= 0 {
		c.Sync.BackoffBaseSec = 30
	}
	if c.Sync.BackoffExponentCap <= 0 {
		c.Sync.BackoffExponentCap = 6
	}
	if c.Sync.BackoffMaxSec <= 0 {
		c.Sync.BackoffMaxSec = 3600
	}
	if c.Sync.FailureAlertThreshold <= 0 {
		c.Sync.FailureAlertThreshold = 3
	}

	// ==== 对账容差默认值 ====
	if c.Reconcile.AbsoluteEpsilon < 0 {
		return fmt.Errorf("对账绝对容差不能为负数")
	}
	if c.Reconcile.AbsoluteEpsilon == 0 {
		c.Reconcile.AbsoluteEpsilon = 0.01
	}
	if c.Reconcile.RelativeEpsilon < 0 {
		return fmt.Errorf("对账相对容差不能为负数")
	}
	if c.Reconcile.RelativeEpsilon == 0 {
		c.Reconcile.RelativeEpsilon = 0.0001
	}

	// ==== 数据库默认值 ====
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.DSN == "" {
		if c.Database.Type != "sqlite" {
			return fmt.Errorf("数据库类型 %s 需要配置 dsn", c.Database.Type)
		}
		c.Database.DSN = "data/tradesync.db"
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "silent"
	}

	// ==== 锁默认值 ====
	if c.Lock.Type == "" {
		c.Lock.Type = "memory"
	}
	if c.Lock.Prefix == "" {
		c.Lock.Prefix = "tradesync:lock:"
	}
	if c.Lock.DefaultTTL <= 0 {
		c.Lock.DefaultTTL = 600
	}
	if c.Lock.Type == "redis" && c.Lock.Redis.Addr == "" {
		return fmt.Errorf("redis 锁需要配置 lock.redis.addr")
	}

	// ==== 配额默认值 ====
	if c.Quota.DailyLimit <= 0 {
		c.Quota.DailyLimit = 96
	}
	if c.Quota.Type == "" {
		c.Quota.Type = "memory"
	}
	if c.Quota.Prefix == "" {
		c.Quota.Prefix = "tradesync:quota:"
	}
	if c.Quota.Type == "redis" && c.Quota.Redis.Addr == "" {
		return fmt.Errorf("redis 配额需要配置 quota.redis.addr")
	}

	// ==== Web 默认值 ====
	if c.Web.Listen == "" {
		c.Web.Listen = ":8080"
	}

	return nil
}

// BackoffBase 退避基数
func (c *SyncConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSec) * time.Second
}

// BackoffMax 退避时间上限
func (c *SyncConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxSec) * time.Second
}

// FetchTimeout 拉取阶段超时
func (c *SyncConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

// Window 同步回看窗口
func (c *SyncConfig) Window() time.Duration {
	return time.Duration(c.WindowHours) * time.Hour
}
