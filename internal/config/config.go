package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Markets   []MarketMapping `mapstructure:"markets"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// AuthConfig 鉴权配置，APIKey 必须通过 FUND_API_KEY 或配置文件提供
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// UpstreamConfig 上游数据源配置
type UpstreamConfig struct {
	FundEstimateURL  string   `mapstructure:"fund_estimate_url"`
	NAVHistoryURL    string   `mapstructure:"nav_history_url"`
	NAVTableURL      string   `mapstructure:"nav_table_url"`
	FundDirectoryURL string   `mapstructure:"fund_directory_url"`
	QuoteListURL     string   `mapstructure:"quote_list_url"`
	RankListURL      string   `mapstructure:"rank_list_url"`
	MarketSecIDs     []string `mapstructure:"market_secids"`
	FundSource       string   `mapstructure:"fund_source"`
	UserAgent        string   `mapstructure:"user_agent"`
	Referer          string   `mapstructure:"referer"`
	Timeout          int      `mapstructure:"timeout"`
	MaxRetries       int      `mapstructure:"max_retries"`
	RetryDelayMS     int      `mapstructure:"retry_delay_ms"`
	HistorySize      int      `mapstructure:"history_size"`
	TopN             int      `mapstructure:"top_n"`
}

// RateLimitConfig 限流配置（每分钟请求数，按客户端 IP）
type RateLimitConfig struct {
	FundPerMinute   int `mapstructure:"fund_per_minute"`
	MarketPerMinute int `mapstructure:"market_per_minute"`
	Burst           int `mapstructure:"burst"`
}

// MarketMapping 市场键到上游标签的映射，上游改名时只需改配置
type MarketMapping struct {
	Key     string `mapstructure:"key"`
	Label   string `mapstructure:"label"`
	Pattern string `mapstructure:"pattern"`
}

// DatabaseConfig 数据库配置，仅用于访问审计
type DatabaseConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Type            string `mapstructure:"type"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DebugConfig 调试配置
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RequestTimeout 单次上游调用超时
func (c *UpstreamConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// RetryDelay 重试间隔
func (c *UpstreamConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMS) * time.Millisecond
}

var ErrMissingAPIKey = errors.New("未配置 API Key，请设置环境变量 FUND_API_KEY")

// LoadConfig 加载配置文件，文件不存在时使用默认值与环境变量
func LoadConfig(configPath string) (*Config, error) {
	// .env 可选
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FUND_API")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("auth.api_key", "FUND_API_KEY"); err != nil {
		return nil, fmt.Errorf("绑定环境变量失败: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 60)

	v.SetDefault("upstream.fund_estimate_url", "http://fundgz.1234567.com.cn/js")
	v.SetDefault("upstream.nav_history_url", "http://api.fund.eastmoney.com/f10/lsjz")
	v.SetDefault("upstream.nav_table_url", "http://fund.eastmoney.com/f10/F10DataApi.aspx")
	v.SetDefault("upstream.fund_directory_url", "http://fund.eastmoney.com/js/fundcode_search.js")
	v.SetDefault("upstream.quote_list_url", "https://push2.eastmoney.com/api/qt/ulist.np/get")
	v.SetDefault("upstream.rank_list_url", "https://push2.eastmoney.com/api/qt/clist/get")
	v.SetDefault("upstream.market_secids", []string{"1.000001", "0.399001"})
	v.SetDefault("upstream.fund_source", "estimate")
	v.SetDefault("upstream.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("upstream.referer", "http://fund.eastmoney.com/")
	v.SetDefault("upstream.timeout", 10)
	v.SetDefault("upstream.max_retries", 2)
	v.SetDefault("upstream.retry_delay_ms", 1000)
	v.SetDefault("upstream.history_size", 20)
	v.SetDefault("upstream.top_n", 5)

	v.SetDefault("rate_limit.fund_per_minute", 20)
	v.SetDefault("rate_limit.market_per_minute", 10)
	// 桶容量为 1，首分钟放行数不超过每分钟配额
	v.SetDefault("rate_limit.burst", 1)

	v.SetDefault("markets", []map[string]string{
		{"key": "sh", "label": "上证指数", "pattern": "上证|沪市|上海"},
		{"key": "sz", "label": "深证成指", "pattern": "深证|深市|深圳"},
		{"key": "all", "label": "沪深两市", "pattern": "两市|沪深"},
	})

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dbname", "./data/access.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 3600)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "./logs/fund_api.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("debug.enabled", false)
}

// validateConfig 验证配置
func validateConfig(config *Config) error {
	config.Auth.APIKey = strings.TrimSpace(config.Auth.APIKey)
	if config.Auth.APIKey == "" {
		return ErrMissingAPIKey
	}

	switch config.Upstream.FundSource {
	case "estimate", "history":
	default:
		return fmt.Errorf("upstream.fund_source 必须是 estimate 或 history: %s", config.Upstream.FundSource)
	}

	if config.Upstream.Timeout <= 0 {
		config.Upstream.Timeout = 10
	}
	if config.Upstream.MaxRetries < 0 {
		config.Upstream.MaxRetries = 2
	}
	if config.Upstream.RetryDelayMS < 0 {
		config.Upstream.RetryDelayMS = 1000
	}
	if config.Upstream.HistorySize <= 0 {
		config.Upstream.HistorySize = 20
	}
	if config.Upstream.TopN <= 0 {
		config.Upstream.TopN = 5
	}

	if len(config.Markets) == 0 {
		return fmt.Errorf("markets 映射不能为空")
	}
	seen := make(map[string]bool, len(config.Markets))
	for _, m := range config.Markets {
		if m.Key == "" || m.Label == "" {
			return fmt.Errorf("markets 映射缺少 key 或 label")
		}
		if seen[m.Key] {
			return fmt.Errorf("markets 映射重复: %s", m.Key)
		}
		seen[m.Key] = true
		if m.Pattern != "" {
			if _, err := regexp.Compile(m.Pattern); err != nil {
				return fmt.Errorf("markets[%s] pattern 无效: %w", m.Key, err)
			}
		}
	}

	if config.Database.Enabled {
		switch config.Database.Type {
		case "postgres", "mysql", "sqlite":
		default:
			return fmt.Errorf("数据库类型必须是 postgres、mysql 或 sqlite")
		}
	}

	if config.RateLimit.Burst <= 0 {
		config.RateLimit.Burst = 1
	}

	return nil
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	switch c.Type {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=Asia/Shanghai",
			c.Host, c.Port, c.User, c.Password, c.DBName)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	case "sqlite":
		return c.DBName
	default:
		return ""
	}
}
