package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/betbot/jitbot/internal/domain"
)

const (
	StrategySniper  = "sniper"
	StrategyShotgun = "shotgun"
)

type FeedConfig struct {
	URL          string
	PingInterval time.Duration
	// OracleMaxAge 预言机价格最大允许年龄，0 表示不检查
	OracleMaxAge time.Duration
}

type RelayConfig struct {
	URL             string
	APIKey          string
	Timeout         time.Duration
	RateLimitPerSec int
	SubAccountID    *uint16
}

type SniperConfig struct {
	MaxAttempts        int
	RetryDelay         time.Duration
	Cooldown           time.Duration
	ReevaluateInterval time.Duration
	RecheckRisk        bool
}

type ShotgunConfig struct {
	Cooldown      time.Duration
	RetryDelay    time.Duration
	PostOnly      domain.PostOnlyParam
	SeenRetention time.Duration
	RecheckRisk   bool
}

type CircuitBreakerConfig struct {
	MaxConsecutiveErrors int64
	AutoResume           time.Duration
}

type JournalConfig struct {
	BadgerDir    string
	SQLitePath   string
	KafkaBrokers []string
	KafkaTopic   string
}

// MarketConfig 启动时注册的市场：最小下单量 + 初始报价
type MarketConfig struct {
	Market       domain.MarketID
	MinOrderSize uint64
	Quote        domain.QuoteParams
}

// Config 应用配置（已解析为定点数/Duration）
type Config struct {
	Strategy         string
	LogLevel         string
	LogFile          string
	DryRun           bool
	MetricsAddr      string
	ControlPlaneAddr string
	StatusInterval   time.Duration

	Feed             FeedConfig
	Relay            RelayConfig
	ComputeUnits     uint32
	ComputeUnitPrice uint64

	Sniper         SniperConfig
	Shotgun        ShotgunConfig
	CircuitBreaker CircuitBreakerConfig
	Journal        JournalConfig
	Markets        []MarketConfig
}

// ConfigFile 配置文件结构（YAML/JSON）。数值为 0 / 空表示使用默认值。
type ConfigFile struct {
	Strategy          string `yaml:"strategy" json:"strategy"`
	LogLevel          string `yaml:"log_level" json:"log_level"`
	LogFile           string `yaml:"log_file" json:"log_file"`
	DryRun            bool   `yaml:"dry_run" json:"dry_run"`
	MetricsAddr       string `yaml:"metrics_addr" json:"metrics_addr"`
	ControlPlaneAddr  string `yaml:"controlplane_addr" json:"controlplane_addr"`
	StatusIntervalSec int    `yaml:"status_interval_sec" json:"status_interval_sec"`

	Feed struct {
		URL             string `yaml:"url" json:"url"`
		PingIntervalSec int    `yaml:"ping_interval_sec" json:"ping_interval_sec"`
		OracleMaxAgeMs  int    `yaml:"oracle_max_age_ms" json:"oracle_max_age_ms"` // < 0 关闭
	} `yaml:"feed" json:"feed"`

	Relay struct {
		URL             string  `yaml:"url" json:"url"`
		APIKey          string  `yaml:"api_key" json:"api_key"`
		TimeoutMs       int     `yaml:"timeout_ms" json:"timeout_ms"`
		RateLimitPerSec int     `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
		SubAccountID    *uint16 `yaml:"sub_account_id" json:"sub_account_id"`
	} `yaml:"relay" json:"relay"`

	ComputeUnits      uint32 `yaml:"compute_units" json:"compute_units"`
	ComputeUnitsPrice uint64 `yaml:"compute_units_price" json:"compute_units_price"`

	Sniper struct {
		MaxAttempts          int  `yaml:"max_attempts" json:"max_attempts"`
		RetryDelayMs         int  `yaml:"retry_delay_ms" json:"retry_delay_ms"`
		CooldownMs           int  `yaml:"cooldown_ms" json:"cooldown_ms"`
		ReevaluateIntervalMs int  `yaml:"reevaluate_interval_ms" json:"reevaluate_interval_ms"`
		RecheckRiskOnSubmit  bool `yaml:"recheck_risk_on_submit" json:"recheck_risk_on_submit"`
	} `yaml:"sniper" json:"sniper"`

	Shotgun struct {
		CooldownMs          int    `yaml:"cooldown_ms" json:"cooldown_ms"`
		RetryDelayMs        int    `yaml:"retry_delay_ms" json:"retry_delay_ms"`
		PostOnly            string `yaml:"post_only" json:"post_only"`
		SeenRetentionSec    int    `yaml:"seen_retention_sec" json:"seen_retention_sec"`
		RecheckRiskOnSubmit bool   `yaml:"recheck_risk_on_submit" json:"recheck_risk_on_submit"`
	} `yaml:"shotgun" json:"shotgun"`

	CircuitBreaker struct {
		MaxConsecutiveErrors int64 `yaml:"max_consecutive_errors" json:"max_consecutive_errors"`
		AutoResumeSec        int   `yaml:"auto_resume_sec" json:"auto_resume_sec"`
	} `yaml:"circuit_breaker" json:"circuit_breaker"`

	Journal struct {
		BadgerDir    string   `yaml:"badger_dir" json:"badger_dir"`
		SQLitePath   string   `yaml:"sqlite_path" json:"sqlite_path"`
		KafkaBrokers []string `yaml:"kafka_brokers" json:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic" json:"kafka_topic"`
	} `yaml:"journal" json:"journal"`

	Markets []MarketFile `yaml:"markets" json:"markets"`
}

// MarketFile 价格/数量均为十进制字符串；bid/ask 在 price_type=oracle 时为相对预言机的偏移
type MarketFile struct {
	Type         string  `yaml:"type" json:"type"`
	Index        uint16  `yaml:"index" json:"index"`
	MinOrderSize string  `yaml:"min_order_size" json:"min_order_size"`
	Bid          string  `yaml:"bid" json:"bid"`
	Ask          string  `yaml:"ask" json:"ask"`
	PriceType    string  `yaml:"price_type" json:"price_type"`
	MinPosition  string  `yaml:"min_position" json:"min_position"`
	MaxPosition  string  `yaml:"max_position" json:"max_position"`
	SubAccountID *uint16 `yaml:"sub_account_id" json:"sub_account_id"`
	PostOnly     string  `yaml:"post_only" json:"post_only"`
}

// EnvOverrides JIT_* 环境变量，设置后覆盖配置文件
type EnvOverrides struct {
	Strategy         *string  `env:"STRATEGY"`
	LogLevel         *string  `env:"LOG_LEVEL"`
	LogFile          *string  `env:"LOG_FILE"`
	DryRun           *bool    `env:"DRY_RUN"`
	MetricsAddr      *string  `env:"METRICS_ADDR"`
	ControlPlaneAddr *string  `env:"CONTROLPLANE_ADDR"`
	FeedURL          *string  `env:"FEED_URL"`
	RelayURL         *string  `env:"RELAY_URL"`
	RelayAPIKey      *string  `env:"RELAY_API_KEY"`
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
}

const envPrefix = "JIT_"

// Load 加载配置：默认值 < 配置文件 < JIT_* 环境变量。filePath 为空时只使用默认值与环境变量。
func Load(filePath string) (*Config, error) {
	var cf ConfigFile
	if filePath != "" {
		loaded, err := loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
		cf = *loaded
	}

	var overrides EnvOverrides
	if err := env.ParseWithOptions(&overrides, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}
	overrides.apply(&cf)

	cfg, err := cf.resolve()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return &configFile, nil
}

func (o EnvOverrides) apply(cf *ConfigFile) {
	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setString(&cf.Strategy, o.Strategy)
	setString(&cf.LogLevel, o.LogLevel)
	setString(&cf.LogFile, o.LogFile)
	setString(&cf.MetricsAddr, o.MetricsAddr)
	setString(&cf.ControlPlaneAddr, o.ControlPlaneAddr)
	setString(&cf.Feed.URL, o.FeedURL)
	setString(&cf.Relay.URL, o.RelayURL)
	setString(&cf.Relay.APIKey, o.RelayAPIKey)
	if o.DryRun != nil {
		cf.DryRun = *o.DryRun
	}
	if len(o.KafkaBrokers) > 0 {
		cf.Journal.KafkaBrokers = o.KafkaBrokers
	}
}

func ms(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Millisecond
}

func sec(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// resolve 填充默认值并把十进制字符串换算为定点数
func (cf ConfigFile) resolve() (*Config, error) {
	cfg := &Config{
		Strategy:         strings.ToLower(strings.TrimSpace(orDefault(cf.Strategy, StrategySniper))),
		LogLevel:         orDefault(cf.LogLevel, "info"),
		LogFile:          cf.LogFile,
		DryRun:           cf.DryRun,
		MetricsAddr:      cf.MetricsAddr,
		ControlPlaneAddr: cf.ControlPlaneAddr,
		StatusInterval:   sec(cf.StatusIntervalSec, 30),
		Feed: FeedConfig{
			URL:          cf.Feed.URL,
			PingInterval: sec(cf.Feed.PingIntervalSec, 15),
		},
		Relay: RelayConfig{
			URL:             cf.Relay.URL,
			APIKey:          cf.Relay.APIKey,
			Timeout:         ms(cf.Relay.TimeoutMs, 5000),
			RateLimitPerSec: cf.Relay.RateLimitPerSec,
			SubAccountID:    cf.Relay.SubAccountID,
		},
		ComputeUnits:     orDefault(cf.ComputeUnits, 1_400_000),
		ComputeUnitPrice: cf.ComputeUnitsPrice,
		Sniper: SniperConfig{
			MaxAttempts:        orDefault(cf.Sniper.MaxAttempts, 10),
			RetryDelay:         ms(cf.Sniper.RetryDelayMs, 200),
			Cooldown:           ms(cf.Sniper.CooldownMs, 3000),
			ReevaluateInterval: ms(cf.Sniper.ReevaluateIntervalMs, 50),
			RecheckRisk:        cf.Sniper.RecheckRiskOnSubmit,
		},
		Shotgun: ShotgunConfig{
			Cooldown:      ms(cf.Shotgun.CooldownMs, 10_000),
			SeenRetention: sec(cf.Shotgun.SeenRetentionSec, 30),
			RecheckRisk:   cf.Shotgun.RecheckRiskOnSubmit,
		},
		CircuitBreaker: CircuitBreakerConfig{
			MaxConsecutiveErrors: orDefault(cf.CircuitBreaker.MaxConsecutiveErrors, 20),
			AutoResume:           sec(cf.CircuitBreaker.AutoResumeSec, 60),
		},
		Journal: JournalConfig{
			BadgerDir:    cf.Journal.BadgerDir,
			SQLitePath:   cf.Journal.SQLitePath,
			KafkaBrokers: cf.Journal.KafkaBrokers,
			KafkaTopic:   orDefault(cf.Journal.KafkaTopic, "jit-fills"),
		},
	}
	if cf.Feed.OracleMaxAgeMs >= 0 {
		cfg.Feed.OracleMaxAge = ms(cf.Feed.OracleMaxAgeMs, 5000)
	}
	// shotgun 的重试间隔允许为 0
	if cf.Shotgun.RetryDelayMs > 0 {
		cfg.Shotgun.RetryDelay = time.Duration(cf.Shotgun.RetryDelayMs) * time.Millisecond
	}

	postOnly := orDefault(cf.Shotgun.PostOnly, "must_post_only")
	p, err := domain.ParsePostOnly(postOnly)
	if err != nil {
		return nil, fmt.Errorf("shotgun.post_only: %w", err)
	}
	cfg.Shotgun.PostOnly = p

	for i, m := range cf.Markets {
		mc, err := m.resolve()
		if err != nil {
			return nil, fmt.Errorf("markets[%d]: %w", i, err)
		}
		cfg.Markets = append(cfg.Markets, mc)
	}
	return cfg, nil
}

func (m MarketFile) resolve() (MarketConfig, error) {
	var out MarketConfig
	t, err := domain.ParseMarketType(m.Type)
	if err != nil {
		return out, err
	}
	out.Market = domain.MarketID{Type: t, Index: m.Index}

	minSize, err := domain.ParseBase(m.MinOrderSize)
	if err != nil {
		return out, fmt.Errorf("min_order_size: %w", err)
	}
	if minSize < 0 {
		return out, fmt.Errorf("min_order_size 不能为负数: %s", m.MinOrderSize)
	}
	out.MinOrderSize = uint64(minSize)

	q := &out.Quote
	if q.Bid, err = domain.ParsePrice(m.Bid); err != nil {
		return out, fmt.Errorf("bid: %w", err)
	}
	if q.Ask, err = domain.ParsePrice(m.Ask); err != nil {
		return out, fmt.Errorf("ask: %w", err)
	}
	if q.MinPosition, err = domain.ParseBase(m.MinPosition); err != nil {
		return out, fmt.Errorf("min_position: %w", err)
	}
	if q.MaxPosition, err = domain.ParseBase(m.MaxPosition); err != nil {
		return out, fmt.Errorf("max_position: %w", err)
	}
	if q.PriceType, err = domain.ParsePriceType(m.PriceType); err != nil {
		return out, err
	}
	if m.PostOnly != "" {
		p, err := domain.ParsePostOnly(m.PostOnly)
		if err != nil {
			return out, err
		}
		q.PostOnly = &p
	}
	q.SubAccountID = m.SubAccountID
	return out, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Strategy {
	case StrategySniper, StrategyShotgun:
	default:
		return fmt.Errorf("未知的策略: %q（支持 sniper / shotgun）", c.Strategy)
	}
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url 未配置")
	}
	if !c.DryRun && c.Relay.URL == "" {
		return fmt.Errorf("relay.url 未配置（dry_run 模式可省略）")
	}
	if len(c.Journal.KafkaBrokers) > 0 && c.Journal.KafkaTopic == "" {
		return fmt.Errorf("journal.kafka_topic 不能为空")
	}

	seen := make(map[domain.MarketID]bool, len(c.Markets))
	for _, m := range c.Markets {
		if seen[m.Market] {
			return fmt.Errorf("市场 %s 重复配置", m.Market)
		}
		seen[m.Market] = true
		if m.Quote.MinPosition > m.Quote.MaxPosition {
			return fmt.Errorf("市场 %s: min_position 不能大于 max_position", m.Market)
		}
		if m.Quote.PriceType == domain.PriceTypeLimit && m.Quote.Bid > m.Quote.Ask {
			return fmt.Errorf("市场 %s: bid 不能高于 ask", m.Market)
		}
	}
	return nil
}
