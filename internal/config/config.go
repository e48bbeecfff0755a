package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/smartcontractkit/x402-cre-price-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig             `mapstructure:"app"`
	Logging   logging.Config        `mapstructure:"logging"`
	Database  DatabaseConfig        `mapstructure:"database"`
	Redis     RedisConfig           `mapstructure:"redis"`
	Scheduler SchedulerConfig       `mapstructure:"scheduler"`
	Rules     RulesConfig           `mapstructure:"rules"`
	Ethereum  EthereumConfig        `mapstructure:"ethereum"`
	Feeds     map[string]FeedConfig `mapstructure:"feeds"`
	Auth      AuthConfig            `mapstructure:"auth"`
	Pushover  PushoverConfig        `mapstructure:"pushover"`
	Ingest    IngestConfig          `mapstructure:"ingest"`
	Export    ExportConfig          `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig points at the response cache shared across executors.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SchedulerConfig governs evaluation cadence.
type SchedulerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	AlignToStart bool          `mapstructure:"align_to_start"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// RulesConfig holds rule evaluation policy.
type RulesConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// EthereumConfig covers on-chain data access.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// FeedConfig binds one asset symbol to its aggregator contract. Decimals is
// the feed's fixed implicit scale.
type FeedConfig struct {
	Address  string `mapstructure:"address"`
	Decimals int32  `mapstructure:"decimals"`
}

// AuthConfig carries the optional ingest authentication predicate values.
// An empty string leaves the predicate unset; a configured value must parse.
type AuthConfig struct {
	TrustedSender string `mapstructure:"trusted_sender"`
	OriginID      string `mapstructure:"origin_id"`
	OriginOwner   string `mapstructure:"origin_owner"`
	OriginName    string `mapstructure:"origin_name"`
}

// PushoverConfig describes the notification channel.
type PushoverConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Token        string        `mapstructure:"token"`
	User         string        `mapstructure:"user"`
	APIBase      string        `mapstructure:"api_base"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DedupeWindow time.Duration `mapstructure:"dedupe_window"`
}

// IngestConfig covers the report submission surface.
type IngestConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	SubmitURL      string        `mapstructure:"submit_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEALERTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pricealerts")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "30s")
	v.SetDefault("scheduler.align_to_start", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("rules.ttl", "30m")

	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("pushover.enabled", false)
	v.SetDefault("pushover.api_base", "https://api.pushover.net")
	v.SetDefault("pushover.timeout", "10s")
	v.SetDefault("pushover.dedupe_window", "30s")

	v.SetDefault("ingest.listen_addr", "")
	v.SetDefault("ingest.submit_url", "http://localhost:8080")
	v.SetDefault("ingest.request_timeout", "10s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Rules.TTL <= 0 {
		return fmt.Errorf("rules.ttl must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}

	for symbol, feed := range c.Feeds {
		if !common.IsHexAddress(feed.Address) {
			return fmt.Errorf("feeds.%s.address is not a valid address", symbol)
		}
		if feed.Decimals <= 0 {
			return fmt.Errorf("feeds.%s.decimals must be greater than zero", symbol)
		}
	}

	if c.Auth.TrustedSender != "" && !common.IsHexAddress(c.Auth.TrustedSender) {
		return fmt.Errorf("auth.trusted_sender is not a valid address")
	}
	if c.Auth.OriginOwner != "" && !common.IsHexAddress(c.Auth.OriginOwner) {
		return fmt.Errorf("auth.origin_owner is not a valid address")
	}
	if c.Auth.OriginID != "" {
		raw, err := hexutil.Decode(c.Auth.OriginID)
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("auth.origin_id must be a 32-byte hex value")
		}
	}

	if c.Pushover.Enabled {
		if c.Pushover.Token == "" {
			return fmt.Errorf("pushover.token is required when pushover is enabled")
		}
		if c.Pushover.User == "" {
			return fmt.Errorf("pushover.user is required when pushover is enabled")
		}
	}

	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
