// Package config loads the service configuration from a YAML file with
// ${ENV} expansion and VOXA_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/voxa/pkg/conversation"
	"github.com/harunnryd/voxa/pkg/gateway"
	"github.com/harunnryd/voxa/pkg/providers/twilio"
	"github.com/harunnryd/voxa/pkg/reconcile"
	"github.com/harunnryd/voxa/pkg/session"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const envPrefix = "VOXA"

type Config struct {
	Server      gateway.Config       `mapstructure:"server"`
	Environment string               `mapstructure:"environment"`
	LogLevel    string               `mapstructure:"log_level"`
	LogFormat   string               `mapstructure:"log_format"`
	Privacy     PrivacyConfig        `mapstructure:"privacy"`
	Auth        gateway.AuthConfig   `mapstructure:"auth"`
	Store       StoreConfig          `mapstructure:"store"`
	Cache       CacheConfig          `mapstructure:"cache"`
	Session     session.Config       `mapstructure:"session"`
	Context     conversation.Options `mapstructure:"context"`
	Providers   ProvidersConfig      `mapstructure:"providers"`
	Reconcile   reconcile.Config     `mapstructure:"reconcile"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type StoreConfig struct {
	// Driver is memory, sqlite or postgres.
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

type CacheConfig struct {
	// Driver is memory or redis.
	Driver    string `mapstructure:"driver"`
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type ProvidersConfig struct {
	Vapi        VapiConfig        `mapstructure:"vapi"`
	ElevenLabs  ElevenLabsConfig  `mapstructure:"elevenlabs"`
	LLM         VendorConfig      `mapstructure:"llm"`
	NLU         NLUConfig         `mapstructure:"nlu"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`
	Twilio      twilio.Config     `mapstructure:"twilio"`
}

type VapiConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	PublicKey string        `mapstructure:"public_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func (c VapiConfig) Configured() bool { return strings.TrimSpace(c.APIKey) != "" }

type ElevenLabsConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	DevelopmentMode bool          `mapstructure:"development_mode"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

func (c ElevenLabsConfig) Configured() bool { return strings.TrimSpace(c.APIKey) != "" }

// VendorConfig selects an implementation by name; Settings are decoded by that
// implementation with DecodeSettings.
type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type NLUConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func (c NLUConfig) Configured() bool { return strings.TrimSpace(c.BaseURL) != "" }

type ObjectStoreConfig struct {
	Bucket          string        `mapstructure:"bucket"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UsePathStyle    bool          `mapstructure:"use_path_style"`
	URLTTL          time.Duration `mapstructure:"url_ttl"`
}

func (c ObjectStoreConfig) Configured() bool { return strings.TrimSpace(c.Bucket) != "" }

// LoadConfig reads path (when non-empty) on top of the defaults.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", gateway.DefaultAddr)
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.default_tenant", "")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_open_conns", 10)
	v.SetDefault("store.max_idle_conns", 5)
	v.SetDefault("store.conn_max_lifetime", "30m")
	v.SetDefault("store.migrate", true)
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.addr", "")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.key_prefix", "voxa:")
	v.SetDefault("session.min_confidence", session.DefaultMinConfidence)
	v.SetDefault("session.idle_ttl", session.DefaultIdleTTL.String())
	v.SetDefault("session.reaper_schedule", session.DefaultReaperSchedule)
	v.SetDefault("context.ttl", conversation.DefaultTTL.String())
	v.SetDefault("context.recent_calls", conversation.DefaultRecentCalls)
	v.SetDefault("context.history_turns", conversation.DefaultHistoryTurns)
	v.SetDefault("context.knowledge_limit", conversation.DefaultKnowledgeLimit)
	v.SetDefault("providers.vapi.api_key", "")
	v.SetDefault("providers.vapi.public_key", "")
	v.SetDefault("providers.vapi.base_url", "https://api.vapi.ai")
	v.SetDefault("providers.vapi.timeout", "10s")
	v.SetDefault("providers.elevenlabs.api_key", "")
	v.SetDefault("providers.elevenlabs.base_url", "https://api.elevenlabs.io")
	v.SetDefault("providers.elevenlabs.development_mode", true)
	v.SetDefault("providers.elevenlabs.timeout", "3s")
	v.SetDefault("providers.llm.provider", "")
	v.SetDefault("providers.nlu.base_url", "")
	v.SetDefault("providers.nlu.timeout", "3s")
	v.SetDefault("providers.object_store.bucket", "")
	v.SetDefault("providers.object_store.region", "us-east-1")
	v.SetDefault("providers.object_store.endpoint", "")
	v.SetDefault("providers.object_store.access_key_id", "")
	v.SetDefault("providers.object_store.secret_access_key", "")
	v.SetDefault("providers.object_store.use_path_style", false)
	v.SetDefault("providers.object_store.url_ttl", "1h")
	v.SetDefault("providers.twilio.account_sid", "")
	v.SetDefault("providers.twilio.auth_token", "")
	v.SetDefault("providers.twilio.from_number", "")
	v.SetDefault("providers.twilio.validate_requests", false)
	v.SetDefault("reconcile.schedule", "")
	v.SetDefault("reconcile.tenants", []string{})
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "memory":
	case "sqlite", "postgres":
		if err := RequireString(c.Store.DSN, "store.dsn"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("store.driver must be memory, sqlite or postgres, got %q", c.Store.Driver)
	}
	switch strings.ToLower(strings.TrimSpace(c.Cache.Driver)) {
	case "memory":
	case "redis":
		if err := RequireString(c.Cache.Addr, "cache.addr"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("cache.driver must be memory or redis, got %q", c.Cache.Driver)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}
	if c.Session.MinConfidence < 0 || c.Session.MinConfidence > 1 {
		return fmt.Errorf("session.min_confidence must be within [0, 1]")
	}
	if err := c.Providers.LLM.Validate(); err != nil {
		return fmt.Errorf("providers.llm: %w", err)
	}
	if c.Providers.Twilio.ValidateRequests && strings.TrimSpace(c.Providers.Twilio.AuthToken) == "" {
		return fmt.Errorf("providers.twilio.auth_token is required when validate_requests is on")
	}
	if c.Reconcile.Schedule != "" {
		if _, err := cron.ParseStandard(c.Reconcile.Schedule); err != nil {
			return fmt.Errorf("reconcile.schedule: %w", err)
		}
	}
	if c.Session.ReaperSchedule != "" {
		if _, err := cron.ParseStandard(c.Session.ReaperSchedule); err != nil {
			return fmt.Errorf("session.reaper_schedule: %w", err)
		}
	}
	return nil
}
