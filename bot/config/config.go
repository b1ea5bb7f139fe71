// Package config extends the core configuration with the sections owned by
// the bot: session storage, provider endpoints and notification sinks.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/callerbot/core/config"
	coredatabase "github.com/m3rciful/callerbot/core/database"
)

// Session store drivers.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

const (
	defaultProviderTimeout = 15 * time.Second
	defaultAppMajor        = 11
	defaultAppMinor        = 75
	defaultAppBuild        = 5
	defaultAppStore        = "GOOGLE_PLAY"
)

// RedisConfig configures the redis session driver.
type RedisConfig struct {
	Addr      string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password  string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" envconfig:"REDIS_DB"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"REDIS_KEY_PREFIX"`
}

// StoreConfig selects and tunes the session store.
type StoreConfig struct {
	Driver string `yaml:"driver" envconfig:"STORE_DRIVER"`
	// TTL expires redis sessions left unread and unwritten for that long;
	// zero keeps them forever.
	TTL time.Duration `yaml:"ttl" envconfig:"STORE_TTL"`
	// SerializePerChat guards read-modify-write cycles of one chat with an
	// in-process lock. Defaults to true.
	SerializePerChat *bool       `yaml:"serialize_per_chat" envconfig:"STORE_SERIALIZE_PER_CHAT"`
	Redis            RedisConfig `yaml:"redis"`
}

// ProviderConfig points at the auth and lookup APIs.
type ProviderConfig struct {
	AuthURL   string        `yaml:"auth_url" envconfig:"PROVIDER_AUTH_URL"`
	SearchURL string        `yaml:"search_url" envconfig:"PROVIDER_SEARCH_URL"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"PROVIDER_TIMEOUT"`
	UserAgent string        `yaml:"user_agent" envconfig:"PROVIDER_USER_AGENT"`
	Language  string        `yaml:"language" envconfig:"PROVIDER_LANGUAGE"`
	AppMajor  int           `yaml:"app_major"`
	AppMinor  int           `yaml:"app_minor"`
	AppBuild  int           `yaml:"app_build"`
	AppStore  string        `yaml:"app_store"`
}

// NotifyConfig configures the fire-and-forget sinks.
type NotifyConfig struct {
	AnalyticsURL string `yaml:"analytics_url" envconfig:"ANALYTICS_URL"`
	SlackToken   string `yaml:"slack_token" envconfig:"SLACK_TOKEN"`
	SlackChannel string `yaml:"slack_channel" envconfig:"SLACK_CHANNEL"`
	// Typing sends a typing indicator for every handled message. Defaults to true.
	Typing     *bool `yaml:"typing" envconfig:"NOTIFY_TYPING"`
	QueueSize  int   `yaml:"queue_size" envconfig:"NOTIFY_QUEUE_SIZE"`
	Workers    int   `yaml:"workers" envconfig:"NOTIFY_WORKERS"`
	MaxRetries int   `yaml:"max_retries" envconfig:"NOTIFY_MAX_RETRIES"`
}

// Config is the full bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Store    StoreConfig         `yaml:"store"`
	Provider ProviderConfig      `yaml:"provider"`
	Notify   NotifyConfig        `yaml:"notify"`
}

// CoreConfig returns the embedded core section.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Load reads path, overlays the environment and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the bot sections and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}
	if err := normalizeStore(cfg); err != nil {
		return err
	}
	if err := normalizeProvider(&cfg.Provider); err != nil {
		return err
	}
	return normalizeNotify(&cfg.Notify)
}

func normalizeStore(cfg *Config) error {
	s := &cfg.Store
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	if s.Driver == "" {
		s.Driver = StoreMemory
	}
	if s.TTL < 0 {
		return fmt.Errorf("store.ttl must be >= 0")
	}
	if s.SerializePerChat == nil {
		s.SerializePerChat = boolPtr(true)
	}
	switch s.Driver {
	case StoreMemory:
	case StoreRedis:
		if strings.TrimSpace(s.Redis.Addr) == "" {
			return fmt.Errorf("store.redis.addr is required when store.driver is 'redis'")
		}
	case StorePostgres:
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required when store.driver is 'postgres'")
		}
		if strings.TrimSpace(cfg.Database.Port) == "" {
			cfg.Database.Port = "5432"
		}
	default:
		return fmt.Errorf("invalid store.driver %q; allowed: memory, redis, postgres", s.Driver)
	}
	return nil
}

func normalizeProvider(p *ProviderConfig) error {
	endpoints := []struct {
		name string
		val  *string
	}{
		{"provider.auth_url", &p.AuthURL},
		{"provider.search_url", &p.SearchURL},
	}
	for _, ep := range endpoints {
		v := strings.TrimRight(strings.TrimSpace(*ep.val), "/")
		if v == "" {
			return fmt.Errorf("%s is required", ep.name)
		}
		u, err := url.Parse(v)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%s must be an absolute http(s) URL", ep.name)
		}
		*ep.val = v
	}
	if p.Timeout <= 0 {
		p.Timeout = defaultProviderTimeout
	}
	if p.AppMajor <= 0 {
		p.AppMajor = defaultAppMajor
		p.AppMinor = defaultAppMinor
		p.AppBuild = defaultAppBuild
	}
	if p.AppStore == "" {
		p.AppStore = defaultAppStore
	}
	return nil
}

func normalizeNotify(n *NotifyConfig) error {
	if n.Typing == nil {
		n.Typing = boolPtr(true)
	}
	if (n.SlackToken == "") != (n.SlackChannel == "") {
		return fmt.Errorf("notify.slack_token and notify.slack_channel must be set together")
	}
	if n.MaxRetries < 0 {
		return fmt.Errorf("notify.max_retries must be >= 0")
	}
	return nil
}

func boolPtr(v bool) *bool { return &v }
