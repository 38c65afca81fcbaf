package governor

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sm36384/Phoenix/governor/internal/browser"
	"github.com/Sm36384/Phoenix/governor/internal/enrich"
	"github.com/Sm36384/Phoenix/governor/internal/hours"
	"github.com/Sm36384/Phoenix/governor/internal/rotation"
	"github.com/Sm36384/Phoenix/guard"
	"github.com/Sm36384/Phoenix/observability"
)

// Config holds all governor configuration. Secrets are tagged yaml:"-" and
// are filled from the environment by the CLI.
type Config struct {
	DBPath string                  `yaml:"db_path"`
	Listen string                  `yaml:"listen"`
	Log    observability.LogConfig `yaml:"log"`

	// Hubs override the built-in hub profiles. HubsFile, when set, is
	// watched and reloaded on change.
	Hubs     []hours.Profile `yaml:"hubs"`
	HubsFile string          `yaml:"hubs_file"`

	// Proxies is the primary proxy per hub id.
	Proxies   map[string]browser.Proxy `yaml:"proxies"`
	UserAgent string                   `yaml:"user_agent"`

	Browser   browser.Config         `yaml:"browser"`
	Rotation  rotation.PoolConfig    `yaml:"rotation"`
	BotScore  rotation.CheckerConfig `yaml:"bot_score"`
	RateLimit RateLimitConfig        `yaml:"rate_limit"`
	Breaker   BreakerConfig          `yaml:"breaker"`
	Heal      HealConfig             `yaml:"heal"`
	Enrich    EnrichConfig           `yaml:"enrich"`
	Vault     VaultConfig            `yaml:"vault"`
	Trace     TraceConfig            `yaml:"trace"`

	// MaxConcurrentHubs bounds RunCycle parallelism (0 = one per hub).
	MaxConcurrentHubs int `yaml:"max_concurrent_hubs"`
	// EventRetention is how long business events are kept.
	EventRetention time.Duration `yaml:"event_retention"`

	Sources []SourceConfig `yaml:"sources"`
	Jobs    []Job          `yaml:"jobs"`
}

// RateLimitConfig configures the per-source limiter.
type RateLimitConfig struct {
	Window      time.Duration `yaml:"window"`
	MaxRequests int           `yaml:"max_requests"`
}

// BreakerConfig configures every circuit breaker.
type BreakerConfig struct {
	Threshold int           `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

// HealConfig configures the self-healing engine.
type HealConfig struct {
	APIKey  string        `yaml:"-"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// EnrichConfig configures the enrichment fallback chain.
type EnrichConfig struct {
	PhantomBuster enrich.PhantomBusterConfig `yaml:"phantombuster"`
	Proxycurl     enrich.ProxycurlConfig     `yaml:"proxycurl"`
	// Redis, when Addr is set, replaces the SQLite cache.
	Redis   enrich.RedisConfig `yaml:"redis"`
	Timeout time.Duration      `yaml:"timeout"`
}

// VaultConfig configures session persistence.
type VaultConfig struct {
	Secret string        `yaml:"-"`
	TTL    time.Duration `yaml:"ttl"`
}

// TraceConfig configures span export.
type TraceConfig struct {
	Capacity int `yaml:"capacity"`
	// CollectorURL receives spans as JSON on every flush.
	CollectorURL string `yaml:"collector_url"`
}

// SourceConfig provisions a source and its initial selectors.
type SourceConfig struct {
	ID          string            `yaml:"id"`
	DisplayName string            `yaml:"display_name"`
	Region      string            `yaml:"region"`
	Selectors   map[string]string `yaml:"selectors"`
}

// Job is one scrape of one source from one hub.
type Job struct {
	Hub       string   `yaml:"hub" json:"hub"`
	Source    string   `yaml:"source" json:"source"`
	HomeURL   string   `yaml:"home_url" json:"home_url"`
	TargetURL string   `yaml:"target_url" json:"target_url"`
	Fields    []string `yaml:"fields" json:"fields"`
	// BotRequestID is a prior bot-detection request id to score.
	BotRequestID string `yaml:"bot_request_id,omitempty" json:"bot_request_id,omitempty"`
	// UseVision heals from a screenshot instead of markup.
	UseVision bool `yaml:"use_vision,omitempty" json:"use_vision,omitempty"`
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "phoenix.db"
	}
	if c.Listen == "" {
		c.Listen = ":8085"
	}
	if c.UserAgent == "" {
		c.UserAgent = rotation.UserAgents[0]
	}
	if c.Heal.Model == "" {
		c.Heal.Model = "gemini-2.0-flash"
	}
	if c.Heal.Timeout <= 0 {
		c.Heal.Timeout = 60 * time.Second
	}
	if c.Enrich.Timeout <= 0 {
		c.Enrich.Timeout = 150 * time.Second
	}
	if c.Trace.Capacity <= 0 {
		c.Trace.Capacity = 100
	}
	if c.EventRetention <= 0 {
		c.EventRetention = 30 * 24 * time.Hour
	}
}

// Validate checks jobs and sources for missing identifiers.
func (c *Config) Validate() error {
	for i, s := range c.Sources {
		if err := guard.Identifier(s.ID); err != nil {
			return fmt.Errorf("governor: sources[%d]: %w", i, err)
		}
	}
	for i, j := range c.Jobs {
		if j.Hub == "" || j.Source == "" || j.TargetURL == "" {
			return fmt.Errorf("governor: jobs[%d]: hub, source and target_url are required", i)
		}
		if err := guard.Identifier(j.Source); err != nil {
			return fmt.Errorf("governor: jobs[%d]: %w", i, err)
		}
		if err := guard.TargetURL(j.TargetURL); err != nil {
			return fmt.Errorf("governor: jobs[%d]: target_url: %w", i, err)
		}
		if j.HomeURL != "" {
			if err := guard.TargetURL(j.HomeURL); err != nil {
				return fmt.Errorf("governor: jobs[%d]: home_url: %w", i, err)
			}
		}
	}
	return nil
}

// LoadConfig reads a YAML config file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("governor: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
