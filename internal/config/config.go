package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config models streamline.yml.
type Config struct {
	Streams struct {
		DueDays          []int    `yaml:"due_days"`
		DefaultDueDays   int      `yaml:"default_due_days"`
		Categories       []string `yaml:"categories"`
		MaxSubjectLength int      `yaml:"max_subject_length"`
	} `yaml:"streams"`
	Guard     GuardConfig     `yaml:"guard"`
	Retention RetentionConfig `yaml:"retention"`
	Schedule  struct {
		Timezone   string `yaml:"timezone"`
		Reminder   string `yaml:"reminder"`
		Sweep      string `yaml:"sweep"`
		GuardEvict string `yaml:"guard_evict"`
	} `yaml:"schedule"`
	Notify struct {
		BroadcastDestination string        `yaml:"broadcast_destination"`
		ReminderDestination  string        `yaml:"reminder_destination"`
		RatePerSecond        float64       `yaml:"rate_per_second"`
		Burst                int           `yaml:"burst"`
		Timeout              time.Duration `yaml:"timeout"`
	} `yaml:"notify"`
	Discord struct {
		Token string `yaml:"token"`
	} `yaml:"discord"`
	// Webhooks maps a scope to an incoming-webhook URL used for broadcast
	// destinations when no bot token is configured.
	Webhooks map[string]string `yaml:"webhooks"`
	Server   struct {
		Addr      string `yaml:"addr"`
		BasePath  string `yaml:"base_path"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

type GuardConfig struct {
	DuplicateWindow time.Duration `yaml:"duplicate_window"`
	OwnerCooldown   time.Duration `yaml:"owner_cooldown"`
	InflightTTL     time.Duration `yaml:"inflight_ttl"`
}

type RetentionConfig struct {
	Window time.Duration `yaml:"window"`
	Basis  string        `yaml:"basis"`
}

const (
	BasisCompleted = "completed"
	BasisCreated   = "created"
)

// Load reads and validates config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with streamline config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "streamline.yml")
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML layers raw YAML over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Streams.DueDays) == 0 {
		return fmt.Errorf("config.streams.due_days is required")
	}
	seen := map[int]bool{}
	for _, d := range c.Streams.DueDays {
		if d < 1 {
			return fmt.Errorf("config.streams.due_days entries must be positive, got %d", d)
		}
		if seen[d] {
			return fmt.Errorf("config.streams.due_days has duplicate entry %d", d)
		}
		seen[d] = true
	}
	if c.Streams.DefaultDueDays != 0 && !seen[c.Streams.DefaultDueDays] {
		return fmt.Errorf("config.streams.default_due_days %d is not one of due_days", c.Streams.DefaultDueDays)
	}
	for _, cat := range c.Streams.Categories {
		if strings.TrimSpace(cat) == "" {
			return fmt.Errorf("config.streams.categories contains an empty entry")
		}
	}
	if c.Streams.MaxSubjectLength < 1 {
		return fmt.Errorf("config.streams.max_subject_length must be positive")
	}
	if c.Guard.DuplicateWindow < 0 || c.Guard.OwnerCooldown < 0 || c.Guard.InflightTTL < 0 {
		return fmt.Errorf("config.guard windows must not be negative")
	}
	if c.Retention.Window < 0 {
		return fmt.Errorf("config.retention.window must not be negative")
	}
	switch c.Retention.Basis {
	case BasisCompleted, BasisCreated:
	default:
		return fmt.Errorf("config.retention.basis must be %q or %q", BasisCompleted, BasisCreated)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"reminder":    c.Schedule.Reminder,
		"sweep":       c.Schedule.Sweep,
		"guard_evict": c.Schedule.GuardEvict,
	} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("config.schedule.%s: %w", name, err)
		}
	}
	if c.Notify.RatePerSecond < 0 || c.Notify.Burst < 0 {
		return fmt.Errorf("config.notify rate and burst must not be negative")
	}
	for scope, url := range c.Webhooks {
		if scope == "" || strings.TrimSpace(url) == "" {
			return fmt.Errorf("config.webhooks entries need a scope and a url")
		}
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("config.log.format must be json or console")
	}
	return nil
}

// Location resolves the scheduler timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config.schedule.timezone: %w", err)
	}
	return loc, nil
}

// AllowsDueDays reports whether days is one of the configured choices.
func (c *Config) AllowsDueDays(days int) bool {
	for _, d := range c.Streams.DueDays {
		if d == days {
			return true
		}
	}
	return false
}

// AllowsCategory reports whether category may be used. An empty allow-list
// accepts anything.
func (c *Config) AllowsCategory(category string) bool {
	if len(c.Streams.Categories) == 0 {
		return true
	}
	for _, cat := range c.Streams.Categories {
		if strings.EqualFold(cat, category) {
			return true
		}
	}
	return false
}

const defaultTemplate = `streams:
  due_days: [1, 3, 5, 7]
  default_due_days: 7
  categories: []
  max_subject_length: 200

guard:
  duplicate_window: 30s
  owner_cooldown: 5s
  inflight_ttl: 30s

retention:
  window: 168h
  basis: completed

schedule:
  timezone: UTC
  reminder: "0 9 * * *"
  sweep: "0 3 * * *"
  guard_evict: "@every 30s"

notify:
  broadcast_destination: stream-tracker
  reminder_destination: stream-tracker
  rate_per_second: 5
  burst: 5
  timeout: 10s

discord:
  token: ""

webhooks: {}

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  jwt_secret: ""

log:
  level: info
  format: json
`
