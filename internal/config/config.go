package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	Agent   AgentConfig   `yaml:"agent"`
	Judge   JudgeConfig   `yaml:"judge"`
	Scripts ScriptsConfig `yaml:"scripts"`
	Metrics MetricsConfig `yaml:"metrics"`
	Stats   StatsConfig   `yaml:"stats"`
	Storage StorageConfig `yaml:"storage"`
	Output  OutputConfig  `yaml:"output"`
}

// AgentConfig describes the agent API under evaluation.
type AgentConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Provider string        `yaml:"provider,omitempty"`
	Model    string        `yaml:"model,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	// Enabled controls whether turns are replayed against the live API.
	// When false, every turn must carry a pre-supplied response.
	Enabled bool `yaml:"enabled"`
}

type JudgeConfig struct {
	DefaultProvider string                    `yaml:"default_provider,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty"`
	MaxRetries      int                       `yaml:"max_retries,omitempty"`
	RetryDelay      time.Duration             `yaml:"retry_delay,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
}

type ScriptsConfig struct {
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// MetricsConfig carries system-wide default metadata per metric identifier.
type MetricsConfig struct {
	Defaults map[string]MetricMetadata `yaml:"defaults,omitempty"`
}

// MetricMetadata is per-metric override data. Threshold is nil when the
// metric has no configured threshold at this level.
type MetricMetadata struct {
	Threshold *float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
}

type StatsConfig struct {
	ConfidenceLevel float64 `yaml:"confidence_level,omitempty"`
	BootstrapSteps  int     `yaml:"bootstrap_steps,omitempty"`
	Alpha           float64 `yaml:"alpha,omitempty"`
}

type StorageConfig struct {
	Type string `yaml:"type,omitempty"` // "sqlite" or "memory"
	Path string `yaml:"path,omitempty"` // SQLite file path
}

type OutputConfig struct {
	Dir    string `yaml:"dir,omitempty"`
	Format string `yaml:"format,omitempty"` // txt|csv|json
}

func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Judge.Providers == nil {
		cfg.Judge.Providers = make(map[string]ProviderConfig)
	}
	if strings.TrimSpace(cfg.Judge.DefaultProvider) == "" {
		cfg.Judge.DefaultProvider = "claude"
	}
	if cfg.Judge.MaxRetries <= 0 {
		cfg.Judge.MaxRetries = 2
	}
	if cfg.Judge.RetryDelay <= 0 {
		cfg.Judge.RetryDelay = time.Second
	}
	if cfg.Agent.Timeout <= 0 {
		cfg.Agent.Timeout = 300 * time.Second
	}
	if cfg.Scripts.Timeout <= 0 {
		cfg.Scripts.Timeout = 60 * time.Second
	}
	if cfg.Stats.ConfidenceLevel <= 0 {
		cfg.Stats.ConfidenceLevel = 95
	}
	if cfg.Stats.BootstrapSteps <= 0 {
		cfg.Stats.BootstrapSteps = 1000
	}
	if cfg.Stats.Alpha <= 0 {
		cfg.Stats.Alpha = 0.05
	}
	if strings.TrimSpace(cfg.Output.Dir) == "" {
		cfg.Output.Dir = "results"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		p := cfg.Judge.Providers["claude"]
		p.APIKey = v
		cfg.Judge.Providers["claude"] = p
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		p := cfg.Judge.Providers["openai"]
		p.APIKey = v
		cfg.Judge.Providers["openai"] = p
	}
	if v := strings.TrimSpace(os.Getenv("AGENT_EVAL_ENDPOINT")); v != "" {
		cfg.Agent.Endpoint = v
	}
}

// Validate checks cross-field constraints the loaders depend on.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if cfg.Agent.Enabled && strings.TrimSpace(cfg.Agent.Endpoint) == "" {
		return fmt.Errorf("config: agent.enabled requires agent.endpoint")
	}
	if cfg.Stats.ConfidenceLevel < 0 || cfg.Stats.ConfidenceLevel > 100 {
		return fmt.Errorf("config: stats.confidence_level must be within [0,100] (got %v)", cfg.Stats.ConfidenceLevel)
	}
	if cfg.Stats.Alpha <= 0 || cfg.Stats.Alpha >= 1 {
		return fmt.Errorf("config: stats.alpha must be within (0,1) (got %v)", cfg.Stats.Alpha)
	}
	for id, md := range cfg.Metrics.Defaults {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("config: metrics.defaults: empty metric identifier")
		}
		if md.Threshold != nil && (*md.Threshold < 0 || *md.Threshold > 1) {
			return fmt.Errorf("config: metrics.defaults[%s]: threshold must be within [0,1] (got %v)", id, *md.Threshold)
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Type)) {
	case "", "sqlite", "memory":
	default:
		return fmt.Errorf("config: storage.type must be sqlite or memory (got %q)", cfg.Storage.Type)
	}
	return nil
}
