package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/theirongolddev/smriti/internal/model"
)

// Environment variables that override the config file.
const (
	EnvDBPath       = "SMRITI_DB"
	EnvProjectsRoot = "SMRITI_PROJECTS_ROOT"
	EnvWorkers      = "SMRITI_WORKERS"
)

// Config holds all smriti configuration.
type Config struct {
	General GeneralConfig          `toml:"general"`
	Agents  map[string]AgentConfig `toml:"agents"`
	Logging LoggingConfig          `toml:"logging"`
	Pricing PricingOverrides       `toml:"pricing"`
}

// GeneralConfig holds ingestion preferences.
type GeneralConfig struct {
	DBPath           string `toml:"db_path,omitempty"`
	ProjectsRoot     string `toml:"projects_root,omitempty"`
	Workers          int    `toml:"workers"`
	IncludeSubagents bool   `toml:"include_subagents"`
}

// AgentConfig enables an agent and optionally overrides its log root.
type AgentConfig struct {
	Enabled bool   `toml:"enabled"`
	LogRoot string `toml:"log_root,omitempty"`
}

// LoggingConfig selects the log level and encoding.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // console or json
}

// PricingOverrides allows user-defined pricing for specific models.
type PricingOverrides struct {
	Overrides map[string]ModelPricingOverride `toml:"overrides,omitempty"`
}

// ModelPricingOverride holds per-model pricing overrides.
type ModelPricingOverride struct {
	InputPerMTok      *float64 `toml:"input_per_mtok,omitempty"`
	OutputPerMTok     *float64 `toml:"output_per_mtok,omitempty"`
	CacheWritePerMTok *float64 `toml:"cache_write_per_mtok,omitempty"`
	CacheReadPerMTok  *float64 `toml:"cache_read_per_mtok,omitempty"`
}

// KnownAgents lists the agents with adapters, in ingestion order.
var KnownAgents = []model.Agent{
	model.AgentClaude, model.AgentCodex, model.AgentCline, model.AgentCopilot,
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	agents := make(map[string]AgentConfig, len(KnownAgents))
	for _, a := range KnownAgents {
		agents[string(a)] = AgentConfig{Enabled: true}
	}
	return Config{
		General: GeneralConfig{
			Workers:          4,
			IncludeSubagents: true,
		},
		Agents: agents,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "smriti")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "smriti")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DataDir returns the XDG-compliant data directory holding the database.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "smriti")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "smriti")
}

// Load reads the config file, returning defaults if it doesn't exist.
// Environment overrides are applied on top.
func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config at path, like Load.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is the user's config file
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
	} else if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.General.DBPath = v
	}
	if v := os.Getenv(EnvProjectsRoot); v != "" {
		cfg.General.ProjectsRoot = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("%s: invalid worker count %q", EnvWorkers, v)
		}
		cfg.General.Workers = n
	}
	return nil
}

// SaveTo writes the config to path.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // path is the user's config file
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// DatabasePath returns the configured database path or the default one.
func (c Config) DatabasePath() string {
	if c.General.DBPath != "" {
		return c.General.DBPath
	}
	return filepath.Join(DataDir(), "smriti.db")
}

// EnabledAgents returns the enabled agents in ingestion order. Agents
// missing from the [agents] table are enabled.
func (c Config) EnabledAgents() []model.Agent {
	var out []model.Agent
	for _, a := range KnownAgents {
		ac, ok := c.Agents[string(a)]
		if !ok || ac.Enabled {
			out = append(out, a)
		}
	}
	return out
}

// LogRoot returns the configured log root for agent, or "" to use the
// adapter's default.
func (c Config) LogRoot(agent model.Agent) string {
	return c.Agents[string(agent)].LogRoot
}
