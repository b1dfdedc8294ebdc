package rtconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader discovers, parses, merges with defaults, and validates a Config.
type Loader struct {
	searchPaths   []string
	envPrefix     string
	defaultConfig *Config
}

// NewLoader returns a Loader searching the current directory and ./config
// by default, with environment overrides prefixed ACTORSTAGE_.
func NewLoader() *Loader {
	return &Loader{
		searchPaths:   []string{".", "./config"},
		envPrefix:     "ACTORSTAGE",
		defaultConfig: DefaultConfig(),
	}
}

func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// LoadFromFile loads, merges, applies env overrides, and validates a
// specific config file.
func (l *Loader) LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	parsed := &Config{}
	if err := yaml.Unmarshal(data, parsed); err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}

	merged := l.merge(l.defaults(), parsed)
	l.applyEnv(merged)

	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return merged, nil
}

// AutoLoad searches searchPaths for a config file; if none is found it
// falls back to defaults plus environment overrides rather than failing.
func (l *Loader) AutoLoad() (*Config, error) {
	path, err := l.findConfigFile()
	if err != nil {
		if err == ErrConfigFileNotFound {
			cfg := l.defaults()
			l.applyEnv(cfg)
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("validate config: %w", err)
			}
			return cfg, nil
		}
		return nil, err
	}
	return l.LoadFromFile(path)
}

func (l *Loader) findConfigFile() (string, error) {
	names := []string{"actorstage.yaml", "actorstage.yml", "config.yaml", "config.yml"}
	for _, dir := range l.searchPaths {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}
	return "", ErrConfigFileNotFound
}

func (l *Loader) defaults() *Config {
	if l.defaultConfig != nil {
		return l.defaultConfig
	}
	return DefaultConfig()
}

// merge overlays non-zero fields of user onto a copy of def, field by
// field, the same way the pack's config loaders fill gaps rather than
// replacing the whole struct wholesale.
func (l *Loader) merge(def, user *Config) *Config {
	merged := *def

	if user.App.Name != "" {
		merged.App.Name = user.App.Name
	}
	if user.App.Environment != "" {
		merged.App.Environment = user.App.Environment
	}

	if user.Log.Level != "" {
		merged.Log.Level = user.Log.Level
	}
	if user.Log.Format != "" {
		merged.Log.Format = user.Log.Format
	}
	if user.Log.OutputPath != "" {
		merged.Log.OutputPath = user.Log.OutputPath
	}
	merged.Log.AddCaller = user.Log.AddCaller
	if user.Log.MaxSizeMB != 0 {
		merged.Log.MaxSizeMB = user.Log.MaxSizeMB
	}
	if user.Log.MaxBackups != 0 {
		merged.Log.MaxBackups = user.Log.MaxBackups
	}
	if user.Log.MaxAgeDays != 0 {
		merged.Log.MaxAgeDays = user.Log.MaxAgeDays
	}
	merged.Log.Compress = user.Log.Compress

	if user.Directory.Shards != 0 {
		merged.Directory.Shards = user.Directory.Shards
	}
	if user.Directory.ShardHint != 0 {
		merged.Directory.ShardHint = user.Directory.ShardHint
	}

	if user.Supervisor.DefaultIntensity != 0 {
		merged.Supervisor.DefaultIntensity = user.Supervisor.DefaultIntensity
	}
	if user.Supervisor.DefaultPeriod != 0 {
		merged.Supervisor.DefaultPeriod = user.Supervisor.DefaultPeriod
	}

	if user.Mailbox.DefaultCapacity != 0 {
		merged.Mailbox.DefaultCapacity = user.Mailbox.DefaultCapacity
	}
	if user.Mailbox.OverflowPolicy != "" {
		merged.Mailbox.OverflowPolicy = user.Mailbox.OverflowPolicy
	}

	return &merged
}

func (l *Loader) applyEnv(cfg *Config) {
	if v := os.Getenv(l.envPrefix + "_APP_NAME"); v != "" {
		cfg.App.Name = v
	}
	if v := os.Getenv(l.envPrefix + "_APP_ENVIRONMENT"); v != "" {
		cfg.App.Environment = v
	}
	if v := os.Getenv(l.envPrefix + "_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(l.envPrefix + "_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv(l.envPrefix + "_DIRECTORY_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Directory.Shards = n
		}
	}
	if v := os.Getenv(l.envPrefix + "_SUPERVISOR_DEFAULT_INTENSITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Supervisor.DefaultIntensity = n
		}
	}
	if v := os.Getenv(l.envPrefix + "_MAILBOX_OVERFLOW_POLICY"); v != "" {
		cfg.Mailbox.OverflowPolicy = strings.ToLower(v)
	}
}
