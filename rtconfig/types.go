// Package rtconfig provides YAML-backed, environment-overridable,
// hot-reloadable configuration for a Stage: directory sizing, default
// supervisor policy, mailbox defaults, and logging.
package rtconfig

import "time"

// Config is the complete, validated configuration a Stage is built from.
type Config struct {
	App        AppConfig        `yaml:"app" json:"app"`
	Log        LogConfig        `yaml:"log" json:"log"`
	Directory  DirectoryConfig  `yaml:"directory" json:"directory"`
	Supervisor SupervisorConfig `yaml:"supervisor" json:"supervisor"`
	Mailbox    MailboxConfig    `yaml:"mailbox" json:"mailbox"`
}

// AppConfig identifies the embedding application, used only for log
// context and future diagnostics.
type AppConfig struct {
	Name        string `yaml:"name" json:"name"`
	Environment string `yaml:"environment" json:"environment"`
}

// LogConfig mirrors rtlog.Config's shape so a single YAML document covers
// both Stage-level and logger-level settings.
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	OutputPath string `yaml:"output_path" json:"output_path"`
	AddCaller  bool   `yaml:"add_caller" json:"add_caller"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// DirectoryConfig sizes the Stage's address->handle Directory.
type DirectoryConfig struct {
	Shards    int `yaml:"shards" json:"shards"`
	ShardHint int `yaml:"shard_hint" json:"shard_hint"`
}

// SupervisorConfig holds default restart-intensity values. Stage does not
// read them: PublicRoot (supervision.NewPublicRoot) always restarts with
// unlimited intensity, and named supervisors carry their own Strategy.
type SupervisorConfig struct {
	DefaultIntensity int           `yaml:"default_intensity" json:"default_intensity"`
	DefaultPeriod    time.Duration `yaml:"default_period" json:"default_period"`
}

// MailboxConfig sets the default bounded-capacity behaviour new actors get
// unless they request different mailbox.Options explicitly.
type MailboxConfig struct {
	DefaultCapacity int    `yaml:"default_capacity" json:"default_capacity"` // 0 = unbounded
	OverflowPolicy  string `yaml:"overflow_policy" json:"overflow_policy"`   // unbounded, drop_oldest, drop_newest, reject
}

// DefaultConfig returns sane defaults: unbounded mailboxes, a 16-shard
// directory, and an unlimited default supervisor intensity, the same
// intensity supervision.NewPublicRoot uses.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{Name: "actorstage-app", Environment: "development"},
		Log: LogConfig{Level: "info", Format: "console", OutputPath: "stderr"},
		Directory: DirectoryConfig{
			Shards:    16,
			ShardHint: 8,
		},
		Supervisor: SupervisorConfig{
			DefaultIntensity: -1,
			DefaultPeriod:    time.Minute,
		},
		Mailbox: MailboxConfig{
			DefaultCapacity: 0,
			OverflowPolicy:  "unbounded",
		},
	}
}

// Validate checks the configuration for obviously-broken values before a
// Stage is built from it.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if c.Directory.Shards <= 0 {
		return ErrInvalidDirectoryShards
	}
	if c.Mailbox.DefaultCapacity < 0 {
		return ErrInvalidMailboxCapacity
	}
	switch c.Mailbox.OverflowPolicy {
	case "unbounded", "drop_oldest", "drop_newest", "reject":
	default:
		return ErrInvalidOverflowPolicy
	}
	return nil
}
