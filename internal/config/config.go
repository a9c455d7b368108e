package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	GitHub     GitHubConfig     `yaml:"github" mapstructure:"github"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Tracker    TrackerConfig    `yaml:"tracker" mapstructure:"tracker"`
	Recap      RecapConfig      `yaml:"recap" mapstructure:"recap"`
	Rebuild    RebuildConfig    `yaml:"rebuild" mapstructure:"rebuild"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SalesforceConfig holds Salesforce JWT auth settings for the account and
// opportunity feeds.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// GitHubConfig holds GitHub Issues settings for action-item sync.
type GitHubConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	Owner   string `yaml:"owner" mapstructure:"owner"`
	Repo    string `yaml:"repo" mapstructure:"repo"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NotionConfig holds Notion API credentials for the alternate tracker backend.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	TaskDB string `yaml:"task_db" mapstructure:"task_db"`
}

// TrackerConfig selects the issue-tracker backend and its call pacing.
type TrackerConfig struct {
	Backend string  `yaml:"backend" mapstructure:"backend"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// RecapConfig configures meeting recap ingestion.
type RecapConfig struct {
	InternalDomain string `yaml:"internal_domain" mapstructure:"internal_domain"`
}

// RebuildConfig bounds per-account aggregation during view rebuilds.
type RebuildConfig struct {
	MaxEmailsPerAccount int `yaml:"max_emails_per_account" mapstructure:"max_emails_per_account"`
	MaxPastEvents       int `yaml:"max_past_events" mapstructure:"max_past_events"`
	MaxFutureEvents     int `yaml:"max_future_events" mapstructure:"max_future_events"`
	Workers             int `yaml:"workers" mapstructure:"workers"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ACCOUNTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "accountsync.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("tracker.backend", "github")
	v.SetDefault("tracker.rps", 5)
	v.SetDefault("rebuild.max_emails_per_account", 500)
	v.SetDefault("rebuild.max_past_events", 50)
	v.SetDefault("rebuild.max_future_events", 50)
	v.SetDefault("rebuild.workers", 4)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that configuration required for the given mode is present.
// A failed validation is fatal: the command aborts before touching the store.
func (c *Config) Validate(mode string) error {
	var missing []string

	requireStr := func(key, val string) {
		if val == "" {
			missing = append(missing, key+" is required")
		}
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
		requireStr("store.database_url", c.Store.DatabaseURL)
		requireStr("recap.internal_domain", c.Recap.InternalDomain)
	case "rebuild", "match":
		requireStr("store.database_url", c.Store.DatabaseURL)
	case "feeds":
		requireStr("store.database_url", c.Store.DatabaseURL)
		requireStr("salesforce.client_id", c.Salesforce.ClientID)
		requireStr("salesforce.username", c.Salesforce.Username)
		requireStr("salesforce.key_path", c.Salesforce.KeyPath)
	case "tasks":
		requireStr("store.database_url", c.Store.DatabaseURL)
		switch c.Tracker.Backend {
		case "github":
			requireStr("github.token", c.GitHub.Token)
			requireStr("github.owner", c.GitHub.Owner)
			requireStr("github.repo", c.GitHub.Repo)
		case "notion":
			requireStr("notion.token", c.Notion.Token)
			requireStr("notion.task_db", c.Notion.TaskDB)
		default:
			missing = append(missing, "tracker.backend must be github or notion")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Rebuild.Workers < 1 || c.Rebuild.Workers > 32 {
		missing = append(missing, "rebuild.workers must be between 1 and 32")
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
