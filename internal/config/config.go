package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Backup BackupConfig `yaml:"backup" mapstructure:"backup"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Auth   AuthConfig   `yaml:"auth" mapstructure:"auth"`
	Seed   SeedConfig   `yaml:"seed" mapstructure:"seed"`
	Deal   DealConfig   `yaml:"deal" mapstructure:"deal"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BackupConfig configures the dump/restore service.
type BackupConfig struct {
	Dir                string `yaml:"dir" mapstructure:"dir"`
	PgDumpPath         string `yaml:"pg_dump_path" mapstructure:"pg_dump_path"`
	PsqlPath           string `yaml:"psql_path" mapstructure:"psql_path"`
	DumpTimeoutSecs    int    `yaml:"dump_timeout_secs" mapstructure:"dump_timeout_secs"`
	RestoreTimeoutSecs int    `yaml:"restore_timeout_secs" mapstructure:"restore_timeout_secs"`
}

// DumpTimeout returns the bounded duration for pg_dump invocations.
func (c BackupConfig) DumpTimeout() time.Duration {
	return time.Duration(c.DumpTimeoutSecs) * time.Second
}

// RestoreTimeout returns the bounded duration for restore invocations.
// Restores are given longer than dumps by default.
func (c BackupConfig) RestoreTimeout() time.Duration {
	return time.Duration(c.RestoreTimeoutSecs) * time.Second
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port          int     `yaml:"port" mapstructure:"port"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// AuthConfig configures JWT session tokens.
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTLMins int    `yaml:"token_ttl_mins" mapstructure:"token_ttl_mins"`
}

// TokenTTL returns the access-token lifetime.
func (c AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMins) * time.Minute
}

// SeedConfig holds the default-owner account provisioned at setup. Imported
// records are owned by this account.
type SeedConfig struct {
	Email    string `yaml:"email" mapstructure:"email"`
	Password string `yaml:"password" mapstructure:"password"`
	Name     string `yaml:"name" mapstructure:"name"`
}

// DealConfig holds stage-engine policy knobs.
type DealConfig struct {
	// RequireLostReason makes the engine reject a closed-lost transition
	// that carries no reason. Off by default so legacy and imported closes
	// are accepted.
	RequireLostReason bool `yaml:"require_lost_reason" mapstructure:"require_lost_reason"`
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
	v.SetEnvPrefix("CRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("backup.dir", "backups")
	v.SetDefault("backup.pg_dump_path", "pg_dump")
	v.SetDefault("backup.psql_path", "psql")
	v.SetDefault("backup.dump_timeout_secs", 120)
	v.SetDefault("backup.restore_timeout_secs", 300)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_per_second", 25)
	v.SetDefault("server.rate_burst", 50)
	v.SetDefault("auth.token_ttl_mins", 720)
	v.SetDefault("seed.email", "admin@agency.local")
	v.SetDefault("seed.password", "changeme")
	v.SetDefault("seed.name", "Default Owner")
	v.SetDefault("deal.require_lost_reason", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
