// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/pipescore/internal/warehouse"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Scoring ScoringConfig `yaml:"scoring" mapstructure:"scoring"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the warehouse backend.
type StoreConfig struct {
	Driver      string                `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string                `yaml:"database_url" mapstructure:"database_url"`
	Pool        *warehouse.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ScoringConfig configures scoring run behavior.
type ScoringConfig struct {
	// ReadinessIntervalSecs is the poll interval while waiting for a
	// snapshot's unit partition to settle.
	ReadinessIntervalSecs int `yaml:"readiness_interval_secs" mapstructure:"readiness_interval_secs"`
	// ReadinessTimeoutSecs bounds the whole readiness wait.
	ReadinessTimeoutSecs int `yaml:"readiness_timeout_secs" mapstructure:"readiness_timeout_secs"`
	// ReadinessStableChecks is the number of consecutive equal counts
	// required before the partition counts as settled.
	ReadinessStableChecks int `yaml:"readiness_stable_checks" mapstructure:"readiness_stable_checks"`
	// RetryMaxAttempts applies to warehouse writes during a scoring run.
	RetryMaxAttempts int `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
}

// Readiness converts the scoring settings into a warehouse poll config.
func (c ScoringConfig) Readiness() warehouse.ReadinessConfig {
	cfg := warehouse.DefaultReadinessConfig()
	if c.ReadinessIntervalSecs > 0 {
		cfg.Interval = time.Duration(c.ReadinessIntervalSecs) * time.Second
	}
	if c.ReadinessTimeoutSecs > 0 {
		cfg.Timeout = time.Duration(c.ReadinessTimeoutSecs) * time.Second
	}
	if c.ReadinessStableChecks > 0 {
		cfg.StableChecks = c.ReadinessStableChecks
	}
	return cfg
}

// ServerConfig configures the snapshot-event trigger server.
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
	v.SetEnvPrefix("PIPESCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("scoring.readiness_interval_secs", 1)
	v.SetDefault("scoring.readiness_timeout_secs", 30)
	v.SetDefault("scoring.readiness_stable_checks", 2)
	v.SetDefault("scoring.retry_max_attempts", 3)

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
