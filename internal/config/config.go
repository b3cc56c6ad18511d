package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/danhyun/perfrec/internal/logger"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Tool      string        `toml:"tool" mapstructure:"tool"`
	Device    string        `toml:"device" mapstructure:"device"`
	OutputDir string        `toml:"output_dir" mapstructure:"output_dir"`
	Listen    string        `toml:"listen" mapstructure:"listen"`
	Log       *LogConfig    `toml:"log" mapstructure:"log"`
	Recording *RecConfig    `toml:"recording" mapstructure:"recording"`
	History   HistoryConfig `toml:"history" mapstructure:"history"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Color      bool   `toml:"color" mapstructure:"color"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// RecConfig holds per-session timing defaults. Zero values fall back to
// the session package defaults.
type RecConfig struct {
	TimeLimit      time.Duration `toml:"time_limit" mapstructure:"time_limit"`
	StartupTimeout time.Duration `toml:"startup_timeout" mapstructure:"startup_timeout"`
	StopTimeout    time.Duration `toml:"stop_timeout" mapstructure:"stop_timeout"`
	PollInterval   time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// Load parses the TOML config file at path and validates it.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetDefault("listen", "127.0.0.1:8080")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if err := fc.validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

func (fc *FileConfig) validate() error {
	if fc.History.Enabled && fc.History.DSN == "" {
		return fmt.Errorf("history is enabled but dsn is empty")
	}
	if fc.Recording != nil {
		if fc.Recording.TimeLimit < 0 {
			return fmt.Errorf("recording.time_limit must not be negative")
		}
		if fc.Recording.StartupTimeout < 0 {
			return fmt.Errorf("recording.startup_timeout must not be negative")
		}
		if fc.Recording.StopTimeout < 0 {
			return fmt.Errorf("recording.stop_timeout must not be negative")
		}
	}
	return nil
}

// LoggerConfig converts the [log] table to the logger package's config,
// applying defaults when the table is absent.
func (fc *FileConfig) LoggerConfig() logger.Config {
	if fc.Log == nil {
		return logger.Config{Level: "info", Color: true}
	}
	cfg := logger.Config{
		Level:      fc.Log.Level,
		Color:      fc.Log.Color,
		Dir:        fc.Log.Dir,
		MaxSizeMB:  fc.Log.MaxSizeMB,
		MaxBackups: fc.Log.MaxBackups,
		MaxAgeDays: fc.Log.MaxAgeDays,
		Compress:   fc.Log.Compress,
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	return cfg
}
