// Package config loads service configuration from files, environment
// variables and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/formweaver/formweaver/internal/common/logger"
)

// Config holds all configuration sections for the service.
type Config struct {
	Server   ServerConfig  `mapstructure:"server"`
	Database DBConfig      `mapstructure:"database"`
	Model    ModelConfig   `mapstructure:"model"`
	Auth     AuthConfig    `mapstructure:"auth"`
	Limits   LimitsConfig  `mapstructure:"limits"`
	Logging  logger.Config `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// DBConfig holds SQLite settings.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// ModelConfig holds the chat model connection settings.
type ModelConfig struct {
	APIKey  string `mapstructure:"apiKey"`
	BaseURL string `mapstructure:"baseUrl"`
	Name    string `mapstructure:"name"`
	// MaxSteps bounds the tool-calling loop for one user turn.
	MaxSteps int `mapstructure:"maxSteps"`
	// GenerationTimeout bounds each ancillary generation call.
	GenerationTimeout time.Duration `mapstructure:"generationTimeout"`
}

// AuthConfig holds bearer-token verification settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

// LimitsConfig holds per-user usage limits.
type LimitsConfig struct {
	TurnsPerDay int `mapstructure:"turnsPerDay"`
}

// Load reads configuration from an optional file path plus FORMWEAVER_*
// environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FORMWEAVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30*time.Second)
	v.SetDefault("server.writeTimeout", 0) // streaming responses have no write deadline
	v.SetDefault("database.path", "formweaver.db")
	v.SetDefault("model.name", "gpt-4o")
	v.SetDefault("model.maxSteps", 5)
	v.SetDefault("model.generationTimeout", 20*time.Second)
	v.SetDefault("limits.turnsPerDay", 200)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}

// Validate checks settings that have no usable zero value.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Model.MaxSteps <= 0 {
		return fmt.Errorf("model.maxSteps must be positive, got %d", c.Model.MaxSteps)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}
