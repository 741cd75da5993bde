package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/ngoclaw/gemini-go/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g. GEMINI_API_KEY.
const EnvPrefix = "GEMINI"

// Config is the CLI configuration.
type Config struct {
	APIKey    string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	Model     string        `mapstructure:"model" yaml:"model"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`       // whole command, 0 = none
	MaxRounds int           `mapstructure:"max_rounds" yaml:"max_rounds"` // 0 = unlimited
	Log       LogConfig     `mapstructure:"log" yaml:"log"`
	Render    RenderConfig  `mapstructure:"render" yaml:"render"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"` // empty = discard
}

// RenderConfig controls terminal output.
type RenderConfig struct {
	Markdown bool `mapstructure:"markdown" yaml:"markdown"`
	Width    int  `mapstructure:"width" yaml:"width"`
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.APIKey != "" {
		c.APIKey = "***"
	}
	return c
}

// Validate checks the settings needed to talk to the service.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return apperrors.NewInvalidInputError("api key is not set (use GEMINI_API_KEY or api_key in config.yaml)")
	}
	if strings.TrimSpace(c.Model) == "" {
		return apperrors.NewInvalidInputError("model is not set")
	}
	if c.MaxRounds < 0 {
		return apperrors.NewInvalidInputError(fmt.Sprintf("max_rounds must be >= 0, got %d", c.MaxRounds))
	}
	if c.Timeout < 0 {
		return apperrors.NewInvalidInputError(fmt.Sprintf("timeout must be >= 0, got %s", c.Timeout))
	}
	return nil
}

// Load reads the layered configuration from the default locations.
func Load() (*Config, error) {
	return LoadFrom(HomeDir(), "./config", ".")
}

// LoadFrom loads configuration in increasing priority:
// defaults, globalDir/config.yaml, the first config.yaml found in localDirs,
// then GEMINI_* environment variables.
func LoadFrom(globalDir string, localDirs ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if globalDir != "" {
		v.AddConfigPath(globalDir)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, apperrors.NewInternalErrorWithCause("failed to read global config", err)
			}
		}
	}

	for _, localDir := range localDirs {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err != nil {
			continue
		}
		local := viper.New()
		local.SetConfigFile(localPath)
		if err := local.ReadInConfig(); err != nil {
			return nil, apperrors.NewInternalErrorWithCause("failed to read "+localPath, err)
		}
		if err := v.MergeConfigMap(local.AllSettings()); err != nil {
			return nil, apperrors.NewInternalErrorWithCause("failed to merge "+localPath, err)
		}
		break
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.NewInternalErrorWithCause("failed to unmarshal config", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("model", "gemini-2.0-flash")
	v.SetDefault("timeout", "2m")
	v.SetDefault("max_rounds", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "")

	v.SetDefault("render.markdown", true)
	v.SetDefault("render.width", 100)
}
