package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the service reads.
const EnvPrefix = "IMGCLF_"

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by FillDefaults.
type Config struct {
	Addr              string   `json:"addr" yaml:"addr" toml:"addr" env:"ADDR"`
	ModelPath         string   `json:"model_path" yaml:"model_path" toml:"model_path" env:"MODEL_PATH"`
	ClassTablePath    string   `json:"class_table_path" yaml:"class_table_path" toml:"class_table_path" env:"CLASS_TABLE_PATH"`
	ExpectedInputSize int      `json:"expected_input_size" yaml:"expected_input_size" toml:"expected_input_size" env:"EXPECTED_INPUT_SIZE"`
	MaxUploadBytes    int64    `json:"max_upload_bytes" yaml:"max_upload_bytes" toml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"`
	MaxImagePixels    int      `json:"max_image_pixels" yaml:"max_image_pixels" toml:"max_image_pixels" env:"MAX_IMAGE_PIXELS"`
	LogLevel          string   `json:"log_level" yaml:"log_level" toml:"log_level" env:"LOG_LEVEL"`
	LogFormat         string   `json:"log_format" yaml:"log_format" toml:"log_format" env:"LOG_FORMAT"`
	CORSEnabled       bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled" env:"CORS_ENABLED"`
	CORSOrigins       []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
}

// Defaults applied to unspecified fields.
const (
	DefaultAddr           = ":8080"
	DefaultModelPath      = "model.imgm"
	DefaultClassTablePath = "class_names.json"
	DefaultMaxUploadBytes = 10 << 20
	DefaultMaxImagePixels = 40_000_000
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment. Variables already set are not overridden.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays IMGCLF_* variables onto cfg. Unset variables leave the
// field alone. environ replaces the process environment when non-nil.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// Resolve builds the effective config from an optional file and the
// environment. Command-line flags are applied by the caller afterwards,
// followed by FillDefaults.
func Resolve(path string, environ map[string]string) (Config, error) {
	var cfg Config
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnv(&cfg, environ); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FillDefaults replaces unspecified fields with defaults.
func (c *Config) FillDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ModelPath == "" {
		c.ModelPath = DefaultModelPath
	}
	if c.ClassTablePath == "" {
		c.ClassTablePath = DefaultClassTablePath
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.MaxImagePixels == 0 {
		c.MaxImagePixels = DefaultMaxImagePixels
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
}

// Validate rejects values no server could run with.
func (c Config) Validate() error {
	if c.ExpectedInputSize < 0 {
		return fmt.Errorf("expected_input_size must not be negative")
	}
	if c.MaxImagePixels < 0 {
		return fmt.Errorf("max_image_pixels must not be negative")
	}
	switch c.LogFormat {
	case "", "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", c.LogFormat)
	}
	return nil
}
