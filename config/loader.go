// Package config provides unified configuration loading for the service.
// Precedence: defaults, then YAML file, then environment variables.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("FORGE3D").
//	    Load()
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	// Server holds HTTP server settings.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Redis holds state store settings.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Gemini holds image generation settings.
	Gemini GeminiConfig `yaml:"gemini" env:"GEMINI"`

	// Trellis holds 3D mesh generation settings.
	Trellis TrellisConfig `yaml:"trellis" env:"TRELLIS"`

	// Export holds file export settings.
	Export ExportConfig `yaml:"export" env:"EXPORT"`

	// Demo holds demo/mock mode settings.
	Demo DemoConfig `yaml:"demo" env:"DEMO"`

	// Log holds logging settings.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	HTTPPort           int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort        int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout        time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout       time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	RateLimitRPS       int           `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst     int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// RedisConfig holds state store settings.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	KeyPrefix    string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// GeminiConfig holds image generation settings. Workflow determines which
// model is used: "create" runs on the pro model, "edit" on the flash model.
type GeminiConfig struct {
	APIKey        string        `yaml:"api_key" env:"API_KEY"`
	ProModel      string        `yaml:"pro_model" env:"PRO_MODEL"`
	FlashModel    string        `yaml:"flash_model" env:"FLASH_MODEL"`
	ThinkingLevel string        `yaml:"thinking_level" env:"THINKING_LEVEL"`
	ImageSize     string        `yaml:"image_size" env:"IMAGE_SIZE"`
	AspectRatio   string        `yaml:"aspect_ratio" env:"ASPECT_RATIO"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// TrellisConfig holds mesh generation settings for the fal.ai Trellis model.
type TrellisConfig struct {
	APIKey               string        `yaml:"api_key" env:"API_KEY"`
	BaseURL              string        `yaml:"base_url" env:"BASE_URL"`
	Timeout              time.Duration `yaml:"timeout" env:"TIMEOUT"`
	EnableMultiImage     bool          `yaml:"enable_multi_image" env:"ENABLE_MULTI_IMAGE"`
	MultiImageAlgo       string        `yaml:"multi_image_algo" env:"MULTI_IMAGE_ALGO"`
	Seed                 int           `yaml:"seed" env:"SEED"`
	TextureSize          int           `yaml:"texture_size" env:"TEXTURE_SIZE"`
	MeshSimplify         float64       `yaml:"mesh_simplify" env:"MESH_SIMPLIFY"`
	SSSamplingSteps      int           `yaml:"ss_sampling_steps" env:"SS_SAMPLING_STEPS"`
	SSGuidanceStrength   float64       `yaml:"ss_guidance_strength" env:"SS_GUIDANCE_STRENGTH"`
	SlatSamplingSteps    int           `yaml:"slat_sampling_steps" env:"SLAT_SAMPLING_STEPS"`
	SlatGuidanceStrength float64       `yaml:"slat_guidance_strength" env:"SLAT_GUIDANCE_STRENGTH"`
}

// ExportConfig holds file export settings.
type ExportConfig struct {
	// Dir is where exported artifacts are written. Empty means a
	// "forge3d_exports" directory under the OS temp dir.
	Dir string `yaml:"dir" env:"DIR"`
}

// DemoConfig holds demo/mock mode settings. When MockMode is on, the
// product pipelines replay fixture data with simulated delays instead of
// calling the external generation APIs.
type DemoConfig struct {
	MockMode     bool          `yaml:"mock_mode" env:"MOCK_MODE"`
	CreateDelay  time.Duration `yaml:"create_delay" env:"CREATE_DELAY"`
	EditDelay    time.Duration `yaml:"edit_delay" env:"EDIT_DELAY"`
	FixturesPath string        `yaml:"fixtures_path" env:"FIXTURES_PATH"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// Loader loads configuration using the builder pattern.
type Loader struct {
	configPath string
	envPrefix  string
	dotenv     bool
	validators []func(*Config) error
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "FORGE3D",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithDotEnv enables loading a .env file from the working directory before
// reading environment variables. A missing .env file is not an error.
func (l *Loader) WithDotEnv() *Loader {
	l.dotenv = true
	return l
}

// WithValidator adds a configuration validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load loads the configuration.
// Precedence: defaults, then YAML file, then environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if l.dotenv {
		_ = godotenv.Load()
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration fields accept Go duration syntax
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// comma-separated string slices
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads the configuration and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Trellis.MeshSimplify <= 0 || c.Trellis.MeshSimplify > 1 {
		errs = append(errs, "trellis mesh_simplify must be in (0, 1]")
	}
	if c.Trellis.TextureSize <= 0 {
		errs = append(errs, "trellis texture_size must be positive")
	}
	if c.Demo.MockMode && c.Demo.FixturesPath == "" {
		errs = append(errs, "demo mock_mode requires fixtures_path")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
