package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the kickdex API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Classify  ClassifyConfig  `yaml:"classify"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// IndexConfig holds similarity index connection settings.
type IndexConfig struct {
	Driver           string   `yaml:"driver"` // redis, qdrant (default: redis)
	Addrs            []string `yaml:"addrs"`  // redis driver
	Password         string   `yaml:"password"`
	Host             string   `yaml:"host"` // qdrant driver
	Port             int      `yaml:"port"`
	APIKey           string   `yaml:"api_key"`
	UseTLS           bool     `yaml:"use_tls"`
	Collection       string   `yaml:"collection"`
	Dimensions       int      `yaml:"dimensions"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds text and image embedding provider settings.
type EmbeddingConfig struct {
	Text         ProviderConfig `yaml:"text"`
	Image        ProviderConfig `yaml:"image"`
	CacheEnabled bool           `yaml:"cache_enabled"`
}

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	Provider   string `yaml:"provider"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// ClassifyConfig holds classification and query expansion settings.
type ClassifyConfig struct {
	SearchMultiplier int `yaml:"search_multiplier"`
	MaxFetchSize     int `yaml:"max_fetch_size"`
	MaxIterations    int `yaml:"max_iterations"`
	BatchIncrement   int `yaml:"batch_increment"`
	DefaultTopK      int `yaml:"default_top_k"`
	MaxTopK          int `yaml:"max_top_k"`
	MaxImageBytes    int `yaml:"max_image_bytes"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Index.Driver == "" {
		c.Index.Driver = "redis"
	}
	if c.Index.Collection == "" {
		c.Index.Collection = "sneakers"
	}
	if c.Index.Dimensions <= 0 {
		c.Index.Dimensions = 1024
	}
	if c.Index.ReadinessTimeout <= 0 {
		c.Index.ReadinessTimeout = 10
	}
	if c.Classify.SearchMultiplier <= 0 {
		c.Classify.SearchMultiplier = 3
	}
	if c.Classify.MaxFetchSize <= 0 {
		c.Classify.MaxFetchSize = 100
	}
	if c.Classify.MaxIterations <= 0 {
		c.Classify.MaxIterations = 5
	}
	if c.Classify.BatchIncrement <= 0 {
		c.Classify.BatchIncrement = 20
	}
	if c.Classify.DefaultTopK <= 0 {
		c.Classify.DefaultTopK = 5
	}
	if c.Classify.MaxTopK <= 0 {
		c.Classify.MaxTopK = 20
	}
	if c.Classify.MaxImageBytes <= 0 {
		c.Classify.MaxImageBytes = 5 << 20
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Index.Driver {
	case "redis":
		if len(c.Index.Addrs) == 0 {
			return fmt.Errorf("index.addrs is required for the redis driver")
		}
	case "qdrant":
		if c.Index.Host == "" {
			return fmt.Errorf("index.host is required for the qdrant driver")
		}
	default:
		return fmt.Errorf("index.driver must be \"redis\" or \"qdrant\", got %q", c.Index.Driver)
	}
	if c.Classify.DefaultTopK > c.Classify.MaxTopK {
		return fmt.Errorf("classify.default_top_k %d exceeds classify.max_top_k %d",
			c.Classify.DefaultTopK, c.Classify.MaxTopK)
	}
	if c.Classify.MaxFetchSize < c.Classify.MaxTopK {
		return fmt.Errorf("classify.max_fetch_size %d must be at least classify.max_top_k %d",
			c.Classify.MaxFetchSize, c.Classify.MaxTopK)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
