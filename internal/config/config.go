package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/rukun/api/internal/env"
)

const (
	defaultHost           = "0.0.0.0"
	defaultPort           = 8000
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultBuildPackage   = "./cmd/server"
	defaultReloadDebounce = 300 * time.Millisecond
	maxPort               = 65535
)

var defaultReloadExtensions = []string{".go", ".yaml", ".yml", ".env"}

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Host                 string
	Port                 int
	Dev                  bool
	LogLevel             string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	Reload               Reload
}

// Reload holds the dev-mode watcher settings.
type Reload struct {
	WatchDirs    []string
	Extensions   []string
	BuildPackage string
	Debounce     time.Duration
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Host                 string        `yaml:"host"`
	Port                 *int          `yaml:"port"`
	LogLevel             string        `yaml:"log_level"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
	Reload               yamlReload    `yaml:"reload"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

type yamlReload struct {
	WatchDirs    []string `yaml:"watch_dirs"`
	Extensions   []string `yaml:"extensions"`
	BuildPackage string   `yaml:"build_package"`
	Debounce     string   `yaml:"debounce"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile string
	Host       *string
	Port       *int
	Dev        bool
	LogLevel   *string
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(provider env.Provider, overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Load from YAML file if specified
	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		applyYAMLConfig(&cfg, yamlCfg)
	}

	// Apply environment variables (override YAML)
	if provider != nil {
		applyEnvConfig(&cfg, provider)
	}

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Host:                 defaultHost,
		Port:                 defaultPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		Reload: Reload{
			WatchDirs:    []string{"."},
			Extensions:   append([]string(nil), defaultReloadExtensions...),
			BuildPackage: defaultBuildPackage,
			Debounce:     defaultReloadDebounce,
		},
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) {
	if host := strings.TrimSpace(yamlCfg.Host); host != "" {
		cfg.Host = host
	}

	if yamlCfg.Port != nil {
		cfg.Port = *yamlCfg.Port
	}

	if level := strings.TrimSpace(yamlCfg.LogLevel); level != "" {
		cfg.LogLevel = level
	}

	applyDuration(&cfg.ShutdownGracePeriod, yamlCfg.ShutdownGracePeriod)
	applyDuration(&cfg.ReadHeaderTimeout, yamlCfg.ReadHeaderTimeout)
	applyDuration(&cfg.WriteTimeout, yamlCfg.WriteTimeout)
	applyDuration(&cfg.IdleTimeout, yamlCfg.IdleTimeout)

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.RateLimit.RPS != nil && *yamlCfg.RateLimit.RPS >= 0 {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst != nil && *yamlCfg.RateLimit.Burst >= 0 {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	if dirs := cleanList(yamlCfg.Reload.WatchDirs); len(dirs) > 0 {
		cfg.Reload.WatchDirs = dirs
	}

	if exts := cleanList(yamlCfg.Reload.Extensions); len(exts) > 0 {
		cfg.Reload.Extensions = exts
	}

	if pkg := strings.TrimSpace(yamlCfg.Reload.BuildPackage); pkg != "" {
		cfg.Reload.BuildPackage = pkg
	}

	applyDuration(&cfg.Reload.Debounce, yamlCfg.Reload.Debounce)
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config, provider env.Provider) {
	lookup := func(key string) string {
		value, _ := provider.Get(key, "")
		return strings.TrimSpace(value)
	}

	if host := lookup("HOST"); host != "" {
		cfg.Host = host
	}

	if port := lookup("PORT"); port != "" {
		if value, err := strconv.Atoi(port); err == nil {
			cfg.Port = value
		}
	}

	if level := lookup("LOG_LEVEL"); level != "" {
		if _, err := zapcore.ParseLevel(level); err == nil {
			cfg.LogLevel = level
		}
	}

	if enabled := lookup("ENABLE_REQUEST_LOGGING"); enabled != "" {
		if value, err := strconv.ParseBool(enabled); err == nil {
			cfg.EnableRequestLogging = value
		}
	}

	if rps := lookup("RATE_LIMIT_RPS"); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := lookup("RATE_LIMIT_BURST"); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}

	applyDuration(&cfg.ShutdownGracePeriod, lookup("SHUTDOWN_GRACE_PERIOD"))

	if dirs := cleanList(strings.Split(lookup("RELOAD_WATCH_DIRS"), ",")); len(dirs) > 0 {
		cfg.Reload.WatchDirs = dirs
	}

	if exts := cleanList(strings.Split(lookup("RELOAD_EXTENSIONS"), ",")); len(exts) > 0 {
		cfg.Reload.Extensions = exts
	}

	if pkg := lookup("RELOAD_BUILD_PACKAGE"); pkg != "" {
		cfg.Reload.BuildPackage = pkg
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Host != nil && strings.TrimSpace(*overrides.Host) != "" {
		cfg.Host = strings.TrimSpace(*overrides.Host)
	}

	if overrides.Port != nil {
		cfg.Port = *overrides.Port
	}

	if overrides.LogLevel != nil && strings.TrimSpace(*overrides.LogLevel) != "" {
		cfg.LogLevel = strings.TrimSpace(*overrides.LogLevel)
	}

	cfg.Dev = overrides.Dev
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if cfg.Port < 0 || cfg.Port > maxPort {
		return fmt.Errorf("port must be between 0 and %d, got %d", maxPort, cfg.Port)
	}
	if cfg.LogLevel != "" {
		if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	if cfg.Dev && len(cfg.Reload.WatchDirs) == 0 {
		return fmt.Errorf("reload requires at least one watch directory")
	}
	return nil
}

func applyDuration(target *time.Duration, raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*target = d
	}
}

// cleanList trims entries and drops the empty ones.
func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
