// Package config loads virtualenvify settings from a YAML file, environment
// variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/classify"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/observability"
)

// Sentinel validation errors.
var (
	ErrNoExtensions       = errors.New("scan.extensions must not be empty")
	ErrInvalidExtension   = errors.New("scan extension must start with a dot")
	ErrInvalidFileSize    = errors.New("invalid scan.max_file_size")
	ErrEmptyInterpreter   = errors.New("python.interpreter must not be empty")
	ErrInvalidLogLevel    = errors.New("invalid logging.level")
	ErrInvalidLogFormat   = errors.New("invalid logging.format")
	ErrInvalidSampleRatio = errors.New("telemetry.sample_ratio must be within [0, 1]")
)

const (
	envPrefix  = "VIRTUALENVIFY"
	configName = ".virtualenvify"
)

// Config holds all virtualenvify settings.
type Config struct {
	Scan        ScanConfig        `mapstructure:"scan"`
	Python      PythonConfig      `mapstructure:"python"`
	Environment EnvironmentConfig `mapstructure:"environment"`
	Install     InstallConfig     `mapstructure:"install"`
	WSGI        WSGIConfig        `mapstructure:"wsgi"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// ScanConfig controls the tree walk.
type ScanConfig struct {
	Extensions    []string `mapstructure:"extensions"`
	PackageMarker string   `mapstructure:"package_marker"`
	// MaxFileSize is a human readable size such as "2MB"; "0" disables it.
	MaxFileSize  string `mapstructure:"max_file_size"`
	SkipVendored bool   `mapstructure:"skip_vendored"`
}

// PythonConfig selects the interpreter whose standard library is excluded.
type PythonConfig struct {
	Interpreter string `mapstructure:"interpreter"`
	Cache       bool   `mapstructure:"cache"`
	// CacheDir defaults to the user cache directory.
	CacheDir string `mapstructure:"cache_dir"`
}

// EnvironmentConfig controls virtualenv creation.
type EnvironmentConfig struct {
	// Command is a shell-quoted command line; the directory is appended.
	Command string `mapstructure:"command"`
	// Dir is relative to the project root. Empty uses the root itself.
	Dir string `mapstructure:"dir"`
}

// InstallConfig controls package installation.
type InstallConfig struct {
	// Pip overrides the environment's pip executable.
	Pip          string `mapstructure:"pip"`
	CopyFallback bool   `mapstructure:"copy_fallback"`
}

// WSGIConfig controls entry point patching.
type WSGIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Backup  bool   `mapstructure:"backup"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	MetricsFile  string  `mapstructure:"metrics_file"`
}

// LoadConfig reads configPath, or searches the default locations when it is
// empty. Environment variables prefixed with VIRTUALENVIFY_ override file
// values, e.g. VIRTUALENVIFY_WSGI_PATH for wsgi.path.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", cacheSubdir))
		}

		v.AddConfigPath("/etc/virtualenvify")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config

	err = v.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.extensions", []string{DefaultScanExtension})
	v.SetDefault("scan.package_marker", DefaultScanMarker)
	v.SetDefault("scan.max_file_size", DefaultScanMaxFileSize)
	v.SetDefault("scan.skip_vendored", DefaultScanSkipVendored)

	v.SetDefault("python.interpreter", DefaultPythonInterpreter)
	v.SetDefault("python.cache", DefaultPythonCache)
	v.SetDefault("python.cache_dir", "")

	v.SetDefault("environment.command", DefaultEnvironmentCommand)
	v.SetDefault("environment.dir", "")

	v.SetDefault("install.pip", "")
	v.SetDefault("install.copy_fallback", DefaultInstallFallback)

	v.SetDefault("wsgi.enabled", DefaultWSGIEnabled)
	v.SetDefault("wsgi.path", DefaultWSGIPath)
	v.SetDefault("wsgi.backup", DefaultWSGIBackup)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_headers", "")
	v.SetDefault("telemetry.otlp_insecure", false)
	v.SetDefault("telemetry.sample_ratio", 0.0)
	v.SetDefault("telemetry.metrics_file", "")
}

// Validate checks every section.
func (c *Config) Validate() error {
	if len(c.Scan.Extensions) == 0 {
		return ErrNoExtensions
	}

	for _, ext := range c.Scan.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("%w: %q", ErrInvalidExtension, ext)
		}
	}

	_, err := c.MaxFileSizeBytes()
	if err != nil {
		return err
	}

	if c.Python.Interpreter == "" {
		return ErrEmptyInterpreter
	}

	_, err = c.LogLevel()
	if err != nil {
		return err
	}

	if c.Logging.Format != LogFormatText && c.Logging.Format != LogFormatJSON {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, c.Telemetry.SampleRatio)
	}

	return nil
}

// MaxFileSizeBytes parses scan.max_file_size. Zero means unlimited.
func (c *Config) MaxFileSizeBytes() (int64, error) {
	if c.Scan.MaxFileSize == "" {
		return 0, nil
	}

	n, err := humanize.ParseBytes(c.Scan.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidFileSize, err)
	}

	if n > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidFileSize, c.Scan.MaxFileSize)
	}

	return int64(n), nil
}

// LogLevel parses logging.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level

	err := level.UnmarshalText([]byte(c.Logging.Level))
	if err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}

	return level, nil
}

// ClassifyOptions returns the tree walk options.
func (c *Config) ClassifyOptions() classify.Options {
	size, err := c.MaxFileSizeBytes()
	if err != nil {
		size = 0
	}

	return classify.Options{
		Extensions:    c.Scan.Extensions,
		PackageMarker: c.Scan.PackageMarker,
		MaxFileSize:   size,
		SkipVendored:  c.Scan.SkipVendored,
	}
}

// CatalogCacheDir returns where standard-library catalogs are cached.
func (c *Config) CatalogCacheDir() (string, error) {
	if c.Python.CacheDir != "" {
		return c.Python.CacheDir, nil
	}

	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate cache dir: %w", err)
	}

	return filepath.Join(base, cacheSubdir), nil
}

// Observability returns the telemetry settings for the given mode.
func (c *Config) Observability(mode observability.AppMode, version string) observability.Config {
	obs := observability.DefaultConfig()
	obs.Mode = mode
	obs.ServiceVersion = version
	obs.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	obs.OTLPHeaders = observability.ParseOTLPHeaders(c.Telemetry.OTLPHeaders)
	obs.OTLPInsecure = c.Telemetry.OTLPInsecure
	obs.SampleRatio = c.Telemetry.SampleRatio
	obs.MetricsFile = c.Telemetry.MetricsFile
	obs.LogJSON = c.Logging.Format == LogFormatJSON

	level, err := c.LogLevel()
	if err == nil {
		obs.LogLevel = level
	}

	return obs
}
