package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/config"
	"github.com/Sumatoshi-tech/virtualenvify/pkg/observability"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".virtualenvify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_EmptyFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, []string{config.DefaultScanExtension}, cfg.Scan.Extensions)
	assert.Equal(t, config.DefaultScanMarker, cfg.Scan.PackageMarker)
	assert.False(t, cfg.Scan.SkipVendored)
	assert.Equal(t, config.DefaultPythonInterpreter, cfg.Python.Interpreter)
	assert.True(t, cfg.Python.Cache)
	assert.Equal(t, config.DefaultEnvironmentCommand, cfg.Environment.Command)
	assert.True(t, cfg.Install.CopyFallback)
	assert.True(t, cfg.WSGI.Enabled)
	assert.Equal(t, config.DefaultWSGIPath, cfg.WSGI.Path)
	assert.True(t, cfg.WSGI.Backup)
	assert.Equal(t, config.DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, config.LogFormatText, cfg.Logging.Format)

	size, err := cfg.MaxFileSizeBytes()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `scan:
  extensions: [".py", ".pyw"]
  max_file_size: 2MiB
  skip_vendored: true
python:
  interpreter: python3.12
environment:
  command: virtualenv --python python3.12
  dir: venv
wsgi:
  enabled: false
logging:
  level: debug
  format: json
telemetry:
  otlp_endpoint: localhost:4317
  otlp_headers: "x-token=abc"
  sample_ratio: 0.5
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	opts := cfg.ClassifyOptions()
	assert.Equal(t, []string{".py", ".pyw"}, opts.Extensions)
	assert.Equal(t, int64(2<<20), opts.MaxFileSize)
	assert.True(t, opts.SkipVendored)
	assert.Equal(t, "python3.12", cfg.Python.Interpreter)
	assert.Equal(t, "virtualenv --python python3.12", cfg.Environment.Command)
	assert.Equal(t, "venv", cfg.Environment.Dir)
	assert.False(t, cfg.WSGI.Enabled)

	obs := cfg.Observability(observability.ModeMCP, "1.0.0")
	assert.Equal(t, slog.LevelDebug, obs.LogLevel)
	assert.True(t, obs.LogJSON)
	assert.Equal(t, "localhost:4317", obs.OTLPEndpoint)
	assert.Equal(t, map[string]string{"x-token": "abc"}, obs.OTLPHeaders)
	assert.InDelta(t, 0.5, obs.SampleRatio, 0.0001)
	assert.Equal(t, observability.ModeMCP, obs.Mode)
	assert.Equal(t, "1.0.0", obs.ServiceVersion)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("VIRTUALENVIFY_WSGI_PATH", "/srv/www/app_wsgi.py")
	t.Setenv("VIRTUALENVIFY_PYTHON_INTERPRETER", "python3.11")

	cfg, err := config.LoadConfig(writeConfig(t, "python:\n  interpreter: python3.12\n"))
	require.NoError(t, err)

	assert.Equal(t, "/srv/www/app_wsgi.py", cfg.WSGI.Path)
	assert.Equal(t, "python3.11", cfg.Python.Interpreter)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"bad extension", "scan:\n  extensions: [\"py\"]\n", config.ErrInvalidExtension},
		{"bad size", "scan:\n  max_file_size: lots\n", config.ErrInvalidFileSize},
		{"empty interpreter", "python:\n  interpreter: \"\"\n", config.ErrEmptyInterpreter},
		{"bad level", "logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"bad format", "logging:\n  format: xml\n", config.ErrInvalidLogFormat},
		{"bad ratio", "telemetry:\n  sample_ratio: 2\n", config.ErrInvalidSampleRatio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCatalogCacheDir(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Python: config.PythonConfig{CacheDir: "/var/cache/venvify"}}

	dir, err := cfg.CatalogCacheDir()
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/venvify", dir)
}
