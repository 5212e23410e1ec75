package config

// Scan defaults.
const (
	DefaultScanExtension    = ".py"
	DefaultScanMarker       = "__init__.py"
	DefaultScanMaxFileSize  = "0"
	DefaultScanSkipVendored = false
)

// Interpreter defaults.
const (
	DefaultPythonInterpreter = "python3"
	DefaultPythonCache       = true
)

// Provisioning defaults.
const (
	DefaultEnvironmentCommand = "virtualenv"
	DefaultInstallFallback    = true
	DefaultWSGIEnabled        = true
	DefaultWSGIPath           = "/var/www/wsgi.py"
	DefaultWSGIBackup         = true
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

const cacheSubdir = "virtualenvify"
