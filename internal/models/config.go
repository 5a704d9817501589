package models

// Config holds the application configuration
type Config struct {
	Server        ServerConfig   `json:"server"`
	Database      DatabaseConfig `json:"database"`
	Graph         GraphConfig    `json:"graph"`
	Auth          AuthConfig     `json:"auth"`
	Live          LiveConfig     `json:"live"`
	Retry         RetryConfig    `json:"retry"`
	Tracing       TracingConfig  `json:"tracing"`
	LogLevel      string         `json:"log_level"`
	Locale        string         `json:"locale"`
	RetentionDays int            `json:"retentionDays"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port                 int      `json:"port"`
	ReadTimeoutSec       int      `json:"readTimeoutSec"`
	WriteTimeoutSec      int      `json:"writeTimeoutSec"`
	IdleTimeoutSec       int      `json:"idleTimeoutSec"`
	CleanupIntervalHours int      `json:"cleanupIntervalHours"`
	MaxBodyBytes         int      `json:"maxBodyBytes"`
	AllowedOrigins       []string `json:"allowedOrigins"`
}

// DatabaseConfig selects and configures the store backend
type DatabaseConfig struct {
	Driver           string `json:"driver"`
	Path             string `json:"path"`
	MongoURI         string `json:"mongo_uri"`
	MongoDB          string `json:"mongo_database"`
	EncryptionSecret string `json:"-"`
}

// GraphConfig holds Facebook Graph API settings
type GraphConfig struct {
	BaseURL       string `json:"base_url"`
	Version       string `json:"version"`
	AppID         string `json:"app_id"`
	AppSecret     string `json:"app_secret"`
	RedirectURI   string `json:"redirect_uri"`
	VerifyToken   string `json:"verify_token"`
	TimeoutSec    int    `json:"timeoutSec"`
	ContactCacheH int    `json:"contactCacheHours"`
}

// AuthConfig holds bearer token settings
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// LiveConfig holds live update channel settings
type LiveConfig struct {
	IntervalSec int `json:"intervalSec"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	OTLPEndpoint string  `json:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate"`
	UseConsole   bool    `json:"use_console"`
	Environment  string  `json:"environment"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
