package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"pageinbox/internal/constants"
	"pageinbox/internal/models"
	"pageinbox/internal/secrets"
	"pageinbox/internal/security"
)

var (
	ErrMissingDBPath    = models.ConfigError{Message: "missing database path"}
	ErrMissingMongoURI  = models.ConfigError{Message: "missing MongoDB URI"}
	ErrUnknownDriver    = models.ConfigError{Message: "unknown database driver"}
	ErrMissingJWTSecret = models.ConfigError{Message: "missing JWT secret (set JWT_SECRET_KEY)"}
)

// environmentOverrides lists every setting that may come from the process
// environment. Empty values leave the file configuration untouched.
type environmentOverrides struct {
	Environment      string `env:"PAGEINBOX_ENV"`
	Port             int    `env:"PORT"`
	LogLevel         string `env:"LOG_LEVEL"`
	DBDriver         string `env:"DB_DRIVER"`
	DBPath           string `env:"DB_PATH"`
	MongoURI         string `env:"MONGO_URI"`
	MongoDB          string `env:"MONGO_DATABASE"`
	EncryptionSecret string `env:"PAGEINBOX_ENCRYPTION_SECRET"`
	GraphBaseURL     string `env:"GRAPH_BASE_URL"`
	GraphVersion     string `env:"GRAPH_API_VERSION"`
	AppID            string `env:"FB_APP_ID"`
	AppSecret        string `env:"FB_APP_SECRET"`
	RedirectURI      string `env:"FB_REDIRECT_URI"`
	VerifyToken      string `env:"FB_VERIFY_TOKEN"`
	JWTSecret        string `env:"JWT_SECRET_KEY"`
	OTLPEndpoint     string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func LoadConfig(path string) (*models.Config, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// IsProduction reports whether PAGEINBOX_ENV selects production mode.
func IsProduction() bool {
	return os.Getenv("PAGEINBOX_ENV") == "production"
}

func validate(c *models.Config) error {
	if c.Database.Driver == "" {
		c.Database.Driver = constants.DefaultDatabaseDriver
	}
	switch c.Database.Driver {
	case constants.DriverSQLite:
		if c.Database.Path == "" {
			return ErrMissingDBPath
		}
		if err := security.ValidateDatabasePath(c.Database.Path); err != nil {
			return models.ConfigError{Message: err.Error()}
		}
	case constants.DriverMongo:
		if c.Database.MongoURI == "" {
			return ErrMissingMongoURI
		}
		if c.Database.MongoDB == "" {
			c.Database.MongoDB = constants.DefaultMongoDatabase
		}
	default:
		return models.ConfigError{Message: fmt.Sprintf("%s: %q", ErrUnknownDriver.Message, c.Database.Driver)}
	}

	if c.Auth.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if s := c.Database.EncryptionSecret; s != "" && len(s) < secrets.MinSecretLength {
		return models.ConfigError{Message: fmt.Sprintf("encryption secret must be at least %d characters long", secrets.MinSecretLength)}
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.CleanupIntervalHours <= 0 {
		c.Server.CleanupIntervalHours = constants.DefaultCleanupIntervalHours
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = constants.DefaultMaxBodyBytes
	}

	if c.Graph.BaseURL == "" {
		c.Graph.BaseURL = constants.DefaultGraphBaseURL
	}
	c.Graph.BaseURL = strings.TrimRight(c.Graph.BaseURL, "/")
	if c.Graph.Version == "" {
		c.Graph.Version = constants.DefaultGraphVersion
	}
	if c.Graph.TimeoutSec <= 0 {
		c.Graph.TimeoutSec = constants.DefaultGraphTimeoutSec
	}
	if c.Graph.ContactCacheH <= 0 {
		c.Graph.ContactCacheH = constants.DefaultContactCacheHours
	}

	if c.Live.IntervalSec <= 0 {
		c.Live.IntervalSec = constants.DefaultLiveIntervalSec
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.RetentionDays < 0 {
		return models.ConfigError{Message: "retentionDays cannot be negative"}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Locale == "" {
		c.Locale = "en"
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) error {
	var o environmentOverrides
	if err := env.Parse(&o); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid environment: %v", err)}
	}

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	if o.Port > 0 {
		c.Server.Port = o.Port
	}
	setString(&c.LogLevel, o.LogLevel)
	setString(&c.Database.Driver, o.DBDriver)
	setString(&c.Database.Path, o.DBPath)
	setString(&c.Database.MongoURI, o.MongoURI)
	setString(&c.Database.MongoDB, o.MongoDB)
	setString(&c.Graph.BaseURL, o.GraphBaseURL)
	setString(&c.Graph.Version, o.GraphVersion)
	setString(&c.Graph.AppID, o.AppID)
	setString(&c.Graph.RedirectURI, o.RedirectURI)
	setString(&c.Tracing.OTLPEndpoint, o.OTLPEndpoint)

	// Secrets are expected to come from the environment
	setString(&c.Graph.AppSecret, o.AppSecret)
	setString(&c.Graph.VerifyToken, o.VerifyToken)
	setString(&c.Auth.JWTSecret, o.JWTSecret)
	setString(&c.Database.EncryptionSecret, o.EncryptionSecret)
	setString(&c.Tracing.Environment, o.Environment)
	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if IsProduction() {
		if len(c.Auth.JWTSecret) < 32 {
			return models.ConfigError{Message: "JWT secret must be at least 32 characters long in production"}
		}
		if c.Graph.AppSecret == "" {
			return models.ConfigError{Message: "app secret is required in production (set FB_APP_SECRET environment variable)"}
		}
		if c.Graph.VerifyToken == "" {
			return models.ConfigError{Message: "webhook verify token is required in production (set FB_VERIFY_TOKEN environment variable)"}
		}
		if c.Database.EncryptionSecret == "" {
			return models.ConfigError{Message: "token encryption secret is required in production (set PAGEINBOX_ENCRYPTION_SECRET environment variable)"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.Graph.AppSecret == "" {
		fmt.Fprintf(os.Stderr, "WARNING: app secret not set, webhook signatures will not be verified. Set FB_APP_SECRET.\n")
	}

	return nil
}
