package constants

// Server defaults
const (
	DefaultServerPort            = 8082
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultMaxBodyBytes          = 1 << 20
)

// Storage defaults
const (
	DriverSQLite                 = "sqlite"
	DriverMongo                  = "mongo"
	DefaultDatabaseDriver        = DriverSQLite
	DefaultDatabasePath          = "pageinbox.db"
	DefaultMongoDatabase         = "pageinbox"
	DefaultDatabaseRetryAttempts = 3
	DefaultRetentionDays         = 0
	DefaultCleanupIntervalHours  = 24
)

// Graph API defaults
const (
	DefaultGraphBaseURL      = "https://graph.facebook.com"
	DefaultGraphVersion      = "v19.0"
	DefaultGraphTimeoutSec   = 30
	DefaultContactCacheHours = 24
	DefaultPageListLimit     = 500

	DefaultGraphBreakerFailures    = 5
	DefaultGraphBreakerCooldownSec = 30
	DefaultGraphBreakerTrialCalls  = 2
)

// Retry defaults
const (
	DefaultRetryBackoffMs = 500
	DefaultMaxBackoffMs   = 5000
	DefaultMaxAttempts    = 3
)

// Inbox defaults
const (
	PageSize               = 10
	DefaultLiveIntervalSec = 5
	MaxReplyLength         = 2000
	MaxSearchLength        = 200
	MaxIdentifierLength    = 500
)

// Live update channel frames
const (
	LiveFrameStale = "0"
	LiveFrameFresh = "1"
)

// Privacy settings
const (
	DefaultIDMaskLength       = 4
	DefaultMessageBodyPreview = 8
)

// Webhook limits
const (
	DefaultWebhookRateLimit     = 600
	DefaultWebhookRateWindowSec = 60
	ServerErrorChannelSize      = 1
	DefaultTokenTTLHours        = 24
)
