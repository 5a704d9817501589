package service

// Standard field names for structured logs. Use these exact keys so log
// queries work across services.
const (
	// Core identifiers
	LogFieldUserID     = "user_id"
	LogFieldAccountID  = "account_id"
	LogFieldThreadID   = "thread_id"
	LogFieldMessageID  = "message_id"
	LogFieldPageID     = "page_id"
	LogFieldSenderID   = "sender_id"
	LogFieldExternalID = "external_id"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"

	// Message and event fields
	LogFieldEvent     = "event"
	LogFieldDirection = "direction" // "inbound" or "outbound"
	LogFieldBody      = "body"
	LogFieldFrame     = "frame"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"

	// Request tracing
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"

	// HTTP fields
	LogFieldMethod     = "method"
	LogFieldURL        = "url"
	LogFieldRoute      = "route"
	LogFieldUserAgent  = "user_agent"
	LogFieldSize       = "size_bytes"
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"

	// Error and debugging
	LogFieldErrorCode = "error_code"
	LogFieldErrorKind = "error_kind"
)

// Log levels
//
// DEBUG: per-event flow, ignored webhooks for unknown pages, live channel ticks.
// INFO: startup/shutdown, accounts connected or deleted, threads created.
// WARN: fallbacks (guest sender name), best-effort Graph calls that failed.
// ERROR: failed operations the caller sees: storage failures, failed replies.
//
// Message patterns: "Starting [operation]", "Failed to [operation]",
// "Skipping [operation]: [reason]". Ids and bodies go through internal/privacy
// before they reach a log field.
