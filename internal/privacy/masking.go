package privacy

import (
	"strings"
	"unicode/utf8"

	"pageinbox/internal/constants"
)

// MaskExternalID masks a platform id (page, sender or message id) showing
// only its last 4 characters.
// Example: "1234567890123" -> "*********0123"
func MaskExternalID(id string) string {
	return maskString(id, constants.DefaultIDMaskLength)
}

// MaskToken hides an access token entirely.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	return "[redacted]"
}

// PreviewBody returns the first few characters of a message body followed by
// an ellipsis, so logs show that a body was present without its content.
// Example: "hello there friend" -> "hello th..."
func PreviewBody(body string) string {
	n := constants.DefaultMessageBodyPreview
	if utf8.RuneCountInString(body) <= n {
		return body
	}
	runes := []rune(body)
	return string(runes[:n]) + "..."
}

// MaskUserID masks a user identifier
// Example: "user123456" -> "******3456"
func MaskUserID(userID string) string {
	return maskString(userID, 4)
}

func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			masked[k] = v
			continue
		}
		switch k {
		case "sender_id", "recipient_id", "page_id", "external_id", "message_id", "external_message_id":
			masked[k] = MaskExternalID(s)
		case "user_id":
			masked[k] = MaskUserID(s)
		case "access_token", "token":
			masked[k] = MaskToken(s)
		case "body", "text", "reply":
			masked[k] = PreviewBody(s)
		default:
			masked[k] = v
		}
	}

	return masked
}
