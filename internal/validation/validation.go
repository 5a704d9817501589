package validation

import (
	"encoding/hex"
	"fmt"
	"html"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"pageinbox/internal/constants"
	"pageinbox/internal/errors"
)

// IDLength is the length of an entity id: 12 bytes, hex encoded.
const IDLength = 24

// Sanitize makes an untrusted string safe to store and echo back: control
// characters are dropped, surrounding space is trimmed and markup-significant
// characters are escaped.
func Sanitize(input string) string {
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "")
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)
	return html.EscapeString(strings.TrimSpace(cleaned))
}

// IsValidID reports whether id has the entity id shape.
func IsValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for _, c := range id {
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// ValidateID sanitizes and checks an id taken from a path or frame.
func ValidateID(raw, field, userMessage string) (string, error) {
	id := strings.ToLower(Sanitize(raw))
	if len(id) == 0 || len(id) > constants.MaxIdentifierLength || !IsValidID(id) {
		return "", errors.Validation(field, userMessage)
	}
	return id, nil
}

// DecodeHexFrame decodes a live channel frame carrying a hex-encoded UTF-8
// thread id.
func DecodeHexFrame(frame string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(frame))
	if err != nil {
		return "", fmt.Errorf("frame is not hex: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("frame is not valid UTF-8")
	}
	return string(raw), nil
}

// ValidateExternalID validates a platform-assigned identifier
func ValidateExternalID(externalID string) error {
	if externalID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "external ID cannot be empty")
	}

	if len(externalID) > constants.MaxIdentifierLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("external ID too long (max %d characters)", constants.MaxIdentifierLength))
	}

	for _, char := range externalID {
		if char == '\x00' || char == '\n' || char == '\r' || char == '\t' {
			return errors.New(errors.ErrCodeInvalidInput, "external ID contains invalid characters")
		}
	}

	return nil
}

// ValidateHTTPRequestSize rejects a request whose declared length exceeds
// maxSizeBytes. Bodies of unknown length are left to http.MaxBytesReader.
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64, userMessage string) error {
	if r.ContentLength > maxSizeBytes {
		return errors.RequestTooLarge(maxSizeBytes, userMessage).
			WithContext("content_length", r.ContentLength)
	}
	return nil
}

// ValidateStringLength checks the rune count of value against bounds.
func ValidateStringLength(value, fieldName string, minLength, maxLength int, userMessage string) error {
	n := utf8.RuneCountInString(value)
	if n < minLength || n > maxLength {
		return errors.Validation(fieldName, userMessage).
			WithContext("length", n).
			WithContext("max_length", maxLength)
	}
	return nil
}

// NormalizePage clamps a requested page number to at least 1.
func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
