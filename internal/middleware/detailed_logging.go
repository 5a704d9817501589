package middleware

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"pageinbox/internal/privacy"
	"pageinbox/internal/service"
	"pageinbox/internal/tracing"
)

const maskedValue = "***MASKED***"

// DetailedLoggingConfig controls what gets logged
type DetailedLoggingConfig struct {
	LogRequestHeaders  bool
	LogResponseHeaders bool
	LogRequestBody     bool
	LogResponseBody    bool
	MaxBodySize        int      // bytes
	SensitiveHeaders   []string // masked in header dumps
	SensitiveParams    []string // masked in logged query strings
	SkipEndpoints      []string // path prefixes left alone
}

// DefaultDetailedLoggingConfig logs request headers only. Bodies carry
// message text and are off unless asked for.
func DefaultDetailedLoggingConfig() DetailedLoggingConfig {
	return DetailedLoggingConfig{
		LogRequestHeaders: true,
		MaxBodySize:       1024,
		SensitiveHeaders: []string{
			"authorization", "cookie", "set-cookie", "x-hub-signature-256", "x-hub-signature",
		},
		SensitiveParams: []string{
			"token", "access_token", "hub.verify_token", "code",
		},
		SkipEndpoints: []string{
			"/metrics", "/health", "/user/websocket",
		},
	}
}

// DetailedLoggingMiddleware dumps request and response details at debug
// level. It is installed only when the logger runs at debug.
func DetailedLoggingMiddleware(logger *logrus.Logger, config DetailedLoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range config.SkipEndpoints {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			requestID := tracing.GetRequestID(r.Context())
			logRequestDetails(logger, r, requestID, config)

			var capture *responseCaptureWrapper
			writer := w
			if config.LogResponseBody || config.LogResponseHeaders {
				capture = &responseCaptureWrapper{
					ResponseWriter: w,
					body:           bytes.NewBuffer(nil),
					headers:        make(http.Header),
					statusCode:     http.StatusOK,
				}
				writer = capture
			}

			next.ServeHTTP(writer, r)

			if capture != nil {
				logResponseDetails(logger, capture, requestID, config)
			}
		})
	}
}

func logRequestDetails(logger *logrus.Logger, r *http.Request, requestID string, config DetailedLoggingConfig) {
	fields := logrus.Fields{
		service.LogFieldRequestID: requestID,
		service.LogFieldMethod:    r.Method,
		service.LogFieldURL:       redactQuery(r.URL, config.SensitiveParams),
		service.LogFieldRemoteIP:  ClientIP(r),
		"content_length":          r.ContentLength,
		"protocol":                r.Proto,
	}

	if config.LogRequestHeaders {
		fields["request_headers"] = maskHeaders(r.Header, config.SensitiveHeaders)
	}

	if config.LogRequestBody && shouldLogBody(r) && r.ContentLength > 0 && r.ContentLength <= int64(config.MaxBodySize) {
		body, err := io.ReadAll(r.Body)
		if err == nil {
			r.Body = io.NopCloser(bytes.NewReader(body))
			fields["request_body"] = privacy.PreviewBody(string(body))
		}
	}

	logger.WithFields(fields).Debug("Detailed request logging")
}

func logResponseDetails(logger *logrus.Logger, capture *responseCaptureWrapper, requestID string, config DetailedLoggingConfig) {
	fields := logrus.Fields{
		service.LogFieldRequestID:  requestID,
		service.LogFieldStatusCode: capture.statusCode,
		service.LogFieldSize:       capture.body.Len(),
	}

	if config.LogResponseHeaders {
		fields["response_headers"] = maskHeaders(capture.headers, config.SensitiveHeaders)
	}

	if config.LogResponseBody && capture.body.Len() > 0 {
		if capture.body.Len() <= config.MaxBodySize {
			fields["response_body"] = capture.body.String()
		} else {
			fields["response_body"] = fmt.Sprintf("***TRUNCATED*** (size: %d bytes)", capture.body.Len())
		}
	}

	logger.WithFields(fields).Debug("Detailed response logging")
}

func maskHeaders(h http.Header, sensitive []string) map[string]string {
	headers := make(map[string]string, len(h))
	for name, values := range h {
		if isSensitive(name, sensitive) {
			headers[name] = maskedValue
		} else {
			headers[name] = strings.Join(values, ", ")
		}
	}
	return headers
}

// redactQuery renders u with sensitive query parameters masked.
func redactQuery(u *url.URL, sensitive []string) string {
	if u.RawQuery == "" {
		return u.Path
	}
	q := u.Query()
	for name := range q {
		if isSensitive(name, sensitive) {
			q.Set(name, maskedValue)
		}
	}
	return u.Path + "?" + q.Encode()
}

// responseCaptureWrapper tees the response into a buffer
type responseCaptureWrapper struct {
	http.ResponseWriter
	body       *bytes.Buffer
	headers    http.Header
	statusCode int
}

func (rc *responseCaptureWrapper) Write(data []byte) (int, error) {
	n, err := rc.ResponseWriter.Write(data)
	if err == nil {
		rc.body.Write(data[:n])
	}
	return n, err
}

func (rc *responseCaptureWrapper) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	for name, values := range rc.ResponseWriter.Header() {
		rc.headers[name] = values
	}
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCaptureWrapper) Unwrap() http.ResponseWriter {
	return rc.ResponseWriter
}

func isSensitive(name string, sensitive []string) bool {
	for _, s := range sensitive {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

// shouldLogBody reports whether the request body is text worth logging
func shouldLogBody(r *http.Request) bool {
	contentType := r.Header.Get("Content-Type")
	for _, textType := range []string{"application/json", "text/", "application/x-www-form-urlencoded"} {
		if strings.Contains(contentType, textType) {
			return true
		}
	}
	return false
}
