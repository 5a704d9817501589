package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"pageinbox/internal/errors"
	"pageinbox/internal/metrics"
	"pageinbox/internal/privacy"
	"pageinbox/internal/service"
	"pageinbox/internal/tracing"
)

// routeLabel returns the matched route template so that metric labels do
// not grow with every thread id.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// ObservabilityMiddleware adds request ids, tracing spans, metrics and
// access logs to every request.
func ObservabilityMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.WithOtelTracing(r.Context(), "http_request")
			defer span.End()

			requestID := tracing.GenerateRequestID()
			ctx = tracing.WithRequestID(ctx, requestID)
			ctx = errors.ContextWithRequestID(ctx, requestID)
			ctx = tracing.WithStartTime(ctx, time.Now())
			r = r.WithContext(ctx)

			route := routeLabel(r)
			clientIP := ClientIP(r)

			tracing.AddSpanAttributes(ctx,
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRouteKey.String(route),
				semconv.UserAgentOriginalKey.String(r.Header.Get("User-Agent")),
				attribute.String("client.address", clientIP),
			)

			requestInfo := tracing.GetRequestInfo(ctx)
			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: requestInfo.RequestID,
				service.LogFieldTraceID:   requestInfo.TraceID,
				service.LogFieldMethod:    r.Method,
				service.LogFieldRoute:     route,
				service.LogFieldRemoteIP:  clientIP,
				service.LogFieldUserAgent: r.Header.Get("User-Agent"),
			}).Debug("HTTP request started")

			metrics.IncrementCounter("http_requests_total", map[string]string{
				"method":   r.Method,
				"endpoint": route,
			}, "Total HTTP requests")

			next.ServeHTTP(wrapper, r)

			duration := tracing.Duration(ctx)
			status := wrapper.statusCode

			tracing.AddSpanAttributes(ctx,
				semconv.HTTPResponseStatusCodeKey.Int(status),
				attribute.Int64("http.response.size", wrapper.responseSize),
			)
			if status >= 500 {
				tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("HTTP %d", status))
			} else {
				tracing.SetSpanStatus(ctx, codes.Ok, "")
			}

			labels := map[string]string{
				"method":      r.Method,
				"endpoint":    route,
				"status_code": strconv.Itoa(status),
			}
			metrics.RecordTimer("http_request_duration", duration, labels, "HTTP request duration")
			metrics.IncrementCounter("http_responses_total", labels, "HTTP responses by status code")

			logLevel := logrus.InfoLevel
			if status >= 400 && status < 500 {
				logLevel = logrus.WarnLevel
			} else if status >= 500 {
				logLevel = logrus.ErrorLevel
			}

			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID:  requestInfo.RequestID,
				service.LogFieldTraceID:    requestInfo.TraceID,
				service.LogFieldMethod:     r.Method,
				service.LogFieldRoute:      route,
				service.LogFieldStatusCode: status,
				service.LogFieldDuration:   duration.Milliseconds(),
				service.LogFieldRemoteIP:   clientIP,
				service.LogFieldSize:       wrapper.responseSize,
			}).Log(logLevel, "HTTP request completed")
		})
	}
}

// WebhookObservabilityMiddleware records per-source webhook metrics on top
// of ObservabilityMiddleware.
func WebhookObservabilityMiddleware(logger *logrus.Logger, source string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			ctx, span := tracing.StartSpan(r.Context(), "webhook_request",
				attribute.String("webhook.source", source),
				attribute.Int64("http.request.content_length", r.ContentLength),
			)
			defer span.End()
			r = r.WithContext(ctx)

			metrics.IncrementCounter("webhook_requests_total", map[string]string{"source": source}, "Total webhook requests by source")

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			processingTime := time.Since(startTime)
			status := strconv.Itoa(wrapper.statusCode)

			metrics.RecordTimer("webhook_processing_duration", processingTime, map[string]string{
				"source":      source,
				"status_code": status,
			}, "Webhook processing duration")

			fields := privacy.MaskSensitiveFields(map[string]interface{}{
				service.LogFieldRequestID:  tracing.GetRequestID(ctx),
				service.LogFieldService:    "webhook",
				service.LogFieldComponent:  source,
				service.LogFieldStatusCode: wrapper.statusCode,
				service.LogFieldDuration:   processingTime.Milliseconds(),
				service.LogFieldRemoteIP:   ClientIP(r),
			})

			if wrapper.statusCode >= 400 {
				tracing.SetSpanStatus(ctx, codes.Error, "webhook rejected with HTTP "+status)
				metrics.IncrementCounter("webhook_errors_total", map[string]string{
					"source":      source,
					"status_code": status,
				}, "Webhook requests rejected")
				logger.WithFields(logrus.Fields(fields)).Warn("Webhook request rejected")
				return
			}

			logger.WithFields(logrus.Fields(fields)).Debug("Webhook request completed")
		})
	}
}

// responseWrapper captures the status and size of a response. It exposes the
// underlying writer's hijacker and flusher so websocket upgrades still work.
type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
	wroteHeader  bool
}

func (rw *responseWrapper) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWrapper) Write(data []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(data)
	rw.responseSize += int64(n)
	return n, err
}

func (rw *responseWrapper) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	rw.wroteHeader = true
	return h.Hijack()
}

func (rw *responseWrapper) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
