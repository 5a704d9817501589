package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pageinbox/internal/metrics"
	"pageinbox/internal/tracing"
)

func bufferedLogger(level logrus.Level) (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(level)
	return logger, &buf
}

func TestObservabilityMiddleware(t *testing.T) {
	logger, logBuffer := bufferedLogger(logrus.InfoLevel)

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tracing.GetRequestID(r.Context()) == "" {
			t.Error("Expected request ID to be set in context")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("test response"))
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.RemoteAddr = "192.168.1.100:12345"
	w := httptest.NewRecorder()

	ObservabilityMiddleware(logger)(testHandler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test response", w.Body.String())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(logBuffer.Bytes()), &entry))
	assert.Equal(t, "HTTP request completed", entry["msg"])
	assert.Equal(t, "192.168.1.100", entry["remote_ip"])
	assert.Equal(t, float64(200), entry["status_code"])
	assert.Equal(t, float64(len("test response")), entry["size_bytes"])
	assert.NotEmpty(t, entry["request_id"])
}

func TestObservabilityMiddleware_LogLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "info"},
		{http.StatusNotFound, "warning"},
		{http.StatusBadGateway, "error"},
	}

	for _, tt := range tests {
		logger, logBuffer := bufferedLogger(logrus.InfoLevel)
		h := ObservabilityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(logBuffer.Bytes()), &entry))
		assert.Equal(t, tt.level, entry["level"], "status %d", tt.status)
	}
}

// counterValue sums the global counter matching name and every given label.
func counterValue(name string, labels map[string]string) float64 {
	counters := metrics.GetAllMetrics()["counters"].(map[string]metrics.Metric)
	total := 0.0
	for _, c := range counters {
		if c.Name != name || len(c.Labels) != len(labels) {
			continue
		}
		match := true
		for k, v := range labels {
			if c.Labels[k] != v {
				match = false
				break
			}
		}
		if match {
			total += c.Value
		}
	}
	return total
}

func TestObservabilityMiddleware_RouteTemplateLabels(t *testing.T) {
	logger, _ := bufferedLogger(logrus.FatalLevel)

	router := mux.NewRouter()
	router.Use(ObservabilityMiddleware(logger))
	router.HandleFunc("/user/threads/{threadId}", func(w http.ResponseWriter, r *http.Request) {}).Methods(http.MethodPost)

	before := counterValue("http_requests_total", map[string]string{
		"method": http.MethodPost, "endpoint": "/user/threads/{threadId}",
	})
	for _, id := range []string{"65a1b2c3d4e5f60718293a4b", "65a1b2c3d4e5f60718293a4c"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/user/threads/"+id, nil))
	}
	after := counterValue("http_requests_total", map[string]string{
		"method": http.MethodPost, "endpoint": "/user/threads/{threadId}",
	})
	assert.Equal(t, before+2, after)
}

func TestWebhookObservabilityMiddleware(t *testing.T) {
	logger, logBuffer := bufferedLogger(logrus.DebugLevel)
	before := counterValue("webhook_errors_total", map[string]string{"source": "messenger", "status_code": "401"})

	h := WebhookObservabilityMiddleware(logger, "messenger")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{}")))

	assert.Contains(t, logBuffer.String(), "Webhook request rejected")
	assert.Equal(t, before+1, counterValue("webhook_errors_total", map[string]string{"source": "messenger", "status_code": "401"}))
}

func TestResponseWrapper(t *testing.T) {
	w := httptest.NewRecorder()
	wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

	wrapper.WriteHeader(http.StatusCreated)
	wrapper.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusCreated, wrapper.statusCode)

	data := []byte("test response data")
	n, err := wrapper.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	_, err = wrapper.Write([]byte(" more data"))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)+len(" more data")), wrapper.responseSize)
	assert.Same(t, w, wrapper.Unwrap())
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestResponseWrapper_Hijack(t *testing.T) {
	plain := &responseWrapper{ResponseWriter: httptest.NewRecorder()}
	_, _, err := plain.Hijack()
	assert.Error(t, err)

	rec := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	wrapper := &responseWrapper{ResponseWriter: rec, statusCode: http.StatusOK}
	_, _, err = wrapper.Hijack()
	require.NoError(t, err)
	assert.True(t, rec.hijacked)
	assert.Equal(t, http.StatusSwitchingProtocols, wrapper.statusCode)
}

func TestMiddleware_ConcurrentRequests(t *testing.T) {
	logger, _ := bufferedLogger(logrus.FatalLevel)
	h := ObservabilityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != http.StatusOK {
				t.Errorf("Expected status 200, got %d", w.Code)
			}
		}()
	}
	wg.Wait()
}
