package facebook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "pageinbox/internal/errors"
	"pageinbox/internal/retry"
)

func testBackoff() retry.BackoffConfig {
	return retry.BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  3,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*GraphClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	client := NewClient(Config{
		BaseURL:     server.URL + "/",
		Version:     "v19.0",
		AppID:       "app",
		AppSecret:   "secret",
		RedirectURI: "https://example.com/cb",
		Timeout:     2 * time.Second,
	}, testBackoff(), nil, logger)
	return client, server
}

func TestSendMessage_Success(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v19.0/me/messages", r.URL.Path)
		assert.Equal(t, "page-token", r.URL.Query().Get("access_token"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "S1", req.Recipient.ID)
		assert.Equal(t, "RESPONSE", req.MessagingType)
		assert.Equal(t, "hello", req.Message.Text)

		_ = json.NewEncoder(w).Encode(SendResponse{RecipientID: "S1", MessageID: "mid.1"})
	})

	resp, err := client.SendMessage(context.Background(), "S1", "hello", "page-token")
	require.NoError(t, err)
	assert.Equal(t, "mid.1", resp.MessageID)
}

func TestSendMessage_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{"graph error", http.StatusBadRequest, `{"error":{"message":"Invalid OAuth access token","code":190}}`, false},
		{"server error", http.StatusInternalServerError, `oops`, true},
		{"missing message id", http.StatusOK, `{"recipient_id":"S1"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.SendMessage(context.Background(), "S1", "hello", "tok")
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, appErrors.KindUpstream))
			assert.Equal(t, tt.retryable, appErrors.IsRetryable(err))
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "sends are never retried")
		})
	}
}

func TestSendMessage_NetworkFailureRedactsToken(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := client.SendMessage(context.Background(), "S1", "hello", "super-secret-token")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.KindUpstream))
	assert.NotContains(t, err.Error(), "super-secret-token")
}

func TestGetProfile_RetriesServerErrors(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "/v19.0/S1", r.URL.Path)
		assert.Equal(t, "first_name,last_name", r.URL.Query().Get("fields"))
		_, _ = w.Write([]byte(`{"first_name":"Ada","last_name":"Lovelace"}`))
	})

	profile, err := client.GetProfile(context.Background(), "S1", "tok")
	require.NoError(t, err)
	assert.Equal(t, "Ada", profile.FirstName)
	assert.Equal(t, "Lovelace", profile.LastName)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetProfile_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.GetProfile(context.Background(), "S1", "tok")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	var methods []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		assert.Equal(t, "/v19.0/P1/subscribed_apps", r.URL.Path)
		if r.Method == http.MethodPost {
			assert.Equal(t, "messages", r.URL.Query().Get("subscribed_fields"))
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	require.NoError(t, client.SubscribePage(context.Background(), "P1", "tok"))
	require.NoError(t, client.UnsubscribePage(context.Background(), "P1", "tok"))
	assert.Equal(t, []string{http.MethodPost, http.MethodDelete}, methods)
}

func TestSubscribe_SuccessFalse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false}`))
	})

	err := client.SubscribePage(context.Background(), "P1", "tok")
	assert.True(t, appErrors.Is(err, appErrors.KindUpstream))
}

func TestExchangeCodeAndListPages(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v19.0/oauth/access_token":
			q := r.URL.Query()
			assert.Equal(t, "app", q.Get("client_id"))
			assert.Equal(t, "secret", q.Get("client_secret"))
			assert.Equal(t, "https://example.com/cb", q.Get("redirect_uri"))
			assert.Equal(t, "the-code", q.Get("code"))
			_, _ = w.Write([]byte(`{"access_token":"user-token","token_type":"bearer"}`))
		case "/v19.0/me/accounts":
			assert.Equal(t, "500", r.URL.Query().Get("limit"))
			assert.Equal(t, "user-token", r.URL.Query().Get("access_token"))
			_, _ = w.Write([]byte(`{"data":[{"id":"P1","name":"Page One","access_token":"pt1"},{"id":"P2","name":"Page Two","access_token":"pt2"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	token, err := client.ExchangeCode(ctx, "the-code")
	require.NoError(t, err)
	assert.Equal(t, "user-token", token)

	pages, err := client.ListPages(ctx, token)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "P1", pages[0].ExternalID)
	assert.Equal(t, "Page One", pages[0].DisplayName)
	assert.Equal(t, "pt2", pages[1].AccessToken)
}

func TestCircuitOpensOnRepeatedServerErrors(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < 5; i++ {
		_, _ = client.SendMessage(context.Background(), "S1", "x", "tok")
	}
	before := atomic.LoadInt32(&calls)

	_, err := client.SendMessage(context.Background(), "S1", "x", "tok")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.KindUpstream))
	assert.Equal(t, before, atomic.LoadInt32(&calls), "open circuit short-circuits the call")
	assert.Equal(t, "OPEN", client.Breaker().Stats().State)
}

func TestCircuitClosesAfterHalfOpenTrialCalls(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(SendResponse{RecipientID: "S1", MessageID: "mid.ok"})
	}))
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	client := NewClient(Config{
		BaseURL:           server.URL,
		Version:           "v19.0",
		BreakerFailures:   1,
		BreakerCooldown:   20 * time.Millisecond,
		BreakerTrialCalls: 2,
	}, testBackoff(), nil, logger)
	ctx := context.Background()

	_, err := client.SendMessage(ctx, "S1", "x", "tok")
	require.Error(t, err)
	assert.Equal(t, "OPEN", client.Breaker().Stats().State)

	time.Sleep(30 * time.Millisecond)

	_, err = client.SendMessage(ctx, "S1", "x", "tok")
	require.NoError(t, err)
	assert.Equal(t, "HALF_OPEN", client.Breaker().Stats().State, "one trial call is not enough to close")

	_, err = client.SendMessage(ctx, "S1", "x", "tok")
	require.NoError(t, err)
	assert.Equal(t, "CLOSED", client.Breaker().Stats().State)
}
