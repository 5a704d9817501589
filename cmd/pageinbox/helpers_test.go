package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"pageinbox/internal/constants"
	"pageinbox/internal/database"
	"pageinbox/internal/i18n"
	"pageinbox/internal/middleware"
	"pageinbox/internal/models"
	"pageinbox/internal/retry"
	"pageinbox/internal/secrets"
	"pageinbox/internal/service"
	"pageinbox/pkg/facebook"
)

const (
	testAppSecret   = "test-app-secret"
	testVerifyToken = "verify-me"
	testJWTSecret   = "test-jwt-secret-0123456789abcdef"
	testPageID      = "1001"
	testUserID      = "user-1"
)

// fakeGraph records Send API calls and serves canned profile answers.
type fakeGraph struct {
	mu       sync.Mutex
	sends    []facebook.SendRequest
	sendFail bool
	unsubs   int
}

func (g *fakeGraph) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()

		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/me/messages"):
			if g.sendFail {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"message":"recipient unavailable","code":551}}`))
				return
			}
			var req facebook.SendRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			g.sends = append(g.sends, req)
			_, _ = w.Write([]byte(`{"recipient_id":"` + req.Recipient.ID + `","message_id":"m_out_1"}`))
		case r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/subscribed_apps"):
			g.unsubs++
			_, _ = w.Write([]byte(`{"success":true}`))
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"first_name":"Ada","last_name":"Lovelace"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (g *fakeGraph) sent() []facebook.SendRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]facebook.SendRequest(nil), g.sends...)
}

type testEnv struct {
	server *Server
	store  *database.Database
	graph  *fakeGraph
	token  string
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	graph := &fakeGraph{}
	graphSrv := httptest.NewServer(graph.handler())
	t.Cleanup(graphSrv.Close)

	enc, err := secrets.NewEncryptor("cmd-tests-secret-0123456789abcdef")
	require.NoError(t, err)
	store, err := database.New(context.Background(), filepath.Join(t.TempDir(), "inbox.db"), enc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &models.Config{
		Server: models.ServerConfig{MaxBodyBytes: constants.DefaultMaxBodyBytes},
		Graph: models.GraphConfig{
			BaseURL:     graphSrv.URL,
			Version:     constants.DefaultGraphVersion,
			AppSecret:   testAppSecret,
			VerifyToken: testVerifyToken,
		},
		Auth: models.AuthConfig{JWTSecret: testJWTSecret},
	}

	logger := quietLogger()
	client := facebook.NewClient(facebook.Config{
		BaseURL: graphSrv.URL,
		Version: constants.DefaultGraphVersion,
		Timeout: 5 * time.Second,
	}, retry.BackoffConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 1}, nil, logger)

	tr := i18n.New("en")
	contacts := service.NewContactService(client, tr, logger)
	svc := Services{
		Store:    store,
		Accounts: service.NewAccountService(store, client, tr, logger),
		Ingest:   service.NewIngestionService(store, contacts, logger),
		Replies:  service.NewReplyService(store, client, tr, logger, 5*time.Second),
		Inbox:    service.NewInboxService(store, tr, logger),
		Live:     service.NewLiveUpdateService(store, tr, logger, 50*time.Millisecond),
		Breaker:  client.Breaker(),
	}

	token, err := middleware.IssueToken([]byte(testJWTSecret), testUserID, time.Hour)
	require.NoError(t, err)

	return &testEnv{
		server: NewServer(cfg, svc, tr, logger),
		store:  store,
		graph:  graph,
		token:  token,
	}
}

func (e *testEnv) connectPage(t *testing.T, pageID string) *models.Account {
	t.Helper()
	account, err := e.store.UpsertAccount(context.Background(), &models.Account{
		UserID:      testUserID,
		NetworkKind: models.NetworkFacebookPages,
		ExternalID:  pageID,
		DisplayName: "Page " + pageID,
		AccessToken: "page-token-" + pageID,
	})
	require.NoError(t, err)
	return account
}

func webhookBody(t *testing.T, pageID, senderID, mid, text string) []byte {
	t.Helper()
	body, err := json.Marshal(models.WebhookPayload{
		Object: models.WebhookObjectPage,
		Entry: []models.WebhookEntry{{
			ID: pageID,
			Messaging: []models.WebhookMessaging{{
				Sender:    models.WebhookParty{ID: senderID},
				Recipient: models.WebhookParty{ID: pageID},
				Message:   models.WebhookMessage{MID: mid, Text: text},
			}},
		}},
	})
	require.NoError(t, err)
	return body
}

// postWebhook delivers body signed with the test app secret.
func (e *testEnv) postWebhook(body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, "sha256="+signBody(body, testAppSecret))
	w := httptest.NewRecorder()
	e.server.router.ServeHTTP(w, req)
	return w
}

// call performs an authenticated request against the router.
func (e *testEnv) call(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.server.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type threadList struct {
	Threads []models.Thread `json:"threads"`
	Total   int             `json:"total"`
	Time    string          `json:"time"`
}

type messageView struct {
	ID         string `json:"id"`
	Body       string `json:"body"`
	IsOutbound bool   `json:"is_outbound"`
}

type messageList struct {
	Messages []messageView `json:"messages"`
	Total    int           `json:"total"`
	Time     string        `json:"time"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func issueTestToken(userID string) (string, error) {
	return middleware.IssueToken([]byte(testJWTSecret), userID, time.Hour)
}
