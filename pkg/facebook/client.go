// Package facebook is a small Graph API client covering the Messenger calls
// the inbox needs.
package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pageinbox/internal/constants"
	appErrors "pageinbox/internal/errors"
	"pageinbox/internal/metrics"
	"pageinbox/internal/models"
	"pageinbox/internal/retry"
	"pageinbox/internal/tracing"
	"pageinbox/pkg/circuitbreaker"
)

const serviceName = "graph"

// maxResponseBytes caps how much of a Graph response is read.
const maxResponseBytes = 1 << 20

// Client is the Graph surface the inbox services depend on.
type Client interface {
	GetProfile(ctx context.Context, userID, accessToken string) (*Profile, error)
	SendMessage(ctx context.Context, recipientID, text, accessToken string) (*SendResponse, error)
	SubscribePage(ctx context.Context, pageID, accessToken string) error
	UnsubscribePage(ctx context.Context, pageID, accessToken string) error
	ExchangeCode(ctx context.Context, code string) (string, error)
	ListPages(ctx context.Context, userAccessToken string) ([]models.ExternalAccount, error)
}

// Config holds the Graph endpoint and app credentials.
type Config struct {
	BaseURL     string
	Version     string
	AppID       string
	AppSecret   string
	RedirectURI string
	Timeout     time.Duration
	PageLimit   int

	// Circuit breaker tuning; zero values take the package defaults.
	BreakerFailures   uint32
	BreakerCooldown   time.Duration
	BreakerTrialCalls uint32
}

var _ Client = (*GraphClient)(nil)

type GraphClient struct {
	cfg     Config
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	backoff *retry.Backoff
	logger  *logrus.Logger
}

// NewClient builds a client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, backoff retry.BackoffConfig, httpClient *http.Client, logger *logrus.Logger) *GraphClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = constants.DefaultPageListLimit
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = constants.DefaultGraphBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = time.Duration(constants.DefaultGraphBreakerCooldownSec) * time.Second
	}
	if cfg.BreakerTrialCalls == 0 {
		cfg.BreakerTrialCalls = constants.DefaultGraphBreakerTrialCalls
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	breaker := circuitbreaker.New(serviceName, cfg.BreakerFailures, cfg.BreakerCooldown,
		circuitbreaker.WithLogger(logger),
		circuitbreaker.WithHalfOpenMaxCalls(cfg.BreakerTrialCalls),
		// 4xx answers mean a bad token or recipient, not an unhealthy Graph.
		circuitbreaker.WithFailurePredicate(appErrors.IsRetryable),
		circuitbreaker.WithStateChangeHook(func(name string, _, to circuitbreaker.State) {
			metrics.SetGauge(metrics.GraphCircuitState, float64(to), map[string]string{"breaker": name},
				"Graph circuit breaker state (0 closed, 1 open, 2 half-open)")
		}))

	return &GraphClient{
		cfg:     cfg,
		client:  httpClient,
		breaker: breaker,
		backoff: retry.NewBackoff(backoff),
		logger:  logger,
	}
}

// Breaker exposes the circuit breaker for health reporting.
func (c *GraphClient) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

func (c *GraphClient) endpoint(path string, query url.Values) string {
	u := fmt.Sprintf("%s/%s/%s", c.cfg.BaseURL, c.cfg.Version, strings.TrimLeft(path, "/"))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// GetProfile fetches the sender's name fields.
func (c *GraphClient) GetProfile(ctx context.Context, userID, accessToken string) (*Profile, error) {
	query := url.Values{
		"fields":       {"first_name,last_name"},
		"access_token": {accessToken},
	}
	var profile Profile
	err := c.backoff.RetryRetryable(ctx, func() error {
		return c.do(ctx, "profile", http.MethodGet, c.endpoint(url.PathEscape(userID), query), nil, &profile)
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// SendMessage posts a RESPONSE message. It is not retried: a timeout after
// Graph accepted the request would otherwise deliver the text twice.
func (c *GraphClient) SendMessage(ctx context.Context, recipientID, text, accessToken string) (*SendResponse, error) {
	body := SendRequest{
		Recipient:     Recipient{ID: recipientID},
		MessagingType: MessagingTypeResponse,
		Message:       MessageText{Text: text},
	}
	endpoint := c.endpoint("me/messages", url.Values{"access_token": {accessToken}})

	var result SendResponse
	if err := c.do(ctx, "send", http.MethodPost, endpoint, body, &result); err != nil {
		return nil, err
	}
	if result.MessageID == "" {
		return nil, appErrors.Upstream(serviceName, "send", http.StatusOK, fmt.Errorf("response has no message_id"))
	}
	return &result, nil
}

func (c *GraphClient) SubscribePage(ctx context.Context, pageID, accessToken string) error {
	return c.subscription(ctx, http.MethodPost, "subscribe", pageID, accessToken)
}

func (c *GraphClient) UnsubscribePage(ctx context.Context, pageID, accessToken string) error {
	return c.subscription(ctx, http.MethodDelete, "unsubscribe", pageID, accessToken)
}

func (c *GraphClient) subscription(ctx context.Context, method, name, pageID, accessToken string) error {
	query := url.Values{"access_token": {accessToken}}
	if method == http.MethodPost {
		query.Set("subscribed_fields", "messages")
	}
	endpoint := c.endpoint(url.PathEscape(pageID)+"/subscribed_apps", query)

	return c.backoff.RetryRetryable(ctx, func() error {
		var result successResponse
		if err := c.do(ctx, name, method, endpoint, nil, &result); err != nil {
			return err
		}
		if !result.Success {
			return appErrors.Upstream(serviceName, name, http.StatusOK, fmt.Errorf("graph reported success=false"))
		}
		return nil
	})
}

// ExchangeCode trades an OAuth code for a user access token.
func (c *GraphClient) ExchangeCode(ctx context.Context, code string) (string, error) {
	query := url.Values{
		"client_id":     {c.cfg.AppID},
		"redirect_uri":  {c.cfg.RedirectURI},
		"client_secret": {c.cfg.AppSecret},
		"code":          {code},
	}
	var token tokenResponse
	if err := c.do(ctx, "oauth", http.MethodGet, c.endpoint("oauth/access_token", query), nil, &token); err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", appErrors.Upstream(serviceName, "oauth", http.StatusOK, fmt.Errorf("response has no access_token"))
	}
	return token.AccessToken, nil
}

// ListPages returns the pages the user token can manage, each with its own
// page access token.
func (c *GraphClient) ListPages(ctx context.Context, userAccessToken string) ([]models.ExternalAccount, error) {
	query := url.Values{
		"limit":        {fmt.Sprintf("%d", c.cfg.PageLimit)},
		"access_token": {userAccessToken},
	}
	var result pagesResponse
	err := c.backoff.RetryRetryable(ctx, func() error {
		return c.do(ctx, "pages", http.MethodGet, c.endpoint("me/accounts", query), nil, &result)
	})
	if err != nil {
		return nil, err
	}

	accounts := make([]models.ExternalAccount, 0, len(result.Data))
	for _, p := range result.Data {
		accounts = append(accounts, models.ExternalAccount{
			ExternalID:  p.ID,
			DisplayName: p.Name,
			AccessToken: p.AccessToken,
		})
	}
	return accounts, nil
}

// do performs one request through the circuit breaker and decodes a 2xx
// JSON body into out. Every failure is an upstream AppError.
func (c *GraphClient) do(ctx context.Context, name, method, endpoint string, payload, out interface{}) error {
	ctx, span := tracing.StartSpan(ctx, "graph."+name)
	defer span.End()
	start := time.Now()
	defer func() {
		metrics.RecordTimer(metrics.GraphRequestTimer, time.Since(start), map[string]string{"endpoint": name},
			"Graph API request latency")
	}()

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var body io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return appErrors.Wrap(err, appErrors.ErrCodeInternalError, "failed to marshal request")
			}
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrCodeInternalError, "failed to create request")
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return appErrors.Upstream(serviceName, name, 0, redactURLError(err))
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return appErrors.Upstream(serviceName, name, 0, fmt.Errorf("failed to read response: %w", err))
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return appErrors.Upstream(serviceName, name, resp.StatusCode, fmt.Errorf("%s", describeError(resp.StatusCode, data)))
		}

		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return appErrors.Upstream(serviceName, name, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
			}
		}
		return nil
	})

	if circuitbreaker.IsOpen(err) {
		err = appErrors.Upstream(serviceName, name, http.StatusServiceUnavailable, err)
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		c.logger.WithFields(logrus.Fields{
			"endpoint": name,
			"method":   method,
		}).WithError(err).Debug("Graph API call failed")
	}
	return err
}

// redactURLError drops the request URL, which carries the access token,
// from transport errors.
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s request failed: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

func describeError(status int, body []byte) string {
	var ge graphError
	if err := json.Unmarshal(body, &ge); err == nil && ge.Error.Message != "" {
		return fmt.Sprintf("status %d: %s (code %d)", status, ge.Error.Message, ge.Error.Code)
	}
	return fmt.Sprintf("status %d", status)
}
