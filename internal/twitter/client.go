package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/abdulachik/amplibot/internal/model"
)

const (
	// DefaultBaseURL is the X API host. Paths include the /2 version prefix.
	DefaultBaseURL = "https://api.twitter.com"

	defaultTimeout    = 30 * time.Second
	defaultRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 10 * time.Second
)

// Endpoint labels used in errors, logs and metrics.
const (
	EndpointSearch  = "search"
	EndpointMe      = "me"
	EndpointLike    = "like"
	EndpointRetweet = "retweet"
	EndpointFollow  = "follow"
)

// Config holds credentials and transport settings for the X API client.
type Config struct {
	BaseURL string

	// BearerToken enables app-only auth for search.
	BearerToken string

	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string

	RPS        float64
	Burst      int
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration

	// HTTPClient is the base client the auth transports wrap.
	HTTPClient *http.Client

	// OnRetry is called with the endpoint label before each retry.
	OnRetry func(endpoint string)
}

// HasUserContext reports whether all four OAuth 1.0a values are set.
func (c Config) HasUserContext() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" &&
		c.AccessToken != "" && c.AccessTokenSecret != ""
}

// HasAppAuth reports whether app-only search auth can be configured.
func (c Config) HasAppAuth() bool {
	return c.BearerToken != "" || (c.ConsumerKey != "" && c.ConsumerSecret != "")
}

// Client talks to the X API v2. It is safe for sequential use by the poll loop.
type Client struct {
	baseURL    string
	app        *http.Client
	user       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	onRetry    func(endpoint string)

	mu sync.Mutex
	me *model.User
}

// New creates a client. Missing credentials are reported when a call needs them.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		baseURL:    cfg.BaseURL,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		onRetry:    cfg.OnRetry,
	}

	// Search prefers a bearer token, then user context, then a client
	// credentials exchange when only the consumer pair is known.
	appCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	switch {
	case cfg.BearerToken != "":
		c.app = oauth2.NewClient(appCtx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.BearerToken,
			TokenType:   "Bearer",
		}))
	case cfg.HasUserContext():
	case cfg.HasAppAuth():
		cc := &clientcredentials.Config{
			ClientID:     cfg.ConsumerKey,
			ClientSecret: cfg.ConsumerSecret,
			TokenURL:     cfg.BaseURL + "/oauth2/token",
		}
		c.app = cc.Client(appCtx)
	}
	if c.app != nil {
		c.app.Timeout = cfg.Timeout
	}

	if cfg.HasUserContext() {
		userCtx := context.WithValue(context.Background(), oauth1.HTTPClient, base)
		c.user = oauth1.NewConfig(cfg.ConsumerKey, cfg.ConsumerSecret).
			Client(userCtx, oauth1.NewToken(cfg.AccessToken, cfg.AccessTokenSecret))
		c.user.Timeout = cfg.Timeout
	}

	return c
}

type request struct {
	method   string
	endpoint string
	path     string
	query    url.Values
	body     any
	// user forces OAuth 1.0a user context.
	user bool
}

// do sends r through the limiter and the retry policy and returns the 2xx body.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	hc := c.app
	if r.user || hc == nil {
		hc = c.user
	}
	if hc == nil {
		return nil, fmt.Errorf("x api %s: no credentials configured", r.endpoint)
	}

	var payload []byte
	if r.body != nil {
		var err error
		payload, err = json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", r.endpoint, err)
		}
	}

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	//nolint:bodyclose // the body is closed below or inside the attempt
	resp, err := failsafe.With(c.retryPolicy(ctx, r.endpoint)).
		WithContext(ctx).
		Get(func() (*http.Response, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}

			var body io.Reader
			if payload != nil {
				body = bytes.NewReader(payload)
			}
			req, err := http.NewRequestWithContext(ctx, r.method, u, body)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")
			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := hc.Do(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= http.StatusInternalServerError {
				defer resp.Body.Close()
				respBody, _ := io.ReadAll(resp.Body)
				return nil, newAPIError(r.endpoint, resp.StatusCode, respBody)
			}
			return resp, nil
		})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, &APIError{Endpoint: r.endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{
			Endpoint:   r.endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("read response: %w", err),
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{
			Endpoint: r.endpoint,
			ResetAt:  parseReset(resp.Header.Get("x-rate-limit-reset")),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(r.endpoint, resp.StatusCode, respBody)
	}

	return respBody, nil
}

// retryPolicy retries transport errors and 5xx responses. 429 comes back as a
// plain response and is never retried.
//
//nolint:bodyclose // *http.Response is a type parameter here
func (c *Client) retryPolicy(ctx context.Context, endpoint string) retrypolicy.RetryPolicy[*http.Response] {
	return retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(c.retryDelay, maxRetryDelay).
		WithMaxRetries(c.maxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ *http.Response, err error) bool {
			return err != nil && ctx.Err() == nil
		}).
		OnRetry(func(e failsafe.ExecutionEvent[*http.Response]) {
			slog.Warn("retrying x api request",
				"endpoint", endpoint,
				"attempt", e.Attempts(),
				"error", e.LastError(),
			)
			if c.onRetry != nil {
				c.onRetry(endpoint)
			}
		}).
		Build()
}

func parseReset(v string) time.Time {
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// problem is the error shape X uses both for failed requests and for
// partial errors inside 2xx payloads.
type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Errors []struct {
		Message string `json:"message"`
		Title   string `json:"title"`
		Detail  string `json:"detail"`
	} `json:"errors"`
}

func (p problem) apiError(endpoint string, status int) *APIError {
	e := &APIError{
		Endpoint:   endpoint,
		StatusCode: status,
		Title:      p.Title,
		Detail:     p.Detail,
	}
	for _, item := range p.Errors {
		switch {
		case item.Message != "":
			e.Messages = append(e.Messages, item.Message)
		case item.Detail != "":
			e.Messages = append(e.Messages, item.Detail)
		case item.Title != "":
			e.Messages = append(e.Messages, item.Title)
		}
	}
	return e
}

func newAPIError(endpoint string, status int, body []byte) *APIError {
	var p problem
	if err := json.Unmarshal(body, &p); err != nil || (p.Title == "" && p.Detail == "" && len(p.Errors) == 0) {
		e := &APIError{Endpoint: endpoint, StatusCode: status, Title: http.StatusText(status)}
		if text := bytes.TrimSpace(body); len(text) > 0 {
			e.Detail = model.Preview(string(text), 200)
		}
		return e
	}
	return p.apiError(endpoint, status)
}
