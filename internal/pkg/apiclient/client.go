package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/enterprise-access/access-api/internal/pkg/errorhandler"
	"github.com/enterprise-access/access-api/internal/pkg/metrics"
)

const defaultTimeout = 10 * time.Second

var (
	ErrTimeout = errors.New("upstream timeout")
	ErrNetwork = errors.New("upstream network error")
	ErrConfig  = errors.New("upstream client misconfigured")
)

// HTTPError is a non-2xx response from an upstream service.
type HTTPError struct {
	Service    string
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s http error: %s %s status=%d body=%s", e.Service, e.Method, e.Path, e.StatusCode, e.Body)
}

// Detail returns the upstream "detail" message when the body carries one, else the raw body.
func (e *HTTPError) Detail() string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal([]byte(e.Body), &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return e.Body
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// Config configures a Client.
type Config struct {
	Service   string
	BaseURL   string
	Token     string
	Timeout   time.Duration
	UserAgent string
	Metrics   *metrics.Metrics
}

// Client is a JSON client for one upstream service.
type Client struct {
	service string
	baseURL string
	token   string
	ua      string
	metrics *metrics.Metrics
	http    *http.Client
}

// New creates a client with a pooled transport and a per-request timeout.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		service: cfg.Service,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		ua:      cfg.UserAgent,
		metrics: cfg.Metrics,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Service returns the upstream name used in errors and metrics.
func (c *Client) Service() string { return c.service }

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// GetJSON issues a GET and decodes a 2xx body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// PostJSON issues a POST with a JSON body and decodes a 2xx body into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Do performs the request. Non-2xx responses return *HTTPError; nothing is retried.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if c == nil || c.http == nil {
		return fmt.Errorf("%w: client is nil", ErrConfig)
	}
	if c.baseURL == "" {
		return fmt.Errorf("%w: %s base_url is empty", ErrConfig, c.service)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s request error: %w", c.service, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s request error: %w", c.service, err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		err = c.classifyRequestError(ctx, err)
		c.metrics.ObserveUpstreamError(c.service)
		errorhandler.LogExternalServiceError(ctx, c.service, path, 0, err, "")
		return err
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("%s read error: status=%d: %w", c.service, resp.StatusCode, readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{
			Service:    c.service,
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
		if resp.StatusCode != http.StatusNotFound {
			c.metrics.ObserveUpstreamError(c.service)
			errorhandler.LogExternalServiceError(ctx, c.service, path, resp.StatusCode, httpErr, httpErr.Body)
		}
		return httpErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s decode error: %w", c.service, err)
	}
	return nil
}

func (c *Client) classifyRequestError(ctx context.Context, err error) error {
	if isTimeoutError(ctx, err) {
		return fmt.Errorf("%s timeout: %w: %w", c.service, ErrTimeout, err)
	}
	if isNetworkError(err) {
		return fmt.Errorf("%s network error: %w: %w", c.service, ErrNetwork, err)
	}
	return fmt.Errorf("%s request error: %w", c.service, err)
}

func isTimeoutError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}

	return false
}
