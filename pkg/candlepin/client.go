package candlepin

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
	"strings"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
)

// Environment is a Candlepin environment under an owner.
type Environment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// APIError is a non-success Candlepin response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("candlepin: %d %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the request later may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsNotFound reports whether err is a Candlepin 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to the Candlepin environments API.
type Client struct {
	baseURL  *url.URL
	username string
	password string
	http     *retryablehttp.Client
	logger   *slog.Logger
}

// NewClient creates a Client. Transient failures (connection errors, 429
// and 5xx) are retried with exponential backoff.
func NewClient(cfg *CandlepinConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		return nil, errors.New("candlepin url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid candlepin url: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.Logger = logger
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:  u,
		username: cfg.Username,
		password: cfg.Password,
		http:     rc,
		logger:   logger,
	}, nil
}

// CreateEnvironment creates env under owner. An environment that already
// exists is not an error.
func (c *Client) CreateEnvironment(ctx context.Context, owner string, env Environment) error {
	path := "owners/" + url.PathEscape(owner) + "/environments"
	err := c.do(ctx, http.MethodPost, path, env, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		c.logger.Debug("candlepin environment already exists", "owner", owner, "id", env.ID)
		return nil
	}
	return err
}

// GetEnvironment returns the environment with id, or nil if none exists.
func (c *Client) GetEnvironment(ctx context.Context, id string) (*Environment, error) {
	var env Environment
	err := c.do(ctx, http.MethodGet, "environments/"+url.PathEscape(id), nil, &env)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &env, nil
}

// DeleteEnvironment deletes the environment with id. A missing environment
// is not an error.
func (c *Client) DeleteEnvironment(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "environments/"+url.PathEscape(id), nil, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	u, err := c.baseURL.Parse(path)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts displayMessage from a Candlepin error body.
func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var payload struct {
		DisplayMessage string `json:"displayMessage"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.DisplayMessage != "" {
		return payload.DisplayMessage
	}
	return strings.TrimSpace(string(data))
}
