package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/katello/lifecycle/pkg/authz"
	"github.com/katello/lifecycle/pkg/lifecycle"
	"github.com/katello/lifecycle/pkg/tenancy"
)

type lifecycleClient struct {
	baseURL      string
	organization string
	user         string
	token        string
	http         *http.Client
}

func newClient() *lifecycleClient {
	return &lifecycleClient{
		baseURL:      strings.TrimSuffix(serverURL, "/"),
		organization: resolvedOrganization(),
		user:         resolvedUser(),
		token:        resolvedToken(),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiPath prefixes path with the API root.
func apiPath(path string, query url.Values) string {
	p := authz.APIPrefix + path
	if len(query) > 0 {
		p += "?" + query.Encode()
	}
	return p
}

func (c *lifecycleClient) getJSON(path string, v any) error {
	return c.do(http.MethodGet, path, nil, v)
}

func (c *lifecycleClient) postJSON(path string, body, v any) error {
	return c.do(http.MethodPost, path, body, v)
}

func (c *lifecycleClient) putJSON(path string, body, v any) error {
	return c.do(http.MethodPut, path, body, v)
}

func (c *lifecycleClient) delete(path string) error {
	return c.do(http.MethodDelete, path, nil, nil)
}

// do sends a JSON request and decodes a 2xx response into v.
func (c *lifecycleClient) do(method, path string, body, v any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.organization != "" {
		req.Header.Set(tenancy.OrganizationHeader, c.organization)
	}
	if c.user != "" {
		req.Header.Set("X-Remote-User", c.user)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	return nil
}

// decodeError turns a non-2xx response into an error, preferring the
// server's message and per-field validation errors.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	var e lifecycle.ErrorResponse
	if err := json.Unmarshal(data, &e); err != nil || e.Message == "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	msg := fmt.Sprintf("server returned %d: %s", resp.StatusCode, e.Message)
	for field, errs := range e.Errors {
		msg += fmt.Sprintf("\n  %s: %s", field, strings.Join(errs, ", "))
	}
	return fmt.Errorf("%s", msg)
}
