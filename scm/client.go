// Package scm talks to the code-hosting platform where pipeline repositories
// live. Only the GitHub REST v3 API is supported.
package scm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eosc-synergy/sqaaas/logger"
)

const (
	defaultEndpoint      = "https://api.github.com"
	defaultUserAgent     = "sqaaas-api/scm"
	defaultMirrorTimeout = 10 * time.Minute
)

// Config is configuration for the SCM client.
type Config struct {
	// Endpoint for API requests. Defaults to the public GitHub API.
	Endpoint string

	// Personal access token used on every request.
	Token string

	// User agent used when communicating with the platform.
	UserAgent string

	// Organization owning the controlled pipeline repositories.
	Org string

	// MirrorTimeout caps the wall-clock time of a whole Mirror run.
	MirrorTimeout time.Duration

	// The http client used, leave nil for the default.
	HTTPClient *http.Client
}

// Client manages communication with the code-hosting API.
type Client struct {
	conf   Config
	client *http.Client
	logger logger.Logger
}

// NewClient returns a new SCM API client.
func NewClient(l logger.Logger, conf Config) *Client {
	if conf.Endpoint == "" {
		conf.Endpoint = defaultEndpoint
	}
	if conf.UserAgent == "" {
		conf.UserAgent = defaultUserAgent
	}
	if conf.MirrorTimeout <= 0 {
		conf.MirrorTimeout = defaultMirrorTimeout
	}

	httpClient := conf.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	return &Client{
		conf:   conf,
		client: httpClient,
		logger: l.WithPrefix("scm"),
	}
}

// Config returns the internal configuration for the client.
func (c *Client) Config() Config {
	return c.conf
}

// newRequest creates an API request. urlStr is resolved relative to the
// configured endpoint and should not have a preceding slash. If body is
// non-nil it is JSON encoded into the request body.
func (c *Client) newRequest(ctx context.Context, method, urlStr string, body any) (*http.Request, error) {
	u := joinURLPath(c.conf.Endpoint, urlStr)

	buf := new(bytes.Buffer)
	if body != nil {
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		return nil, err
	}

	req.Header.Add("User-Agent", c.conf.UserAgent)
	req.Header.Add("Accept", "application/vnd.github+json")
	if c.conf.Token != "" {
		req.Header.Add("Authorization", "token "+c.conf.Token)
	}
	if body != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	return req, nil
}

// doRequest sends an API request and JSON-decodes the response into v when v
// is non-nil. API errors are returned as *ErrorResponse.
func (c *Client) doRequest(req *http.Request, v any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if err := checkResponse(resp); err != nil {
		return err
	}

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("failed to decode JSON response: %w", err)
		}
	}
	return nil
}

// ErrorResponse is an error reported by the platform API.
type ErrorResponse struct {
	Response *http.Response // HTTP response that caused this error
	Message  string         `json:"message"`
}

func (r *ErrorResponse) Error() string {
	s := fmt.Sprintf("%v %v: %s",
		r.Response.Request.Method, r.Response.Request.URL,
		r.Response.Status)
	if r.Message != "" {
		s = fmt.Sprintf("%s: %v", s, r.Message)
	}
	return s
}

// StatusCode returns the upstream HTTP status.
func (r *ErrorResponse) StatusCode() int {
	return r.Response.StatusCode
}

// IsErrHavingStatus reports whether err is an API error with the given
// upstream status code.
func IsErrHavingStatus(err error, code int) bool {
	var apierr *ErrorResponse
	return errors.As(err, &apierr) && apierr.Response.StatusCode == code
}

func checkResponse(r *http.Response) error {
	if c := r.StatusCode; 200 <= c && c <= 299 {
		return nil
	}

	errorResponse := &ErrorResponse{Response: r}
	data, err := io.ReadAll(r.Body)
	if err == nil && data != nil {
		json.Unmarshal(data, errorResponse)
	}
	return errorResponse
}

func joinURLPath(endpoint string, path string) string {
	return strings.TrimRight(endpoint, "/") + "/" + strings.TrimLeft(path, "/")
}
