// Package jenkins talks to the Jenkins instance that executes pipelines.
// Jobs are discovered through a multibranch organization folder, so full job
// names look like org/repo/branch.
package jenkins

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

const defaultUserAgent = "sqaaas-api/jenkins"

// Config is configuration for the CI client.
type Config struct {
	// Endpoint is the Jenkins base URL.
	Endpoint string

	// User and Token authenticate every request (basic auth with an API
	// token).
	User  string
	Token string

	// User agent used when communicating with Jenkins.
	UserAgent string

	// The http client used, leave nil for the default.
	HTTPClient *http.Client
}

// Client manages communication with the Jenkins API.
type Client struct {
	conf   Config
	client *http.Client
	logger logger.Logger
}

// NewClient returns a new Jenkins API client.
func NewClient(l logger.Logger, conf Config) *Client {
	if conf.UserAgent == "" {
		conf.UserAgent = defaultUserAgent
	}

	httpClient := conf.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	return &Client{
		conf:   conf,
		client: httpClient,
		logger: l.WithPrefix("jenkins"),
	}
}

// Config returns the internal configuration for the client.
func (c *Client) Config() Config {
	return c.conf
}

func (c *Client) newRequest(ctx context.Context, method, urlStr string, body any) (*http.Request, error) {
	u := strings.TrimRight(c.conf.Endpoint, "/") + "/" + strings.TrimLeft(urlStr, "/")

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
	if c.conf.User != "" {
		req.SetBasicAuth(c.conf.User, c.conf.Token)
	}
	return req, nil
}

// doRequest sends a request and JSON-decodes the response body into v when v
// is non-nil. The response is returned so callers can read headers.
func (c *Client) doRequest(req *http.Request, v any) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if err := checkResponse(resp); err != nil {
		return resp, err
	}

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return resp, fmt.Errorf("failed to decode JSON response: %w", err)
		}
	}
	return resp, nil
}

// ErrorResponse is an error reported by the Jenkins API.
type ErrorResponse struct {
	Response *http.Response
}

func (r *ErrorResponse) Error() string {
	return fmt.Sprintf("%v %v: %s",
		r.Response.Request.Method, r.Response.Request.URL,
		r.Response.Status)
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
	return &ErrorResponse{Response: r}
}
