// Package badgr issues achievement credentials through the Badgr API on
// behalf of pipelines whose builds succeeded.
package badgr

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
	"sync"
	"time"

	"github.com/eosc-synergy/sqaaas/logger"
)

const defaultUserAgent = "sqaaas-api/badgr"

// tokenSafetyMargin is subtracted from the token lifetime so a token is
// refreshed before it can expire mid-request.
const tokenSafetyMargin = 100 * time.Second

// Config is configuration for the Badgr client.
type Config struct {
	// Endpoint is the Badgr base URL.
	Endpoint string

	// Username and Password obtain the bearer token.
	Username string
	Password string

	// IssuerName and BadgeClassName select, by display name, the badge
	// class assertions are issued against.
	IssuerName     string
	BadgeClassName string

	// User agent used when communicating with Badgr.
	UserAgent string

	// The http client used, leave nil for the default.
	HTTPClient *http.Client
}

// Client manages communication with the Badgr API. It holds a bearer token
// that is refreshed transparently before it expires.
type Client struct {
	conf   Config
	client *http.Client
	logger logger.Logger

	mtx         sync.Mutex
	accessToken string
	tokenExpiry time.Time
	now         func() time.Time
}

// NewClient returns a new Badgr API client. No token is fetched until the
// first request.
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
		logger: l.WithPrefix("badgr"),
		now:    time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// ensureToken refreshes the bearer token when it is missing or within the
// safety margin of expiring. The refresh is atomic on the client.
func (c *Client) ensureToken(ctx context.Context) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.accessToken != "" && c.now().Before(c.tokenExpiry) {
		return nil
	}

	form := url.Values{
		"username": {c.conf.Username},
		"password": {c.conf.Password},
	}
	u := strings.TrimRight(c.conf.Endpoint, "/") + "/o/token"
	req, err := http.NewRequestWithContext(ctx, "POST", u, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Add("User-Agent", c.conf.UserAgent)
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if err := checkResponse(resp); err != nil {
		return fmt.Errorf("requesting token: %w", err)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("decoding token response: %w", err)
	}
	if token.AccessToken == "" {
		return errors.New("empty access token from credential issuer")
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(token.ExpiresIn)*time.Second - tokenSafetyMargin)
	c.logger.Debug("Bearer token refreshed, expires in %ds", token.ExpiresIn)
	return nil
}

// newRequest creates an authenticated API request, refreshing the bearer
// token first if needed.
func (c *Client) newRequest(ctx context.Context, method, urlStr string, body any) (*http.Request, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

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
	c.mtx.Lock()
	req.Header.Add("Authorization", "Bearer "+c.accessToken)
	c.mtx.Unlock()
	if body != nil {
		req.Header.Add("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) doRequest(req *http.Request, v any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if err := checkResponse(resp); err != nil {
		// Surface any field or validation errors before failing.
		var apiResp apiResponse
		if json.Unmarshal(data, &apiResp) == nil {
			if len(apiResp.FieldErrors) > 0 {
				c.logger.Warn("Field errors from credential issuer: %s", apiResp.FieldErrors)
			}
			if len(apiResp.ValidationErrors) > 0 {
				c.logger.Warn("Validation errors from credential issuer: %s", apiResp.ValidationErrors)
			}
		}
		return err
	}

	if v != nil {
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to decode JSON response: %w", err)
		}
	}
	return nil
}

// apiResponse is the envelope Badgr wraps every v2 response in.
type apiResponse struct {
	Result           json.RawMessage `json:"result"`
	FieldErrors      json.RawMessage `json:"fieldErrors"`
	ValidationErrors json.RawMessage `json:"validationErrors"`
}

// ErrorResponse is an error reported by the Badgr API.
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
