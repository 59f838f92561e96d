package meli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	errs "hazmate/pkg/errors"
	"hazmate/pkg/logger"
	"hazmate/pkg/metrics"
)

// Client is an HTTP client for the MercadoLibre products API. It performs
// exactly one upstream call per method; retry and backoff policy live with
// the callers.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	logger     logger.Logger
}

// NewClient creates a new API client
func NewClient(timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"Accept": "application/json",
		},
		baseURL: DefaultBaseURL,
		logger:  log,
	}
}

// SetBaseURL overrides the API root (used by tests against a mock server)
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// BaseURL returns the configured API root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// Search performs one discovery call for a free-text query
func (c *Client) Search(ctx context.Context, accessToken, siteID, query string, offset, limit int) (*SearchResponse, error) {
	endpoint := SearchURL(c.baseURL, siteID, query, offset, limit)

	var response SearchResponse
	if err := c.getJSON(ctx, "search", endpoint, accessToken, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// Product performs one detail call for an item id
func (c *Client) Product(ctx context.Context, accessToken, itemID string) (*Product, error) {
	endpoint := ProductURL(c.baseURL, itemID)

	var product Product
	if err := c.getJSON(ctx, "product", endpoint, accessToken, &product); err != nil {
		return nil, err
	}

	return &product, nil
}

// RefreshToken exchanges a refresh token for a new access/refresh token pair
func (c *Client) RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("refresh_token", refreshToken)

	return c.postTokenForm(ctx, form)
}

// ExchangeAuthorizationCode exchanges an authorization code for the initial
// token pair
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, clientID, clientSecret, code, redirectURI string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)

	return c.postTokenForm(ctx, form)
}

// postTokenForm performs one OAuth token exchange call
func (c *Client) postTokenForm(ctx context.Context, form url.Values) (*TokenResponse, error) {
	endpoint := TokenURL(c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errs.Newf(errs.KindUnknown, 0, "failed to create token request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, "token")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		// Any rejection of the token exchange is an auth failure: the run
		// cannot continue without out-of-band re-authorization.
		return nil, errs.Newf(errs.KindAuth, resp.StatusCode, "token exchange rejected: %s", strings.TrimSpace(string(body)))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, errs.Newf(errs.KindSchema, 0, "failed to decode token response: %v", err)
	}
	if token.AccessToken == "" {
		return nil, errs.New(errs.KindSchema, 0, "token response missing access_token")
	}

	return &token, nil
}

// getJSON performs a GET with bearer auth and decodes the JSON response
func (c *Client) getJSON(ctx context.Context, endpointName, endpoint, accessToken string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errs.Newf(errs.KindUnknown, 0, "failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.do(req, endpointName)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return errs.Newf(errs.KindSchema, 0, "failed to decode %s response: %v", endpointName, err)
	}

	return nil
}

// do performs one HTTP round trip with the configured headers
func (c *Client) do(req *http.Request, endpointName string) (*http.Response, error) {
	for key, value := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	metrics.RequestDuration.WithLabelValues(endpointName).Observe(duration.Seconds())

	if err != nil {
		metrics.RequestsTotal.WithLabelValues(endpointName, "0").Inc()
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Newf(errs.KindNetwork, 0, "network error: %v", err)
	}

	metrics.RequestsTotal.WithLabelValues(endpointName, fmt.Sprintf("%d", resp.StatusCode)).Inc()
	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// statusError converts a non-200 response into a classified error
func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	kind := errs.KindForStatusCode(resp.StatusCode)
	return errs.New(kind, resp.StatusCode, message)
}
