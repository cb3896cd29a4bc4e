// Package pco is a client for the Planning Center Online REST API with
// Basic-Auth, retry, rate-limit handling, pagination, and metadata discovery.
package pco

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/steeplehq/steeple-engine/pkg/retry"
)

const (
	// maxPageSize is the API's page-size ceiling.
	maxPageSize = 100

	// maxAttempts bounds retries for one request.
	maxAttempts = 5

	// defaultRetryAfter is used when a 429 carries no Retry-After header.
	defaultRetryAfter = 60 * time.Second

	// connectionProbePath is a known-good resource used by TestConnection.
	connectionProbePath = "/people/v2/people"
)

// Params are query parameters for one request.
type Params map[string]string

// Client makes authenticated requests against the Planning Center API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authHeader string
	pageDelay  time.Duration
	logger     *zap.Logger

	// sleep is swapped out in tests so retry waits don't run in real time.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the production API host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithPageDelay sets the pause between successive page fetches.
func WithPageDelay(delay time.Duration) Option {
	return func(c *Client) { c.pageDelay = delay }
}

// NewClient creates a client from a tenant's app id / secret pair. The pair
// is folded into a Basic-Auth header and never logged.
func NewClient(appID, secret string, logger *zap.Logger, opts ...Option) *Client {
	credentials := base64.StdEncoding.EncodeToString([]byte(appID + ":" + secret))

	c := &Client{
		baseURL:    "https://api.planningcenteronline.com",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		authHeader: "Basic " + credentials,
		pageDelay:  100 * time.Millisecond,
		logger:     logger.Named("pco-client"),
		sleep:      retry.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches one page from an endpoint. Transport failures and 5xx
// responses are retried with exponential backoff; a 429 waits out the
// Retry-After header instead. Other 4xx responses fail immediately.
func (c *Client) Get(ctx context.Context, endpoint string, params Params, include []string) (*ResourcePage, error) {
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	if len(include) > 0 {
		includes := include[0]
		for _, inc := range include[1:] {
			includes += "," + inc
		}
		query.Set("include", includes)
	}

	requestURL := c.baseURL + endpoint
	if encoded := query.Encode(); encoded != "" {
		requestURL += "?" + encoded
	}

	var (
		page      *ResourcePage
		attempt   int
		exhausted bool
	)
	err := retry.Do(ctx, c.retryConfig(), func() error {
		attempt++
		p, retryable, err := c.doRequest(ctx, requestURL, endpoint)
		if err == nil {
			page = p
			return nil
		}
		if !retryable {
			return retry.Permanent(err)
		}
		if attempt == maxAttempts {
			exhausted = true
			return err
		}
		c.logger.Warn("Request failed, retrying",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return err
	})
	if err != nil {
		if exhausted {
			return nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", endpoint, maxAttempts, err)
		}
		return nil, err
	}
	return page, nil
}

// retryConfig matches the upstream API's expectations: five attempts with
// 2s, 4s, 8s, 16s waits, no jitter so a mandated Retry-After is honored
// exactly.
func (c *Client) retryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:   maxAttempts - 1,
		InitialDelay: 2 * time.Second,
		MaxDelay:     32 * time.Second,
		Multiplier:   2.0,
		Sleep:        c.sleep,
	}
}

// rateLimitError marks a 429 response and carries the mandated wait.
type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (429), retry after %s", e.retryAfter)
}

// RetryWait makes a 429 override the backoff curve inside retry.Do.
func (e *rateLimitError) RetryWait() time.Duration { return e.retryAfter }

func (c *Client) doRequest(ctx context.Context, requestURL, endpoint string) (page *ResourcePage, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := defaultRetryAfter
		if header := resp.Header.Get("Retry-After"); header != "" {
			if secs, parseErr := strconv.Atoi(header); parseErr == nil && secs >= 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		c.logger.Warn("Rate limit hit", zap.String("endpoint", endpoint), zap.Duration("retry_after", retryAfter))
		return nil, true, &rateLimitError{retryAfter: retryAfter}

	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status %d from %s", resp.StatusCode, endpoint)

	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("request rejected: status %d from %s", resp.StatusCode, endpoint)
	}

	var decoded ResourcePage
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, false, fmt.Errorf("decode response from %s: %w", endpoint, err)
	}

	c.logger.Debug("Request complete",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Int("data_items", len(decoded.Data)),
		zap.Int("included_items", len(decoded.Included)),
		zap.Duration("elapsed", time.Since(start)))

	return &decoded, false, nil
}

// GetAllPages fetches every page of a paginated endpoint and returns the
// concatenated data items in page order. Pagination uses a numeric offset
// and stops at the first empty page or when links.next is absent.
func (c *Client) GetAllPages(ctx context.Context, endpoint string, params Params, include []string, perPage int) ([]Resource, error) {
	if perPage <= 0 || perPage > maxPageSize {
		perPage = maxPageSize
	}

	pageParams := Params{}
	for k, v := range params {
		pageParams[k] = v
	}
	pageParams["per_page"] = strconv.Itoa(perPage)

	var allData []Resource
	offset := 0
	pageNum := 0

	for {
		pageNum++
		pageParams["offset"] = strconv.Itoa(offset)

		page, err := c.Get(ctx, endpoint, pageParams, include)
		if err != nil {
			return nil, err
		}

		if len(page.Data) == 0 {
			break
		}
		allData = append(allData, page.Data...)

		if page.Links.Next == "" {
			break
		}
		offset += len(page.Data)

		// Small delay between pages to stay under rate limits.
		if err := c.sleep(ctx, c.pageDelay); err != nil {
			return nil, err
		}
	}

	c.logger.Info("Pagination complete",
		zap.String("endpoint", endpoint),
		zap.Int("pages", pageNum),
		zap.Int("records", len(allData)))

	return allData, nil
}

// GetPages fetches every page like GetAllPages but hands each full page to
// visit, so callers that need included resources can process them per page.
func (c *Client) GetPages(ctx context.Context, endpoint string, params Params, include []string, perPage int, visit func(*ResourcePage) error) error {
	if perPage <= 0 || perPage > maxPageSize {
		perPage = maxPageSize
	}

	pageParams := Params{}
	for k, v := range params {
		pageParams[k] = v
	}
	pageParams["per_page"] = strconv.Itoa(perPage)

	offset := 0
	for {
		pageParams["offset"] = strconv.Itoa(offset)

		page, err := c.Get(ctx, endpoint, pageParams, include)
		if err != nil {
			return err
		}
		if len(page.Data) == 0 {
			return nil
		}

		if err := visit(page); err != nil {
			return err
		}

		if page.Links.Next == "" {
			return nil
		}
		offset += len(page.Data)
		if err := c.sleep(ctx, c.pageDelay); err != nil {
			return err
		}
	}
}

// TestConnection makes one minimal request against a known-good resource.
// On failure the error string is returned verbatim for display.
func (c *Client) TestConnection(ctx context.Context) (bool, string) {
	_, err := c.Get(ctx, connectionProbePath, Params{"per_page": "1"}, nil)
	if err != nil {
		return false, err.Error()
	}
	return true, ""
}
