package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const (
	DefaultTimeout = 15 * time.Second
	DefaultBackoff = time.Second
	userAgent      = "CityPulse/1.0 (local news aggregator)"

	maxBodyBytes = 8 << 20
)

// Client performs GET requests with a fixed per-call timeout and a single
// retry after a short backoff.
type Client struct {
	client  *http.Client
	backoff time.Duration
	retries int
}

// NewClient creates a fetch client. A zero timeout uses DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		backoff: DefaultBackoff,
		retries: 1,
	}
}

// WithRetry returns a copy using the given retry count and backoff.
func (c *Client) WithRetry(retries int, backoff time.Duration) *Client {
	cp := *c
	cp.retries = retries
	cp.backoff = backoff
	return &cp
}

// Get fetches rawURL and returns the body. Non-2xx responses become a
// *StatusError. Transport errors and 5xx responses are retried; 4xx are not.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff):
			}
		}

		body, err := c.get(ctx, rawURL, headers)
		if err == nil {
			return body, nil
		}
		lastErr = err
		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 && se.Code != http.StatusTooManyRequests {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", redact(rawURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, URL: redact(rawURL)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", redact(rawURL), err)
	}
	return body, nil
}

// Probe reports whether rawURL answers with a non-5xx status. It performs a
// single request without retries.
func (c *Client) Probe(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// Excerpt fetches an article page and returns its readable text content.
// Callers cap the length.
func (c *Client) Excerpt(ctx context.Context, pageURL string) (string, error) {
	body, err := c.get(ctx, pageURL, map[string]string{"Accept": "text/html"})
	if err != nil {
		return "", err
	}

	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	doc, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", pageURL, err)
	}

	text := strings.TrimSpace(doc.TextContent)
	if text == "" {
		log.Printf("No extractable content from: %s", pageURL)
	}
	return text, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// redact hides credential-bearing query parameters in log output.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	changed := false
	for _, k := range []string{"apiKey", "apikey", "api_key", "key", "token"} {
		if q.Has(k) {
			q.Set(k, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return rawURL
	}
	u.RawQuery = q.Encode()
	return u.String()
}
