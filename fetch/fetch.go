// Package fetch locates and downloads the week menu documents published on
// the university's week menu page.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultBaseURL is the page listing the week menu of every campus.
const DefaultBaseURL = "https://www.uantwerpen.be/nl/campusleven/eten/weekmenu/"

const (
	maxRetries        = 3
	baseRetryDelay    = 1 * time.Second
	minRateLimitDelay = 5 * time.Second
	maxDocumentSize   = 32 << 20
)

var (
	// ErrMenuNotFound is returned when the week menu page has no link
	// under the campus heading.
	ErrMenuNotFound = errors.New("fetch: menu link not found")

	// ErrStatus is returned for a non-200 response that is not retried.
	ErrStatus = errors.New("fetch: unexpected status")
)

// Client fetches the week menu page and the documents it links to.
type Client struct {
	BaseURL   string
	UserAgent string

	client     *http.Client
	retryDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.UserAgent = ua }
}

// WithRetryDelay sets the base delay between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// New returns a client for the week menu page at baseURL. An empty
// baseURL selects DefaultBaseURL.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		BaseURL:    baseURL,
		UserAgent:  "komida/1.0",
		client:     &http.Client{Timeout: timeout},
		retryDelay: baseRetryDelay,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// MenuURL returns the absolute URL of the menu document published under
// the campus heading: the first link of the first paragraph following
// the <h2> whose text contains heading.
func (c *Client) MenuURL(ctx context.Context, heading string) (string, error) {
	body, err := c.get(ctx, c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("fetching week menu page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parsing week menu page: %w", err)
	}

	href, ok := findMenuLink(doc, heading)
	if !ok {
		return "", fmt.Errorf("%w: heading %q on %s", ErrMenuNotFound, heading, c.BaseURL)
	}

	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("base url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("menu link %q: %w", href, err)
	}
	abs := base.ResolveReference(ref).String()
	slog.Debug("fetch: resolved menu url", "heading", heading, "url", abs)
	return abs, nil
}

// findMenuLink walks headings and paragraphs in document order. After the
// matching heading, the next paragraph decides: its first link, or none.
func findMenuLink(doc *goquery.Document, heading string) (string, bool) {
	var (
		href    string
		found   bool
		matched bool
	)
	doc.Find("h2, p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !matched {
			if goquery.NodeName(s) == "h2" && strings.Contains(s.Text(), heading) {
				matched = true
			}
			return true
		}
		if goquery.NodeName(s) != "p" {
			return true
		}
		href, found = s.Find("a[href]").First().Attr("href")
		return false
	})
	return href, found && href != ""
}

// Download returns the body of the document at rawURL.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	return body, nil
}

func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1))
			slog.Warn("fetch: retrying request", "url", rawURL, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		if c.UserAgent != "" {
			req.Header.Set("User-Agent", c.UserAgent)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request to %s failed: %w", rawURL, err)
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading response body: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		lastErr = fmt.Errorf("%w: %d from %s", ErrStatus, resp.StatusCode, rawURL)
		if !retryableStatusCode(resp.StatusCode) {
			return nil, lastErr
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := minRateLimitDelay
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
					wait = time.Duration(seconds) * time.Second
				}
			}
			slog.Warn("fetch: rate limited", "url", rawURL, "delay", wait)
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
