package cache

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
)

const requestTimeout = 5 * time.Second

// Client is an HTTP GET client that caches responses, failures included.
// Any transport error, non-2xx status or undecodable body becomes a negative
// entry so the upstream is not hammered while it is down.
type Client struct {
	http  *http.Client
	cache *TTL[string, []byte]
}

// NewClient builds a caching client. The zero clock uses wall time.
func NewClient(size int, ttl, noneTTL time.Duration, clk clock.Clock) *Client {
	return &Client{
		http:  &http.Client{Timeout: requestTimeout},
		cache: NewTTL[string, []byte](size, ttl, noneTTL, clk),
	}
}

func cacheKey(rawURL string, params map[string]string) string {
	if len(params) == 0 {
		return rawURL
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(rawURL)
	for _, k := range keys {
		b.WriteByte('&')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// Get fetches rawURL with the given query parameters. It returns nil, false
// on any failure; the failure is cached for the negative TTL.
func (c *Client) Get(rawURL string, params map[string]string) ([]byte, bool) {
	key := cacheKey(rawURL, params)
	if body, negative, ok := c.cache.Get(key); ok {
		return body, !negative
	}

	body, ok := c.fetch(rawURL, params)
	if !ok {
		c.cache.SetNegative(key)
		return nil, false
	}
	c.cache.Set(key, body)
	return body, true
}

// GetJSON fetches rawURL and decodes the response into out.
func (c *Client) GetJSON(rawURL string, params map[string]string, out any) bool {
	body, ok := c.Get(rawURL, params)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		slog.Warn("undecodable json response", "url", rawURL, "error", err)
		// Re-cache the key as negative so the decode is not retried on
		// every call within the TTL.
		c.cache.SetNegative(cacheKey(rawURL, params))
		return false
	}
	return true
}

func (c *Client) fetch(rawURL string, params map[string]string) ([]byte, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		slog.Warn("invalid request url", "url", rawURL, "error", err)
		return nil, false
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	resp, err := c.http.Get(u.String())
	if err != nil {
		slog.Warn("request failed", "url", rawURL, "error", err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("request returned non-2xx", "url", rawURL, "status", resp.StatusCode)
		return nil, false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Warn("reading response failed", "url", rawURL, "error", err)
		return nil, false
	}
	return body, true
}
