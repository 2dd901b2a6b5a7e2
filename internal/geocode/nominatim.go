// Package geocode resolves postal addresses to coordinates and county through
// a Nominatim-compatible HTTP API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/now-is/chicommons-maps/internal/domain"
	"github.com/now-is/chicommons-maps/internal/metrics"
	"github.com/now-is/chicommons-maps/internal/repository"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds geocoder client settings
type Config struct {
	BaseURL           string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
	CacheSize         int
	CountryCodes      string
}

// DefaultConfig returns the public Nominatim settings, limited to one request
// per second as its usage policy requires.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://nominatim.openstreetmap.org",
		UserAgent:         "chicommons",
		Timeout:           30 * time.Second,
		RequestsPerSecond: 1,
		MaxRetries:        7,
		CacheSize:         1024,
		CountryCodes:      "us",
	}
}

// Client resolves addresses, consulting an in-process LRU, then the persistent
// address cache, then the upstream API. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	lru     *lru.Cache[string, domain.Location]
	store   repository.AddressCacheRepository
	metrics *metrics.Metrics
	log     *zap.Logger

	newBackOff func() backoff.BackOff
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBackOff replaces the exponential retry schedule.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = fn }
}

// WithMetrics reports lookups to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a geocoder client. store may be nil to disable the persistent cache.
func New(cfg Config, store repository.AddressCacheRepository, logger *zap.Logger, opts ...Option) (*Client, error) {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaults.CacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache, err := lru.New[string, domain.Location](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create geocoder cache: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		lru:     cache,
		store:   store,
		log:     logger,

		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Resolve returns the location of q. Lookups are idempotent: the same
// normalized query is answered from cache after the first success.
func (c *Client) Resolve(ctx context.Context, q domain.AddressQuery) (domain.Location, error) {
	query := NormalizeQuery(q)

	if loc, ok := c.lru.Get(query); ok {
		c.metrics.IncGeocoder("memory")
		return loc, nil
	}

	if c.store != nil {
		entry, err := c.store.Get(ctx, query)
		switch {
		case err == nil:
			loc, perr := parseResult(entry.Response)
			if perr == nil {
				c.lru.Add(query, loc)
				c.metrics.IncGeocoder("store")
				return loc, nil
			}
			c.log.Warn("discarding unreadable cached geocoder response", zap.String("query", query), zap.Error(perr))
		case !errors.Is(err, domain.ErrNotFound):
			c.log.Warn("address cache lookup failed", zap.String("query", query), zap.Error(err))
		}
	}

	raw, err := c.fetch(ctx, query, q)
	if err != nil {
		return domain.Location{}, domain.ExternalServicef("geocode %q: %w", query, err)
	}
	loc, err := parseResult(raw)
	if err != nil {
		return domain.Location{}, domain.ExternalServicef("geocode %q: %w", query, err)
	}
	c.metrics.IncGeocoder("upstream")
	c.lru.Add(query, loc)

	if c.store != nil {
		entry := domain.AddressCacheEntry{Query: query, PlaceID: placeID(raw), Response: raw}
		if err := c.store.Put(ctx, entry); err != nil {
			c.log.Warn("failed to store geocoder response", zap.String("query", query), zap.Error(err))
		}
	}
	return loc, nil
}

// fetch returns the first search result as raw JSON.
func (c *Client) fetch(ctx context.Context, query string, q domain.AddressQuery) (json.RawMessage, error) {
	endpoint, err := c.searchURL(query)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.cfg.MaxRetries)), ctx)

	var result json.RawMessage
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		started := time.Now()
		raw, err := c.do(ctx, endpoint)
		c.metrics.ObserveGeocoderCall(started)
		if err != nil {
			return err
		}
		result = raw
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn("geocoder request failed, retrying",
			zap.String("street", q.StreetAddress),
			zap.String("city", q.City),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) searchURL(query string) (string, error) {
	base, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/search")
	if err != nil {
		return "", fmt.Errorf("invalid geocoder base url: %w", err)
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	params.Set("limit", "1")
	params.Set("accept-language", "en")
	if c.cfg.CountryCodes != "" {
		params.Set("countrycodes", c.cfg.CountryCodes)
	}
	base.RawQuery = params.Encode()
	return base.String(), nil
}

func (c *Client) do(ctx context.Context, endpoint string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("geocoder returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("geocoder returned %d", resp.StatusCode))
	}

	var results []json.RawMessage
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode geocoder response: %w", err))
	}
	if len(results) == 0 {
		return nil, backoff.Permanent(errors.New("address could not be geocoded"))
	}
	return results[0], nil
}

type searchResult struct {
	PlaceID json.RawMessage `json:"place_id"`
	Lat     string          `json:"lat"`
	Lon     string          `json:"lon"`
	Address struct {
		County string `json:"county"`
	} `json:"address"`
}

func parseResult(raw json.RawMessage) (domain.Location, error) {
	var result searchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.Location{}, fmt.Errorf("unexpected geocoder response: %w", err)
	}
	lat, err := strconv.ParseFloat(result.Lat, 64)
	if err != nil {
		return domain.Location{}, fmt.Errorf("unexpected geocoder latitude %q", result.Lat)
	}
	lon, err := strconv.ParseFloat(result.Lon, 64)
	if err != nil {
		return domain.Location{}, fmt.Errorf("unexpected geocoder longitude %q", result.Lon)
	}
	return domain.Location{Latitude: lat, Longitude: lon, County: result.Address.County}, nil
}

func placeID(raw json.RawMessage) string {
	var result searchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return ""
	}
	return strings.Trim(string(result.PlaceID), `"`)
}
