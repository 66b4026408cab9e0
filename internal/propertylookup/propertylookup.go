// Package propertylookup fetches property facts used for the asbestos check.
package propertylookup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/featureflag"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

// Defaults for the RapidAPI client.
const (
	DefaultHost    = "real-time-real-estate-data.p.rapidapi.com"
	DefaultTimeout = 15 * time.Second
)

// Lookup returns the construction year of the property at address.
// Any failure wraps models.ErrLookupUnavailable.
type Lookup interface {
	LookupYearBuilt(ctx context.Context, address string) (int, error)
}

// Opts configures the RapidAPI client.
type Opts struct {
	APIKey  string
	Host    string
	BaseURL string
	Timeout time.Duration
}

// Option configures the RapidAPI client.
type Option func(*Opts)

func WithAPIKey(key string) Option { return func(o *Opts) { o.APIKey = key } }

func WithHost(host string) Option { return func(o *Opts) { o.Host = host } }

// WithBaseURL overrides https://{host}; used by tests.
func WithBaseURL(u string) Option { return func(o *Opts) { o.BaseURL = u } }

func WithTimeout(d time.Duration) Option { return func(o *Opts) { o.Timeout = d } }

// RapidAPIClient queries the real-estate property-details API.
type RapidAPIClient struct {
	apiKey  string
	host    string
	baseURL string
	http    *http.Client
}

// NewRapidAPIClient builds a client. The key falls back to RAPIDAPI_KEY.
func NewRapidAPIClient(opts ...Option) (*RapidAPIClient, error) {
	cfg := Opts{Host: DefaultHost, Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("RAPIDAPI_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("rapidapi key must be provided")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://" + cfg.Host
	}
	return &RapidAPIClient{
		apiKey:  cfg.APIKey,
		host:    cfg.Host,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type propertyResponse struct {
	Data *struct {
		YearBuilt int `json:"yearBuilt"`
	} `json:"data"`
}

func (c *RapidAPIClient) LookupYearBuilt(ctx context.Context, address string) (int, error) {
	if strings.TrimSpace(address) == "" {
		return 0, fmt.Errorf("%w: no address", models.ErrLookupUnavailable)
	}
	endpoint := c.baseURL + "/property-details-address?" + url.Values{"address": {address}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrLookupUnavailable, err)
	}
	req.Header.Set("x-rapidapi-host", c.host)
	req.Header.Set("x-rapidapi-key", c.apiKey)

	slog.Debug("RapidAPIClient.LookupYearBuilt: looking up property", "address", address)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrLookupUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", models.ErrLookupUnavailable, resp.StatusCode)
	}

	var body propertyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: decode: %v", models.ErrLookupUnavailable, err)
	}
	if body.Data == nil || body.Data.YearBuilt <= 0 {
		return 0, fmt.Errorf("%w: no year built for address", models.ErrLookupUnavailable)
	}
	slog.Info("RapidAPIClient.LookupYearBuilt: year built found", "address", address, "year_built", body.Data.YearBuilt)
	return body.Data.YearBuilt, nil
}

// Gated consults a feature flag before every lookup.
type Gated struct {
	flags featureflag.Provider
	inner Lookup
}

// NewGated wraps inner behind FlagPropertyLookup. A nil inner is always unavailable.
func NewGated(flags featureflag.Provider, inner Lookup) *Gated {
	return &Gated{flags: flags, inner: inner}
}

func (g *Gated) LookupYearBuilt(ctx context.Context, address string) (int, error) {
	if g.inner == nil || !g.flags.Enabled(ctx, featureflag.FlagPropertyLookup) {
		slog.Debug("Gated.LookupYearBuilt: property lookup disabled", "address", address)
		return 0, fmt.Errorf("%w: disabled", models.ErrLookupUnavailable)
	}
	return g.inner.LookupYearBuilt(ctx, address)
}
