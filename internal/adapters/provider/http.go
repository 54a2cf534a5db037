package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/pitwall/internal/domain/layout"
	"github.com/okian/pitwall/internal/domain/model"
	"github.com/okian/pitwall/pkg/logger"
)

// Client is the HTTP-backed Provider. Session, standings and entrant
// responses are cached under the unit's cache directory so that a retried
// or resumed unit does not hit upstream again for data it already has.
type Client struct {
	layout  layout.Layout
	openF1  *openF1
	jolpica *jolpica
}

// Option applies a configuration option to the Client.
type Option func(*clientConfig)

type clientConfig struct {
	httpClient *http.Client
	openF1URL  string
	jolpicaURL string
	logger     logger.Logger
	noCache    bool
}

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) {
		if c != nil {
			cfg.httpClient = c
		}
	}
}

// WithOpenF1URL overrides the OpenF1 base URL.
func WithOpenF1URL(u string) Option {
	return func(cfg *clientConfig) {
		if u != "" {
			cfg.openF1URL = u
		}
	}
}

// WithJolpicaURL overrides the Jolpica base URL.
func WithJolpicaURL(u string) Option {
	return func(cfg *clientConfig) {
		if u != "" {
			cfg.jolpicaURL = u
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(cfg *clientConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithoutCache disables the on-disk response cache.
func WithoutCache() Option {
	return func(cfg *clientConfig) { cfg.noCache = true }
}

// NewClient returns a Client caching under l.CacheRoot.
func NewClient(l layout.Layout, opts ...Option) *Client {
	cfg := clientConfig{
		openF1URL:  DefaultOpenF1URL,
		jolpicaURL: DefaultJolpicaURL,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	hc := newHTTPClient(cfg.httpClient, cfg.logger)
	c := &Client{
		openF1:  newOpenF1(hc, cfg.openF1URL),
		jolpica: newJolpica(hc, cfg.jolpicaURL),
	}
	if !cfg.noCache {
		c.layout = l
	}
	return c
}

func (c *Client) cacheDir(u model.WorkUnit) string {
	if c.layout.CacheRoot == "" {
		return ""
	}
	return c.layout.Cache(u)
}

// Schedule implements Catalog.
func (c *Client) Schedule(ctx context.Context, season int) ([]model.Event, error) {
	return c.jolpica.schedule(ctx, season)
}

// Session implements Sessions.
func (c *Client) Session(ctx context.Context, u model.WorkUnit) (model.SessionData, error) {
	return c.openF1.sessionData(ctx, u, c.cacheDir(u))
}

// DriverStandings implements Standings.
func (c *Client) DriverStandings(ctx context.Context, u model.WorkUnit) (model.Table, error) {
	return c.jolpica.driverStandings(ctx, u, c.cacheDir(u))
}

// ConstructorStandings implements Standings.
func (c *Client) ConstructorStandings(ctx context.Context, u model.WorkUnit) (model.Table, error) {
	return c.jolpica.constructorStandings(ctx, u, c.cacheDir(u))
}

// Entrants implements Grid.
func (c *Client) Entrants(ctx context.Context, u model.WorkUnit) (Entrants, error) {
	return c.openF1.entrants(ctx, u, c.cacheDir(u))
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
