// Package osm acquires building footprints from the Overpass API.
package osm

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/serjvanilla/go-overpass"
	"go.uber.org/zap"

	"github.com/sells-group/buildingmap/internal/model"
)

// ErrEmptyResult is returned when no polygon footprint survives filtering.
var ErrEmptyResult = eris.New("osm: no polygon features in result")

// Querier executes a raw Overpass QL query.
type Querier interface {
	Query(query string) (overpass.Result, error)
}

// Options configures a Client.
type Options struct {
	Endpoint    string
	Timeout     time.Duration
	MaxParallel int
	UserAgent   string
}

// Client fetches building footprints for a region of interest.
type Client struct {
	opts       Options
	httpClient *http.Client

	// newQuerier binds a Querier to the caller's context.
	newQuerier func(ctx context.Context) Querier
}

// NewClient creates an Overpass-backed Client.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 3 * time.Minute
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "buildingmap/1.0"
	}

	c := &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
	c.newQuerier = func(ctx context.Context) Querier {
		doer := &contextDoer{ctx: ctx, client: c.httpClient, userAgent: opts.UserAgent}
		client := overpass.NewWithSettings(opts.Endpoint, opts.MaxParallel, doer)
		return &client
	}
	return c
}

// NewClientWithQuerier creates a Client that sends every query to q.
func NewClientWithQuerier(opts Options, q Querier) *Client {
	c := NewClient(opts)
	c.newQuerier = func(context.Context) Querier { return q }
	return c
}

// Fetch queries every element matching filter inside roi (WGS84), keeps the
// polygon footprints and returns them reprojected to EPSG:3857. Errors are
// not retried.
func (c *Client) Fetch(ctx context.Context, roi orb.Polygon, filter TagFilter) ([]model.Building, error) {
	log := zap.L().With(zap.String("component", "osm"), zap.String("endpoint", c.opts.Endpoint))

	query := BuildQuery(roi, filter, c.opts.Timeout)
	log.Info("querying overpass", zap.String("filter", filter.String()))

	start := time.Now()
	result, err := c.newQuerier(ctx).Query(query)
	if err != nil {
		return nil, eris.Wrap(err, "osm: overpass query")
	}
	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "osm: overpass query")
	}

	features := Features(result, filter)
	buildings, dropped := PolygonBuildings(features)

	log.Info("overpass query complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("elements", len(result.Nodes)+len(result.Ways)+len(result.Relations)),
		zap.Int("features", len(features)),
		zap.Int("polygons", len(buildings)),
		zap.Any("dropped_by_type", dropped),
	)

	if len(buildings) == 0 {
		return nil, ErrEmptyResult
	}
	return buildings, nil
}

// contextDoer binds outgoing Overpass requests to a context. go-overpass
// builds its own requests without one.
type contextDoer struct {
	ctx       context.Context
	client    *http.Client
	userAgent string
}

func (d *contextDoer) Do(req *http.Request) (*http.Response, error) {
	req = req.WithContext(d.ctx)
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	return d.client.Do(req)
}

// PostForm mirrors http.Client so the doer can stand in for it.
func (d *contextDoer) PostForm(endpoint string, data url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(d.ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return d.Do(req)
}
