package tiles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Cache layer names.
const (
	LayerShaded  = "shaded"
	LayerBasemap = "basemap"
)

// BasemapProxy proxies background raster tiles from an upstream XYZ
// server. Upstream requests are rate limited; responses are cached.
type BasemapProxy struct {
	template   string
	subdomains []string
	userAgent  string
	client     *http.Client
	cache      *TileCache
	limiter    *rate.Limiter
}

// BasemapOptions configures a BasemapProxy.
type BasemapOptions struct {
	// URLTemplate contains {z}, {x} and {y} placeholders and optionally {s}.
	URLTemplate string
	Subdomains  []string
	UserAgent   string
	// RateLimit is the upstream request rate per second; 0 disables it.
	RateLimit float64
}

// NewBasemapProxy creates a basemap proxy. cache may be nil.
func NewBasemapProxy(opts BasemapOptions, cache *TileCache) *BasemapProxy {
	limit := rate.Inf
	burst := 1
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
		burst = int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
	}
	subdomains := opts.Subdomains
	if len(subdomains) == 0 {
		subdomains = []string{"a", "b", "c"}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "buildingmap/1.0"
	}
	return &BasemapProxy{
		template:   opts.URLTemplate,
		subdomains: subdomains,
		userAgent:  ua,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache:   cache,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// TileURL expands the URL template for tile (z, x, y).
func (p *BasemapProxy) TileURL(z, x, y int) string {
	i := (x + y) % len(p.subdomains)
	if i < 0 {
		i += len(p.subdomains)
	}
	s := p.subdomains[i]
	return strings.NewReplacer(
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
		"{s}", s,
	).Replace(p.template)
}

// Fetch retrieves a basemap tile from the cache or the upstream server.
func (p *BasemapProxy) Fetch(ctx context.Context, z, x, y int) ([]byte, string, error) {
	if p.cache != nil {
		if cached := p.cache.Get(LayerBasemap, z, x, y); cached != nil {
			return cached, p.contentType(), nil
		}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, "", eris.Wrap(err, "tiles: basemap rate limit")
	}

	url := p.TileURL(z, x, y)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", eris.Wrap(err, "tiles: create basemap request")
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", eris.Wrap(err, "tiles: fetch basemap tile")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", eris.Errorf("tiles: basemap upstream returned %d for %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", eris.Wrap(err, "tiles: read basemap tile body")
	}

	if p.cache != nil {
		p.cache.Put(LayerBasemap, z, x, y, data)
	}

	zap.L().Debug("tiles: fetched basemap tile", zap.String("url", url), zap.Int("bytes", len(data)))
	return data, p.contentType(), nil
}

// contentType derives the MIME type from the template's file extension.
func (p *BasemapProxy) contentType() string {
	switch strings.ToLower(path.Ext(p.template)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// ServeHTTP implements http.Handler. Expected path format: /{z}/{x}/{y}
// with an optional extension.
func (p *BasemapProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var z, x, y int
	if _, err := fmt.Sscanf(r.URL.Path, "/%d/%d/%d", &z, &x, &y); err != nil {
		http.Error(w, "invalid tile path", http.StatusBadRequest)
		return
	}
	if !validTile(z, x, y) {
		http.Error(w, "tile out of range", http.StatusBadRequest)
		return
	}

	data, ct, err := p.Fetch(r.Context(), z, x, y)
	if err != nil {
		zap.L().Error("tiles: basemap tile fetch failed", zap.Error(err))
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(data)
}
