package tiles

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Renderer renders one XYZ tile as an encoded image.
type Renderer interface {
	Tile(ctx context.Context, z, x, y int) ([]byte, error)
}

// ShadeHandler serves datashaded PNG tiles.
type ShadeHandler struct {
	renderer Renderer
	cache    *TileCache
	minZoom  int
	maxZoom  int
	group    singleflight.Group
}

// NewShadeHandler creates a shaded tile handler. cache may be nil.
func NewShadeHandler(renderer Renderer, cache *TileCache, minZoom, maxZoom int) *ShadeHandler {
	return &ShadeHandler{
		renderer: renderer,
		cache:    cache,
		minZoom:  minZoom,
		maxZoom:  maxZoom,
	}
}

// ServeHTTP handles requests at /{z}/{x}/{y}.png after prefix stripping.
func (h *ShadeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) != 3 {
		http.Error(w, "invalid tile path", http.StatusBadRequest)
		return
	}

	z, err := strconv.Atoi(parts[0])
	if err != nil {
		http.Error(w, "invalid z coordinate", http.StatusBadRequest)
		return
	}
	x, err := strconv.Atoi(parts[1])
	if err != nil {
		http.Error(w, "invalid x coordinate", http.StatusBadRequest)
		return
	}
	y, err := strconv.Atoi(strings.TrimSuffix(parts[2], ".png"))
	if err != nil {
		http.Error(w, "invalid y coordinate", http.StatusBadRequest)
		return
	}

	if z < h.minZoom || z > h.maxZoom {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !validTile(z, x, y) {
		http.Error(w, "tile out of range", http.StatusBadRequest)
		return
	}

	if h.cache != nil {
		if cached := h.cache.Get(LayerShaded, z, x, y); cached != nil {
			writePNG(w, cached, "hit")
			return
		}
	}

	// Concurrent requests for the same tile share one render.
	v, err, _ := h.group.Do(tileKey(LayerShaded, z, x, y), func() (any, error) {
		data, err := h.renderer.Tile(r.Context(), z, x, y)
		if err != nil {
			return nil, err
		}
		if h.cache != nil {
			h.cache.Put(LayerShaded, z, x, y, data)
		}
		return data, nil
	})
	if err != nil {
		zap.L().Error("tiles: shade render failed",
			zap.Int("z", z), zap.Int("x", x), zap.Int("y", y),
			zap.Error(err),
		)
		http.Error(w, "tile generation failed", http.StatusInternalServerError)
		return
	}

	writePNG(w, v.([]byte), "miss")
}

// maxTileZoom is the deepest zoom level either tile tree serves.
const maxTileZoom = 22

// validTile reports whether (z, x, y) addresses a tile in the XYZ pyramid.
func validTile(z, x, y int) bool {
	if z < 0 || z > maxTileZoom {
		return false
	}
	n := 1 << uint(z)
	return x >= 0 && x < n && y >= 0 && y < n
}

func writePNG(w http.ResponseWriter, data []byte, cacheState string) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Cache", cacheState)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(data)
}

// StatsHandler returns cache statistics as plain text.
func (h *ShadeHandler) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	if h.cache == nil {
		_, _ = w.Write([]byte("cache disabled"))
		return
	}
	stats := h.cache.Stats()
	_, _ = fmt.Fprintf(w, "entries=%d max=%d hits=%d misses=%d evictions=%d rate=%.2f%%\n",
		stats.Entries, stats.MaxEntries, stats.Hits, stats.Misses, stats.Evictions, stats.HitRate*100)
}
