package shade

import (
	"context"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buildingmap/internal/model"
	"github.com/sells-group/buildingmap/internal/spatial"
	"github.com/sells-group/buildingmap/internal/style"
)

// MaxZoom is the deepest zoom level a tile address may use.
const MaxZoom = 22

// TileBound returns the EPSG:3857 extent of XYZ tile (z, x, y).
func TileBound(z, x, y int) (orb.Bound, error) {
	if z < 0 || z > MaxZoom {
		return orb.Bound{}, eris.Errorf("shade: zoom %d out of range", z)
	}
	n := 1 << uint(z)
	if x < 0 || x >= n || y < 0 || y >= n {
		return orb.Bound{}, eris.Errorf("shade: tile %d/%d/%d out of range", z, x, y)
	}

	b := maptile.New(uint32(x), uint32(y), maptile.Zoom(z)).Bound()
	return orb.Bound{
		Min: project.WGS84.ToMercator(b.Min),
		Max: project.WGS84.ToMercator(b.Max),
	}, nil
}

// Renderer produces shaded PNG tiles for one dataset.
type Renderer struct {
	index    *spatial.Index
	key      style.ColorKey
	tileSize int
}

// NewRenderer creates a Renderer. The index must cover the dataset the
// colour key was built from.
func NewRenderer(index *spatial.Index, key style.ColorKey, tileSize int) *Renderer {
	if tileSize <= 0 {
		tileSize = 256
	}
	return &Renderer{index: index, key: key, tileSize: tileSize}
}

// TileSize returns the edge length of rendered tiles in pixels.
func (r *Renderer) TileSize() int { return r.tileSize }

// Tile renders XYZ tile (z, x, y). Tiles with no footprints are still
// returned as transparent PNGs.
func (r *Renderer) Tile(ctx context.Context, z, x, y int) ([]byte, error) {
	start := time.Now()
	bound, err := TileBound(z, x, y)
	if err != nil {
		return nil, err
	}

	hits := r.index.Search(bound)
	buildings := make([]model.Building, 0, len(hits))
	for _, i := range hits {
		buildings = append(buildings, r.index.Building(i))
	}

	agg, err := Aggregate(ctx, buildings, r.key.Categories, bound, r.tileSize, r.tileSize)
	if err != nil {
		return nil, err
	}
	img, err := Shade(agg, r.key)
	if err != nil {
		return nil, err
	}
	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("shade: rendered tile",
		zap.Int("z", z), zap.Int("x", x), zap.Int("y", y),
		zap.Int("buildings", len(buildings)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return data, nil
}
