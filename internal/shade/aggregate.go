// Package shade rasterizes building footprints into categorical
// aggregates and colours them into map tiles.
package shade

import (
	"context"
	"image"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"golang.org/x/image/vector"

	"github.com/sells-group/buildingmap/internal/model"
)

// maxCategories is the width of the per-pixel category bitmask.
const maxCategories = 32

// coverageThreshold is the alpha a pixel needs before a footprint counts as
// present. Half coverage approximates sampling at the pixel centre.
const coverageThreshold = 0x80

// Agg is a per-pixel "any" aggregate. Bit k of a cell is set when at least
// one footprint of category k covers the pixel.
type Agg struct {
	Width, Height int
	Extent        orb.Bound // EPSG:3857
	Categories    []string
	Cells         []uint32
}

// Empty reports whether no pixel is covered.
func (a *Agg) Empty() bool {
	for _, c := range a.Cells {
		if c != 0 {
			return false
		}
	}
	return true
}

// At returns the category bitmask of pixel (x, y); y grows downward.
func (a *Agg) At(x, y int) uint32 {
	return a.Cells[y*a.Width+x]
}

// Count returns the number of pixels where category k is present.
func (a *Agg) Count(k int) int {
	bit := uint32(1) << uint(k)
	n := 0
	for _, c := range a.Cells {
		if c&bit != 0 {
			n++
		}
	}
	return n
}

// Aggregate rasterizes buildings onto a width x height grid covering extent.
// Footprints whose amenity is not in categories are ignored. Each category
// is rasterized in one pass.
func Aggregate(ctx context.Context, buildings []model.Building, categories []string, extent orb.Bound, width, height int) (*Agg, error) {
	if width <= 0 || height <= 0 {
		return nil, eris.Errorf("shade: invalid canvas %dx%d", width, height)
	}
	if len(categories) > maxCategories {
		return nil, eris.Errorf("shade: %d categories exceed limit of %d", len(categories), maxCategories)
	}
	if extent.Max.X() <= extent.Min.X() || extent.Max.Y() <= extent.Min.Y() {
		return nil, eris.New("shade: empty extent")
	}

	rank := make(map[string]int, len(categories))
	for i, c := range categories {
		rank[c] = i
	}
	groups := make([][]orb.Polygon, len(categories))
	for _, b := range buildings {
		k, ok := rank[b.Amenity]
		if !ok || len(b.Geometry) == 0 {
			continue
		}
		groups[k] = append(groups[k], b.Geometry)
	}

	agg := &Agg{
		Width:      width,
		Height:     height,
		Extent:     extent,
		Categories: categories,
		Cells:      make([]uint32, width*height),
	}
	tx := newTransform(extent, width, height)
	mask := image.NewAlpha(image.Rect(0, 0, width, height))
	r := vector.NewRasterizer(width, height)

	for k, polys := range groups {
		if len(polys) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "shade: aggregate")
		}

		r.Reset(width, height)
		for _, p := range polys {
			addPolygon(r, tx, p)
		}
		clear(mask.Pix)
		r.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

		bit := uint32(1) << uint(k)
		for i, a := range mask.Pix {
			if a >= coverageThreshold {
				agg.Cells[i] |= bit
			}
		}
	}
	return agg, nil
}

// transform maps EPSG:3857 metres to canvas pixels.
type transform struct {
	minX, maxY float64
	sx, sy     float64
}

func newTransform(extent orb.Bound, width, height int) transform {
	return transform{
		minX: extent.Min.X(),
		maxY: extent.Max.Y(),
		sx:   float64(width) / (extent.Max.X() - extent.Min.X()),
		sy:   float64(height) / (extent.Max.Y() - extent.Min.Y()),
	}
}

func (t transform) apply(p orb.Point) (float32, float32) {
	return float32((p.X() - t.minX) * t.sx), float32((t.maxY - p.Y()) * t.sy)
}

// addPolygon appends every ring of p as a closed path. The rasterizer sums
// signed area, so outer rings are always traced counter-clockwise and holes
// clockwise; otherwise overlapping footprints of opposite winding would
// cancel out.
func addPolygon(r *vector.Rasterizer, tx transform, p orb.Polygon) {
	for i, ring := range p {
		if len(ring) < 3 {
			continue
		}
		want := orb.CCW
		if i > 0 {
			want = orb.CW
		}
		pts := []orb.Point(ring)
		if ring.Orientation() != want {
			pts = reversed(pts)
		}

		x, y := tx.apply(pts[0])
		r.MoveTo(x, y)
		for _, pt := range pts[1:] {
			x, y = tx.apply(pt)
			r.LineTo(x, y)
		}
		r.ClosePath()
	}
}

func reversed(pts []orb.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}
