// Package spatial indexes building footprints for viewport and point
// queries.
package spatial

import (
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/sells-group/buildingmap/internal/model"
)

// minExtent keeps degenerate footprints queryable; the tree rejects
// zero-length sides. Units are EPSG:3857 metres.
const minExtent = 0.01

// Index is a read-only R-tree over a dataset's footprints. It is safe for
// concurrent use once built.
type Index struct {
	tree      *rtreego.Rtree
	buildings []model.Building
}

type entry struct {
	idx  int
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (e *entry) Bounds() rtreego.Rect { return e.rect }

// NewIndex builds an index over buildings. The slice is retained, not
// copied.
func NewIndex(buildings []model.Building) *Index {
	objs := make([]rtreego.Spatial, 0, len(buildings))
	for i, b := range buildings {
		if len(b.Geometry) == 0 {
			continue
		}
		objs = append(objs, &entry{idx: i, rect: toRect(b.Geometry.Bound())})
	}
	return &Index{
		tree:      rtreego.NewTree(2, 25, 50, objs...),
		buildings: buildings,
	}
}

// Len returns the number of indexed footprints.
func (x *Index) Len() int { return x.tree.Size() }

// Search returns the positions of buildings whose bounds intersect b, in
// dataset order.
func (x *Index) Search(b orb.Bound) []int {
	hits := x.tree.SearchIntersect(toRect(b))
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*entry).idx)
	}
	sort.Ints(out)
	return out
}

// At returns the building containing p. When footprints overlap the one
// drawn last wins, matching what is visible on the map.
func (x *Index) At(p orb.Point) (model.Building, bool) {
	cands := x.Search(orb.Bound{Min: p, Max: p})
	for i := len(cands) - 1; i >= 0; i-- {
		b := x.buildings[cands[i]]
		if planar.PolygonContains(b.Geometry, p) {
			return b, true
		}
	}
	return model.Building{}, false
}

// Building returns the building at position i.
func (x *Index) Building(i int) model.Building { return x.buildings[i] }

func toRect(b orb.Bound) rtreego.Rect {
	w := b.Max.X() - b.Min.X()
	h := b.Max.Y() - b.Min.Y()
	if w < minExtent {
		w = minExtent
	}
	if h < minExtent {
		h = minExtent
	}
	rect, _ := rtreego.NewRect(rtreego.Point{b.Min.X(), b.Min.Y()}, []float64{w, h})
	return rect
}
