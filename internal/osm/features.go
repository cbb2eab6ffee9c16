package osm

import (
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
	"github.com/serjvanilla/go-overpass"

	"github.com/sells-group/buildingmap/internal/model"
)

// Feature is an OSM element matching the tag filter, with its WGS84
// geometry assembled.
type Feature struct {
	Type     model.OSMType
	ID       int64
	Geometry orb.Geometry
	Tags     map[string]string
	NodeIDs  []int64
}

// Features assembles geometry for every element whose tags match filter.
// Untagged skeleton nodes pulled in by recursion are not features. Output is
// ordered nodes, ways, relations, each by ascending ID.
func Features(result overpass.Result, filter TagFilter) []Feature {
	var out []Feature

	for _, id := range sortedKeys(result.Nodes) {
		n := result.Nodes[id]
		if !filter.Matches(n.Tags) {
			continue
		}
		out = append(out, Feature{
			Type:     model.OSMNode,
			ID:       n.ID,
			Geometry: orb.Point{n.Lon, n.Lat},
			Tags:     n.Tags,
		})
	}

	for _, id := range sortedKeys(result.Ways) {
		w := result.Ways[id]
		if !filter.Matches(w.Tags) {
			continue
		}
		ids := make([]int64, 0, len(w.Nodes))
		for _, n := range w.Nodes {
			ids = append(ids, n.ID)
		}
		out = append(out, Feature{
			Type:     model.OSMWay,
			ID:       w.ID,
			Geometry: wayGeometry(w),
			Tags:     w.Tags,
			NodeIDs:  ids,
		})
	}

	for _, id := range sortedKeys(result.Relations) {
		r := result.Relations[id]
		if !filter.Matches(r.Tags) {
			continue
		}
		out = append(out, Feature{
			Type:     model.OSMRelation,
			ID:       r.ID,
			Geometry: relationGeometry(r),
			Tags:     r.Tags,
		})
	}

	return out
}

// PolygonBuildings keeps Polygon features, reprojects them to EPSG:3857 and
// maps their tags onto building rows. The second return value counts the
// discarded features by geometry type.
func PolygonBuildings(features []Feature) ([]model.Building, map[string]int) {
	dropped := make(map[string]int)
	buildings := make([]model.Building, 0, len(features))

	for _, f := range features {
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok {
			dropped[geometryType(f.Geometry)]++
			continue
		}

		b := model.Building{
			OSMType:     f.Type,
			OSMID:       f.ID,
			Geometry:    project.Polygon(poly.Clone(), project.WGS84.ToMercator),
			Amenity:     f.Tags["amenity"],
			Name:        f.Tags["name"],
			Description: f.Tags["description"],
			Nodes:       joinIDs(f.NodeIDs),
			Tags:        otherTags(f.Tags),
		}
		buildings = append(buildings, b)
	}
	return buildings, dropped
}

// wayGeometry returns a Polygon for closed ways and a LineString otherwise.
func wayGeometry(w *overpass.Way) orb.Geometry {
	coords := make([]orb.Point, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		coords = append(coords, orb.Point{n.Lon, n.Lat})
	}
	if len(w.Nodes) >= 4 && w.Nodes[0].ID == w.Nodes[len(w.Nodes)-1].ID {
		return orb.Polygon{orb.Ring(coords)}
	}
	return orb.LineString(coords)
}

// relationGeometry assembles a multipolygon relation. Outer and inner
// member ways are joined into rings by shared end nodes and every inner ring
// becomes a hole of the outer ring containing it. A single outer ring yields
// a Polygon.
func relationGeometry(r *overpass.Relation) orb.Geometry {
	var outerWays, innerWays [][]*overpass.Node
	for _, m := range r.Members {
		if m.Way == nil || len(m.Way.Nodes) < 2 {
			continue
		}
		switch m.Role {
		case "outer", "":
			outerWays = append(outerWays, m.Way.Nodes)
		case "inner":
			innerWays = append(innerWays, m.Way.Nodes)
		}
	}

	outers := assembleRings(outerWays)
	if len(outers) == 0 {
		return orb.MultiPolygon{}
	}
	polys := make([]orb.Polygon, len(outers))
	for i, ring := range outers {
		polys[i] = orb.Polygon{ring}
	}

	for _, inner := range assembleRings(innerWays) {
		for i := range polys {
			if planar.RingContains(polys[i][0], inner[0]) {
				polys[i] = append(polys[i], inner)
				break
			}
		}
	}

	if len(polys) == 1 {
		return polys[0]
	}
	return orb.MultiPolygon(polys)
}

// assembleRings chains way segments end to end, reversing them where
// needed, and returns the chains that close. Open chains are discarded.
func assembleRings(segments [][]*overpass.Node) []orb.Ring {
	used := make([]bool, len(segments))
	var rings []orb.Ring

	for i, seg := range segments {
		if used[i] {
			continue
		}
		used[i] = true
		chain := append([]*overpass.Node(nil), seg...)

		for chain[0].ID != chain[len(chain)-1].ID {
			j, reverse := nextSegment(segments, used, chain[len(chain)-1].ID)
			if j < 0 {
				break
			}
			used[j] = true
			next := segments[j]
			if reverse {
				for k := len(next) - 2; k >= 0; k-- {
					chain = append(chain, next[k])
				}
			} else {
				chain = append(chain, next[1:]...)
			}
		}

		if len(chain) < 4 || chain[0].ID != chain[len(chain)-1].ID {
			continue
		}
		ring := make(orb.Ring, len(chain))
		for k, n := range chain {
			ring[k] = orb.Point{n.Lon, n.Lat}
		}
		rings = append(rings, ring)
	}
	return rings
}

// nextSegment finds an unused segment touching node id. reverse reports
// that the segment ends, rather than starts, at id.
func nextSegment(segments [][]*overpass.Node, used []bool, id int64) (int, bool) {
	for j, seg := range segments {
		if used[j] {
			continue
		}
		if seg[0].ID == id {
			return j, false
		}
		if seg[len(seg)-1].ID == id {
			return j, true
		}
	}
	return -1, false
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "None"
	}
	return g.GeoJSONType()
}

func otherTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		switch k {
		case "amenity", "name", "description":
			continue
		}
		out[k] = v
	}
	return out
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
