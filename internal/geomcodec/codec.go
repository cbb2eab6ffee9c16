// Package geomcodec converts footprint and region geometries between orb,
// go-geom, shapefile shapes and WKB.
package geomcodec

import (
	"math"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"
)

// EncodePolygon converts an orb polygon to little-endian WKB.
func EncodePolygon(p orb.Polygon) ([]byte, error) {
	if len(p) == 0 {
		return nil, eris.New("geomcodec: empty polygon")
	}

	g, err := toGeomPolygon(p)
	if err != nil {
		return nil, err
	}

	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geomcodec: encode WKB")
	}
	return data, nil
}

// DecodePolygon parses WKB into an orb polygon. MultiPolygons collapse to
// their largest member.
func DecodePolygon(data []byte) (orb.Polygon, error) {
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geomcodec: decode WKB")
	}
	return FromGeom(g)
}

// FromGeom converts a go-geom Polygon or MultiPolygon to an orb polygon.
func FromGeom(g geom.T) (orb.Polygon, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonFromGeom(t), nil
	case *geom.MultiPolygon:
		var polys []orb.Polygon
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, polygonFromGeom(t.Polygon(i)))
		}
		p := Largest(polys)
		if p == nil {
			return nil, eris.New("geomcodec: empty multipolygon")
		}
		return p, nil
	default:
		return nil, eris.Errorf("geomcodec: unsupported geometry %T", g)
	}
}

// ShapeToPolygon converts a shapefile polygon to an orb polygon. Each part
// is treated as its own polygon and the largest one wins.
func ShapeToPolygon(shape shp.Shape) (orb.Polygon, error) {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil, eris.Errorf("geomcodec: shape %T is not a polygon", shape)
	}

	var polys []orb.Polygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}
		if end-start < 4 {
			zap.L().Debug("geomcodec: skipping degenerate shapefile ring", zap.Int32("part", i))
			continue
		}

		ring := make(orb.Ring, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, orb.Point{p.Points[j].X, p.Points[j].Y})
		}
		polys = append(polys, orb.Polygon{ring})
	}

	largest := Largest(polys)
	if largest == nil {
		return nil, eris.New("geomcodec: shapefile polygon has no usable rings")
	}
	return largest, nil
}

// Largest returns the polygon with the greatest planar area.
func Largest(polys []orb.Polygon) orb.Polygon {
	var best orb.Polygon
	bestArea := -1.0
	for _, p := range polys {
		if len(p) == 0 {
			continue
		}
		if a := math.Abs(planar.Area(p)); a > bestArea {
			best, bestArea = p, a
		}
	}
	return best
}

func toGeomPolygon(p orb.Polygon) (*geom.Polygon, error) {
	rings := make([][]geom.Coord, 0, len(p))
	for _, r := range p {
		coords := make([]geom.Coord, 0, len(r))
		for _, pt := range r {
			coords = append(coords, geom.Coord{pt[0], pt[1]})
		}
		rings = append(rings, coords)
	}

	g, err := geom.NewPolygon(geom.XY).SetCoords(rings)
	if err != nil {
		return nil, eris.Wrap(err, "geomcodec: build polygon")
	}
	return g, nil
}

func polygonFromGeom(g *geom.Polygon) orb.Polygon {
	poly := make(orb.Polygon, 0, g.NumLinearRings())
	for i := 0; i < g.NumLinearRings(); i++ {
		coords := g.LinearRing(i).Coords()
		ring := make(orb.Ring, 0, len(coords))
		for _, c := range coords {
			ring = append(ring, orb.Point{c.X(), c.Y()})
		}
		poly = append(poly, ring)
	}
	return poly
}
