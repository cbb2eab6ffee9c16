package roi

import (
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buildingmap/internal/geomcodec"
)

// readShapefile returns the first polygon record of a shapefile. Shapefiles
// carry no SRS of their own here; coordinates are assumed to be WGS84.
func readShapefile(path string) (orb.Polygon, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "roi: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, err := geomcodec.ShapeToPolygon(shape)
		if err != nil {
			skipped++
			continue
		}
		if skipped > 0 {
			zap.L().Debug("roi: skipped non-polygon shapefile records", zap.Int("skipped", skipped))
		}
		return poly, nil
	}

	return nil, ErrNoPolygon
}
