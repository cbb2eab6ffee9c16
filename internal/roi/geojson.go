package roi

import (
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"

	"github.com/sells-group/buildingmap/internal/geomcodec"
)

// readGeoJSON returns the first Polygon or MultiPolygon feature of a
// FeatureCollection.
func readGeoJSON(path string) (orb.Polygon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "roi: read %s", path)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrap(err, "roi: unmarshal feature collection")
	}

	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			return g, nil
		case orb.MultiPolygon:
			if p := geomcodec.Largest(g); p != nil {
				return p, nil
			}
		}
	}
	return nil, ErrNoPolygon
}
