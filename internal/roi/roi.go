// Package roi reads the region-of-interest polygon that bounds building
// acquisition. GeoPackage, shapefile and GeoJSON sources are supported; the
// polygon is always returned in WGS84.
package roi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/buildingmap/internal/geomcodec"
)

var (
	// ErrLayerNotFound is returned when a GeoPackage has no feature table
	// with the requested name.
	ErrLayerNotFound = eris.New("roi: layer not found")

	// ErrNoPolygon is returned when the source holds no polygon feature.
	ErrNoPolygon = eris.New("roi: no polygon feature")
)

// Read loads the region-of-interest polygon from path. The layer argument
// selects a GeoPackage feature table and is ignored for single-layer formats.
func Read(ctx context.Context, path, layer string) (orb.Polygon, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "roi: stat %s", path)
	}

	log := zap.L().With(zap.String("component", "roi"), zap.String("path", path))

	var (
		poly orb.Polygon
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".gpkg":
		poly, err = readGeoPackage(ctx, path, layer)
	case ".shp":
		poly, err = readShapefile(path)
	case ".geojson", ".json":
		poly, err = readGeoJSON(path)
	default:
		return nil, eris.Errorf("roi: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, err
	}

	if len(poly) == 0 || len(poly[0]) < 4 {
		return nil, ErrNoPolygon
	}

	b := poly.Bound()
	log.Info("region of interest loaded",
		zap.String("layer", layer),
		zap.Int("vertices", len(poly[0])),
		zap.Float64("min_lon", b.Min.Lon()), zap.Float64("min_lat", b.Min.Lat()),
		zap.Float64("max_lon", b.Max.Lon()), zap.Float64("max_lat", b.Max.Lat()),
	)
	return poly, nil
}

// Hash returns a stable content hash of the polygon, used to tag cached
// datasets with the region they were fetched for.
func Hash(poly orb.Polygon) (string, error) {
	data, err := geomcodec.EncodePolygon(poly)
	if err != nil {
		return "", eris.Wrap(err, "roi: hash")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
