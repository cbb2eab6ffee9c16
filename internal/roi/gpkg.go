package roi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite"

	"github.com/sells-group/buildingmap/internal/geomcodec"
)

// Supported GeoPackage spatial reference systems.
const (
	srsWGS84        = 4326
	srsWebMercator  = 3857
	gpkgMagic0      = 'G'
	gpkgMagic1      = 'P'
	gpkgHeaderFixed = 8
)

type gpkgLayer struct {
	TableName  string `db:"table_name"`
	ColumnName string `db:"column_name"`
	SRSID      int    `db:"srs_id"`
}

// readGeoPackage returns the first polygon in the named feature table.
func readGeoPackage(ctx context.Context, path, layer string) (orb.Polygon, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "roi: open geopackage")
	}
	defer func() { _ = db.Close() }()

	var l gpkgLayer
	err = db.GetContext(ctx, &l, `
		SELECT c.table_name, g.column_name, g.srs_id
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		WHERE c.data_type = 'features' AND c.table_name = ?`, layer)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrLayerNotFound, "roi: layer %q in %s", layer, path)
	}
	if err != nil {
		return nil, eris.Wrap(err, "roi: query gpkg_contents")
	}

	// Identifiers come from gpkg_geometry_columns, not user input, but quote
	// them anyway so odd table names still work.
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s IS NOT NULL LIMIT 1`,
		quoteIdent(l.ColumnName), quoteIdent(l.TableName), quoteIdent(l.ColumnName))

	var blob []byte
	if err := db.GetContext(ctx, &blob, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoPolygon
		}
		return nil, eris.Wrapf(err, "roi: read geometry from %s", l.TableName)
	}

	poly, err := decodeGPKGGeometry(blob)
	if err != nil {
		return nil, err
	}

	switch l.SRSID {
	case srsWGS84:
		return poly, nil
	case srsWebMercator:
		return project.Polygon(poly, project.Mercator.ToWGS84), nil
	default:
		return nil, eris.Errorf("roi: unsupported srs_id %d (want %d or %d)", l.SRSID, srsWGS84, srsWebMercator)
	}
}

// decodeGPKGGeometry strips the GeoPackage binary header and decodes the
// trailing WKB.
func decodeGPKGGeometry(blob []byte) (orb.Polygon, error) {
	if len(blob) < gpkgHeaderFixed || blob[0] != gpkgMagic0 || blob[1] != gpkgMagic1 {
		return nil, eris.New("roi: not a GeoPackage geometry blob")
	}

	flags := blob[3]
	if flags&0x10 != 0 {
		return nil, ErrNoPolygon
	}

	var envelopeLen int
	switch (flags >> 1) & 0x07 {
	case 0:
		envelopeLen = 0
	case 1:
		envelopeLen = 32
	case 2, 3:
		envelopeLen = 48
	case 4:
		envelopeLen = 64
	default:
		return nil, eris.Errorf("roi: invalid envelope indicator in flags 0x%02x", flags)
	}

	offset := gpkgHeaderFixed + envelopeLen
	if len(blob) <= offset {
		return nil, eris.New("roi: truncated GeoPackage geometry")
	}

	g, err := wkb.Unmarshal(blob[offset:])
	if err != nil {
		return nil, eris.Wrap(err, "roi: decode GeoPackage WKB")
	}
	return geomcodec.FromGeom(g)
}

func quoteIdent(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, s[i])
	}
	return string(append(out, '"'))
}
