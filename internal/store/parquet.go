// Package store persists the normalized buildings table as a Parquet file
// and implements the cache-or-fetch loader on top of it.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/rotisserie/eris"

	"github.com/sells-group/buildingmap/internal/geomcodec"
	"github.com/sells-group/buildingmap/internal/model"
	"github.com/sells-group/buildingmap/internal/normalize"
)

// SchemaVersion is bumped whenever the column layout changes.
const SchemaVersion = 1

// ErrSchemaVersion is returned when a cached file was written with a
// different column layout.
var ErrSchemaVersion = eris.New("store: unsupported schema version")

// Key-value metadata keys.
const (
	metaSchemaVersion = "buildingmap.schema_version"
	metaRunID         = "buildingmap.run_id"
	metaROIHash       = "buildingmap.roi_hash"
	metaFetchedAt     = "buildingmap.fetched_at"
	metaEndpoint      = "buildingmap.endpoint"
	metaTagFilter     = "buildingmap.tag_filter"
	metaCategories    = "buildingmap.categories"
)

// Column order of the buildings table.
const (
	colOSMType = iota
	colOSMID
	colGeometry
	colAmenity
	colName
	colDescription
	colNodes
	colTags
)

var amenityType = &arrow.DictionaryType{
	IndexType: arrow.PrimitiveTypes.Int32,
	ValueType: arrow.BinaryTypes.String,
}

func buildingsSchema(md *arrow.Metadata) *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "osm_type", Type: arrow.BinaryTypes.String},
		{Name: "osm_id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "geometry", Type: arrow.BinaryTypes.Binary},
		{Name: "amenity", Type: amenityType},
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "description", Type: arrow.BinaryTypes.String},
		{Name: "nodes", Type: arrow.BinaryTypes.String},
		{Name: "tags", Type: arrow.BinaryTypes.String, Nullable: true},
	}, md)
}

// Stat summarizes a cached file without decoding its rows.
type Stat struct {
	Path       string           `json:"path" yaml:"path"`
	Size       int64            `json:"size_bytes" yaml:"size_bytes"`
	Rows       int64            `json:"rows" yaml:"rows"`
	Categories []string         `json:"categories" yaml:"categories"`
	Provenance model.Provenance `json:"provenance" yaml:"provenance"`
}

// Write serializes ds to path as Snappy-compressed Parquet. The file is
// written to a temporary sibling and renamed into place, so readers never
// observe a partial file.
func Write(path string, ds *model.Dataset, prov model.Provenance) error {
	prov.SchemaVersion = SchemaVersion

	cats, err := json.Marshal(ds.Categories)
	if err != nil {
		return eris.Wrap(err, "store: marshal categories")
	}
	md := arrow.NewMetadata(
		[]string{metaSchemaVersion, metaRunID, metaROIHash, metaFetchedAt, metaEndpoint, metaTagFilter, metaCategories},
		[]string{
			strconv.Itoa(prov.SchemaVersion),
			prov.RunID,
			prov.ROIHash,
			prov.FetchedAt.UTC().Format(time.RFC3339Nano),
			prov.Endpoint,
			prov.TagFilter,
			string(cats),
		},
	)
	schema := buildingsSchema(&md)

	rec, err := buildRecord(schema, ds.Buildings)
	if err != nil {
		return err
	}
	defer rec.Release()

	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	fw, err := pqarrow.NewFileWriter(schema, &buf, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		return eris.Wrap(err, "store: create parquet writer")
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return eris.Wrap(err, "store: write record")
	}
	if err := fw.Close(); err != nil {
		return eris.Wrap(err, "store: close parquet writer")
	}

	return writeAtomic(path, buf.Bytes())
}

func buildRecord(schema *arrow.Schema, buildings []model.Building) (arrow.Record, error) {
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()

	osmType := b.Field(colOSMType).(*array.StringBuilder)
	osmID := b.Field(colOSMID).(*array.Int64Builder)
	geometry := b.Field(colGeometry).(*array.BinaryBuilder)
	amenity := b.Field(colAmenity).(*array.BinaryDictionaryBuilder)
	name := b.Field(colName).(*array.StringBuilder)
	description := b.Field(colDescription).(*array.StringBuilder)
	nodes := b.Field(colNodes).(*array.StringBuilder)
	tags := b.Field(colTags).(*array.StringBuilder)

	for i, bld := range buildings {
		wkb, err := geomcodec.EncodePolygon(bld.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "store: encode row %d (%s/%d)", i, bld.OSMType, bld.OSMID)
		}

		osmType.Append(string(bld.OSMType))
		osmID.Append(bld.OSMID)
		geometry.Append(wkb)
		if err := amenity.AppendString(bld.Amenity); err != nil {
			return nil, eris.Wrap(err, "store: append amenity")
		}
		name.Append(bld.Name)
		description.Append(bld.Description)
		nodes.Append(bld.Nodes)

		if len(bld.Tags) == 0 {
			tags.AppendNull()
			continue
		}
		raw, err := json.Marshal(bld.Tags)
		if err != nil {
			return nil, eris.Wrapf(err, "store: marshal tags row %d", i)
		}
		tags.Append(string(raw))
	}

	return b.NewRecord(), nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "store: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "store: create temp file")
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return eris.Wrap(err, "store: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return eris.Wrap(err, "store: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return eris.Wrap(err, "store: close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return eris.Wrapf(err, "store: rename into %s", path)
	}
	return nil
}

// Read loads the dataset stored at path. Categories are re-ranked from the
// stored amenity column, which yields the same order the write path
// produced.
func Read(ctx context.Context, path string) (*model.Dataset, model.Provenance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.Provenance{}, eris.Wrapf(err, "store: read %s", path)
	}

	rdr, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, model.Provenance{}, eris.Wrapf(err, "store: open parquet %s", path)
	}
	defer func() { _ = rdr.Close() }()

	prov, _, err := provenance(rdr)
	if err != nil {
		return nil, prov, err
	}

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, prov, eris.Wrap(err, "store: create arrow reader")
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, prov, eris.Wrap(err, "store: read table")
	}
	defer tbl.Release()

	buildings := make([]model.Building, 0, tbl.NumRows())
	tr := array.NewTableReader(tbl, 0)
	defer tr.Release()
	for tr.Next() {
		rows, err := decodeRecord(tr.Record())
		if err != nil {
			return nil, prov, err
		}
		buildings = append(buildings, rows...)
	}
	if err := tr.Err(); err != nil {
		return nil, prov, eris.Wrap(err, "store: iterate table")
	}

	return &model.Dataset{Buildings: buildings, Categories: normalize.Rank(buildings)}, prov, nil
}

// Inspect reads only the footer of the file at path.
func Inspect(path string) (*Stat, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: stat %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open %s", path)
	}
	defer func() { _ = f.Close() }()

	rdr, err := file.NewParquetReader(f)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open parquet %s", path)
	}
	defer func() { _ = rdr.Close() }()

	prov, cats, err := provenance(rdr)
	if err != nil {
		return nil, err
	}
	return &Stat{
		Path:       path,
		Size:       info.Size(),
		Rows:       rdr.NumRows(),
		Categories: cats,
		Provenance: prov,
	}, nil
}

func provenance(rdr *file.Reader) (model.Provenance, []string, error) {
	kv := rdr.MetaData().KeyValueMetadata()
	get := func(key string) string {
		if v := kv.FindValue(key); v != nil {
			return *v
		}
		return ""
	}

	var prov model.Provenance
	version, err := strconv.Atoi(get(metaSchemaVersion))
	if err != nil || version != SchemaVersion {
		return prov, nil, eris.Wrapf(ErrSchemaVersion, "store: found %q, want %d", get(metaSchemaVersion), SchemaVersion)
	}
	prov.SchemaVersion = version
	prov.RunID = get(metaRunID)
	prov.ROIHash = get(metaROIHash)
	prov.Endpoint = get(metaEndpoint)
	prov.TagFilter = get(metaTagFilter)
	if ts := get(metaFetchedAt); ts != "" {
		prov.FetchedAt, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return prov, nil, eris.Wrap(err, "store: parse fetched_at")
		}
	}

	var cats []string
	if raw := get(metaCategories); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cats); err != nil {
			return prov, nil, eris.Wrap(err, "store: parse categories")
		}
	}
	return prov, cats, nil
}

func decodeRecord(rec arrow.Record) ([]model.Building, error) {
	if int(rec.NumCols()) <= colTags {
		return nil, eris.Errorf("store: expected %d columns, got %d", colTags+1, rec.NumCols())
	}

	osmType, ok1 := rec.Column(colOSMType).(*array.String)
	osmID, ok2 := rec.Column(colOSMID).(*array.Int64)
	geometry, ok3 := rec.Column(colGeometry).(*array.Binary)
	name, ok4 := rec.Column(colName).(*array.String)
	description, ok5 := rec.Column(colDescription).(*array.String)
	nodes, ok6 := rec.Column(colNodes).(*array.String)
	tags, ok7 := rec.Column(colTags).(*array.String)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || !ok7 {
		return nil, eris.Wrap(ErrSchemaVersion, "store: unexpected column types")
	}
	amenity, err := stringColumn(rec.Column(colAmenity))
	if err != nil {
		return nil, err
	}

	out := make([]model.Building, 0, rec.NumRows())
	for i := 0; i < int(rec.NumRows()); i++ {
		poly, err := geomcodec.DecodePolygon(geometry.Value(i))
		if err != nil {
			return nil, eris.Wrapf(err, "store: decode row %d", i)
		}

		b := model.Building{
			OSMType:     model.OSMType(osmType.Value(i)),
			OSMID:       osmID.Value(i),
			Geometry:    poly,
			Amenity:     amenity(i),
			Name:        name.Value(i),
			Description: description.Value(i),
			Nodes:       nodes.Value(i),
		}
		if tags.IsValid(i) {
			if err := json.Unmarshal([]byte(tags.Value(i)), &b.Tags); err != nil {
				return nil, eris.Wrapf(err, "store: decode tags row %d", i)
			}
		}
		out = append(out, b)
	}
	return out, nil
}

// stringColumn returns an accessor for a string column that may come back
// dictionary encoded.
func stringColumn(col arrow.Array) (func(int) string, error) {
	switch c := col.(type) {
	case *array.String:
		return c.Value, nil
	case *array.Dictionary:
		dict, ok := c.Dictionary().(*array.String)
		if !ok {
			return nil, eris.Errorf("store: amenity dictionary has type %s", c.Dictionary().DataType())
		}
		return func(i int) string { return dict.Value(c.GetValueIndex(i)) }, nil
	default:
		return nil, eris.Errorf("store: amenity column has type %s", col.DataType())
	}
}
