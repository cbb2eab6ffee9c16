package model

import (
	"time"

	"github.com/paulmach/orb"
)

// Sentinel labels written by normalization.
const (
	NoData = "No data"
	Other  = "Other"
)

// MaxCategories bounds the number of distinct amenity values kept after
// normalization, "Other" included.
const MaxCategories = 10

// OSMType is the OpenStreetMap element kind a building came from.
type OSMType string

const (
	OSMNode     OSMType = "node"
	OSMWay      OSMType = "way"
	OSMRelation OSMType = "relation"
)

// Building is one footprint row of the buildings table.
type Building struct {
	OSMType     OSMType           `json:"osm_type"`
	OSMID       int64             `json:"osm_id"`
	Geometry    orb.Polygon       `json:"-"` // EPSG:3857
	Amenity     string            `json:"amenity"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Nodes       string            `json:"nodes"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Dataset is the normalized buildings table plus its ranked category list.
type Dataset struct {
	Buildings []Building `json:"buildings"`

	// Categories holds the distinct amenity values ranked by descending
	// frequency. Colour assignment follows this order.
	Categories []string `json:"categories"`
}

// Bound returns the EPSG:3857 extent of every footprint in the dataset.
func (d *Dataset) Bound() orb.Bound {
	if len(d.Buildings) == 0 {
		return orb.Bound{}
	}
	b := d.Buildings[0].Geometry.Bound()
	for _, bld := range d.Buildings[1:] {
		b = b.Union(bld.Geometry.Bound())
	}
	return b
}

// CategoryCounts returns the number of buildings per amenity value.
func (d *Dataset) CategoryCounts() map[string]int {
	counts := make(map[string]int, len(d.Categories))
	for _, b := range d.Buildings {
		counts[b.Amenity]++
	}
	return counts
}

// Provenance describes where a cached dataset came from.
type Provenance struct {
	SchemaVersion int       `json:"schema_version" yaml:"schema_version"`
	RunID         string    `json:"run_id" yaml:"run_id"`
	ROIHash       string    `json:"roi_hash" yaml:"roi_hash"`
	FetchedAt     time.Time `json:"fetched_at" yaml:"fetched_at"`
	Endpoint      string    `json:"endpoint" yaml:"endpoint"`
	TagFilter     string    `json:"tag_filter" yaml:"tag_filter"`
}
