// Package document composes the layered building map and renders it as a
// standalone interactive page.
package document

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"

	"github.com/sells-group/buildingmap/internal/model"
	"github.com/sells-group/buildingmap/internal/style"
)

// Layer kinds, in the order they are stacked.
const (
	KindTiles  = "tiles"
	KindRaster = "raster"
	KindHover  = "hover"
	KindLegend = "legend"
)

// Layer is one entry of the overlay. Layers are drawn back to front.
type Layer struct {
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Attribution string `json:"attribution,omitempty"`
	MinZoom     int    `json:"min_zoom,omitempty"`
	MaxZoom     int    `json:"max_zoom,omitempty"`
}

// HoverField maps a building attribute to its tooltip label.
type HoverField struct {
	Label  string `json:"label"`
	Column string `json:"column"`
}

// Hover configures the interactive inspection layer.
type Hover struct {
	URL    string       `json:"url"`
	Fields []HoverField `json:"fields"`
	Color  string       `json:"color"`
}

// Document is the composed visualization handed to each session.
type Document struct {
	Title      string              `json:"title"`
	Layers     []Layer             `json:"layers"`
	Hover      Hover               `json:"hover"`
	Legend     []style.LegendEntry `json:"legend"`
	Bounds     [2][2]float64       `json:"bounds"` // [[south, west], [north, east]]
	Buildings  int                 `json:"buildings"`
	Categories []string            `json:"categories"`
}

// Options carries the presentation settings that are not derived from data.
type Options struct {
	Title              string
	BasemapURL         string
	BasemapAttribution string
	ShadedURL          string
	InspectURL         string
	HoverColor         string
	MinZoom            int
	MaxZoom            int
}

// HoverFields lists the attributes revealed on hover.
var HoverFields = []HoverField{
	{Label: "Amenity type", Column: "amenity"},
	{Label: "Description", Column: "description"},
	{Label: "Name", Column: "name"},
}

// Compose stacks basemap tiles, the shaded raster, the hover layer and the
// legend, in that order.
func Compose(ds *model.Dataset, key style.ColorKey, opts Options) *Document {
	return &Document{
		Title: opts.Title,
		Layers: []Layer{
			{Kind: KindTiles, Name: "basemap", URL: opts.BasemapURL, Attribution: opts.BasemapAttribution},
			{Kind: KindRaster, Name: "buildings", URL: opts.ShadedURL, MinZoom: opts.MinZoom, MaxZoom: opts.MaxZoom},
			{Kind: KindHover, Name: "hover", URL: opts.InspectURL},
			{Kind: KindLegend, Name: "legend"},
		},
		Hover: Hover{
			URL:    opts.InspectURL,
			Fields: HoverFields,
			Color:  opts.HoverColor,
		},
		Legend:     style.Legend(key),
		Bounds:     latLngBounds(ds.Bound()),
		Buildings:  len(ds.Buildings),
		Categories: key.Categories,
	}
}

// HoverFeature returns b as a WGS84 GeoJSON feature carrying the hover
// attributes.
func HoverFeature(b model.Building) *geojson.Feature {
	f := geojson.NewFeature(project.Polygon(b.Geometry.Clone(), project.Mercator.ToWGS84))
	f.ID = string(b.OSMType) + "/" + itoa(b.OSMID)
	f.Properties["amenity"] = b.Amenity
	f.Properties["description"] = b.Description
	f.Properties["name"] = b.Name
	return f
}

func latLngBounds(b orb.Bound) [2][2]float64 {
	if b.IsZero() {
		return [2][2]float64{}
	}
	sw := project.Mercator.ToWGS84(b.Min)
	ne := project.Mercator.ToWGS84(b.Max)
	return [2][2]float64{{sw.Lat(), sw.Lon()}, {ne.Lat(), ne.Lon()}}
}
