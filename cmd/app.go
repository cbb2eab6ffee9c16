package main

import (
	"context"
	"time"

	"github.com/paulmach/orb"

	"github.com/sells-group/buildingmap/internal/config"
	"github.com/sells-group/buildingmap/internal/document"
	"github.com/sells-group/buildingmap/internal/model"
	"github.com/sells-group/buildingmap/internal/osm"
	"github.com/sells-group/buildingmap/internal/roi"
	"github.com/sells-group/buildingmap/internal/shade"
	"github.com/sells-group/buildingmap/internal/spatial"
	"github.com/sells-group/buildingmap/internal/store"
	"github.com/sells-group/buildingmap/internal/style"
)

// tagFilter returns the configured Overpass tag selector.
func tagFilter(c *config.Config) osm.TagFilter {
	return osm.TagFilter{Key: c.Overpass.TagKey, Value: c.Overpass.TagValue}
}

// newLoader wires the region reader, the Overpass client and the Parquet
// cache into a cache-or-fetch loader.
func newLoader(c *config.Config) *store.Loader {
	client := osm.NewClient(osm.Options{
		Endpoint:    c.Overpass.Endpoint,
		Timeout:     c.Overpass.Timeout,
		MaxParallel: c.Overpass.MaxParallel,
		UserAgent:   c.Overpass.UserAgent,
	})
	roiFn := func(ctx context.Context) (orb.Polygon, error) {
		return roi.Read(ctx, c.ROI.Path, c.ROI.Layer)
	}
	return store.NewLoader(c.Cache.Path, tagFilter(c), c.Overpass.Endpoint, roiFn, client)
}

// mapLayers holds the per-dataset structures shared by serve and render.
type mapLayers struct {
	key      style.ColorKey
	index    *spatial.Index
	renderer *shade.Renderer
}

func buildLayers(c *config.Config, ds *model.Dataset) mapLayers {
	key := style.NewColorKey(ds.Categories)
	idx := spatial.NewIndex(ds.Buildings)
	return mapLayers{
		key:      key,
		index:    idx,
		renderer: shade.NewRenderer(idx, key, c.Shade.TileSize),
	}
}

func documentOptions(c *config.Config) document.Options {
	return document.Options{
		Title:              c.Server.Title,
		BasemapURL:         "/tiles/basemap/{z}/{x}/{y}",
		BasemapAttribution: c.Basemap.Attribution,
		ShadedURL:          "/tiles/shaded/{z}/{x}/{y}.png",
		InspectURL:         "/api/inspect",
		HoverColor:         c.Server.HoverColor,
		MinZoom:            c.Shade.MinZoom,
		MaxZoom:            c.Shade.MaxZoom,
	}
}

func since(t time.Time) string {
	return time.Since(t).Round(time.Millisecond).String()
}
