package osm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
	"github.com/serjvanilla/go-overpass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/buildingmap/internal/model"
)

const overpassResponse = `{
  "version": 0.6,
  "generator": "Overpass API 0.7.62",
  "osm3s": {"timestamp_osm_base": "2026-01-01T00:00:00Z", "copyright": "ODbL"},
  "elements": [
    {"type": "node", "id": 1, "lat": 47.3705, "lon": 8.5405, "tags": {"building": "yes", "amenity": "cafe"}},
    {"type": "way", "id": 10, "nodes": [101, 102, 103, 104, 101], "tags": {"building": "yes", "amenity": "cafe", "name": "Odeon", "roof:shape": "flat"}},
    {"type": "way", "id": 11, "nodes": [105, 106, 107, 108, 105], "tags": {"building": "yes", "amenity": "bank", "description": "Branch office"}},
    {"type": "way", "id": 12, "nodes": [101, 102, 103], "tags": {"building": "yes"}},
    {"type": "way", "id": 13, "nodes": [105, 106, 107, 108, 105], "tags": {"building": "house"}},
    {"type": "node", "id": 101, "lat": 47.3710, "lon": 8.5410},
    {"type": "node", "id": 102, "lat": 47.3710, "lon": 8.5420},
    {"type": "node", "id": 103, "lat": 47.3720, "lon": 8.5420},
    {"type": "node", "id": 104, "lat": 47.3720, "lon": 8.5410},
    {"type": "node", "id": 105, "lat": 47.3750, "lon": 8.5450},
    {"type": "node", "id": 106, "lat": 47.3750, "lon": 8.5460},
    {"type": "node", "id": 107, "lat": 47.3760, "lon": 8.5460},
    {"type": "node", "id": 108, "lat": 47.3760, "lon": 8.5450}
  ]
}`

func overpassServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Contains(t, r.Form.Get("data"), "poly:")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

type stubQuerier struct {
	result overpass.Result
	err    error
	calls  int
	query  string
}

func (s *stubQuerier) Query(query string) (overpass.Result, error) {
	s.calls++
	s.query = query
	return s.result, s.err
}

func TestClient_Fetch(t *testing.T) {
	srv := overpassServer(t, http.StatusOK, overpassResponse)
	c := NewClient(Options{Endpoint: srv.URL})

	got, err := c.Fetch(context.Background(), studyArea, TagFilter{Key: "building"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	ids := []int64{got[0].OSMID, got[1].OSMID, got[2].OSMID}
	assert.Equal(t, []int64{10, 11, 13}, ids)

	cafe := got[0]
	assert.Equal(t, model.OSMWay, cafe.OSMType)
	assert.Equal(t, "cafe", cafe.Amenity)
	assert.Equal(t, "Odeon", cafe.Name)
	assert.Equal(t, "101, 102, 103, 104, 101", cafe.Nodes)
	assert.Equal(t, "flat", cafe.Tags["roof:shape"])
	assert.NotContains(t, cafe.Tags, "amenity")

	assert.Equal(t, "Branch office", got[1].Description)
	assert.Equal(t, "", got[2].Amenity)

	// Footprints come back in EPSG:3857.
	want := project.Point(orb.Point{8.5410, 47.3710}, project.WGS84.ToMercator)
	assert.InDelta(t, want.X(), cafe.Geometry[0][0].X(), 1e-3)
	assert.InDelta(t, want.Y(), cafe.Geometry[0][0].Y(), 1e-3)
}

func TestClient_FetchServerError(t *testing.T) {
	srv := overpassServer(t, http.StatusTooManyRequests, "rate limited")
	c := NewClient(Options{Endpoint: srv.URL})

	_, err := c.Fetch(context.Background(), studyArea, TagFilter{Key: "building"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "osm: overpass query")
}

func TestClient_FetchQueryError(t *testing.T) {
	q := &stubQuerier{err: errors.New("connection refused")}
	c := NewClientWithQuerier(Options{Endpoint: "http://overpass.invalid"}, q)

	_, err := c.Fetch(context.Background(), studyArea, TagFilter{Key: "building"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, q.calls, "acquisition must not retry")
}

func TestClient_FetchEmpty(t *testing.T) {
	q := &stubQuerier{}
	c := NewClientWithQuerier(Options{}, q)

	_, err := c.Fetch(context.Background(), studyArea, TagFilter{Key: "building", Value: "yes"})
	assert.True(t, errors.Is(err, ErrEmptyResult))
	assert.Contains(t, q.query, `way["building"="yes"]`)
}

func TestClient_FetchCanceled(t *testing.T) {
	q := &stubQuerier{}
	c := NewClientWithQuerier(Options{}, q)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, studyArea, TagFilter{Key: "building"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Options{Endpoint: "http://example.invalid"})
	assert.Equal(t, 1, c.opts.MaxParallel)
	assert.Equal(t, "buildingmap/1.0", c.opts.UserAgent)
	assert.NotZero(t, c.opts.Timeout)
}

func TestContextDoer_SetsUserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.UserAgent()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := &contextDoer{ctx: context.Background(), client: srv.Client(), userAgent: "buildingmap-test"}
	resp, err := d.PostForm(srv.URL, map[string][]string{"data": {"[out:json];"}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "buildingmap-test", ua)
}

func TestPolygonBuildings_DropsNonPolygons(t *testing.T) {
	features := []Feature{
		{Type: model.OSMNode, ID: 1, Geometry: orb.Point{8.54, 47.37}, Tags: map[string]string{"building": "yes"}},
		{Type: model.OSMWay, ID: 2, Geometry: orb.LineString{{8.54, 47.37}, {8.55, 47.37}}},
		{Type: model.OSMRelation, ID: 3, Geometry: orb.MultiPolygon{}},
		{Type: model.OSMWay, ID: 4, Geometry: studyArea, Tags: map[string]string{"amenity": "school"}},
	}

	got, dropped := PolygonBuildings(features)
	require.Len(t, got, 1)
	assert.Equal(t, int64(4), got[0].OSMID)
	assert.Equal(t, "school", got[0].Amenity)
	assert.Equal(t, map[string]int{"Point": 1, "LineString": 1, "MultiPolygon": 1}, dropped)

	// The input geometry is not reprojected in place.
	assert.Equal(t, 8.54, studyArea[0][0].X())
}

func TestJoinIDs(t *testing.T) {
	assert.Equal(t, "", joinIDs(nil))
	assert.Equal(t, "1, 2, 3", joinIDs([]int64{1, 2, 3}))
	assert.False(t, strings.Contains(joinIDs([]int64{7}), ","))
}

const relationResponse = `{
  "version": 0.6,
  "osm3s": {"timestamp_osm_base": "2026-01-01T00:00:00Z", "copyright": "ODbL"},
  "elements": [
    {"type": "relation", "id": 20, "members": [
      {"type": "way", "ref": 21, "role": "outer"},
      {"type": "way", "ref": 22, "role": "outer"},
      {"type": "way", "ref": 23, "role": "inner"}
    ], "tags": {"type": "multipolygon", "building": "yes", "amenity": "school"}},
    {"type": "way", "id": 21, "nodes": [201, 202, 203]},
    {"type": "way", "id": 22, "nodes": [201, 204, 203]},
    {"type": "way", "id": 23, "nodes": [211, 212, 213, 214, 211]},
    {"type": "node", "id": 201, "lat": 47.3700, "lon": 8.5400},
    {"type": "node", "id": 202, "lat": 47.3700, "lon": 8.5440},
    {"type": "node", "id": 203, "lat": 47.3740, "lon": 8.5440},
    {"type": "node", "id": 204, "lat": 47.3740, "lon": 8.5400},
    {"type": "node", "id": 211, "lat": 47.3710, "lon": 8.5410},
    {"type": "node", "id": 212, "lat": 47.3710, "lon": 8.5430},
    {"type": "node", "id": 213, "lat": 47.3730, "lon": 8.5430},
    {"type": "node", "id": 214, "lat": 47.3730, "lon": 8.5410}
  ]
}`

func TestClient_FetchRelationWithHole(t *testing.T) {
	srv := overpassServer(t, http.StatusOK, relationResponse)
	c := NewClient(Options{Endpoint: srv.URL})

	got, err := c.Fetch(context.Background(), studyArea, TagFilter{Key: "building"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	school := got[0]
	assert.Equal(t, model.OSMRelation, school.OSMType)
	assert.Equal(t, int64(20), school.OSMID)
	assert.Equal(t, "school", school.Amenity)
	assert.Equal(t, "multipolygon", school.Tags["type"])

	// Outer ring joined from two open ways, plus one hole.
	require.Len(t, school.Geometry, 2)
	assert.Len(t, school.Geometry[0], 5)
	assert.Len(t, school.Geometry[1], 5)
	assert.Equal(t, school.Geometry[0][0], school.Geometry[0][4])

	hole := project.Point(orb.Point{8.5420, 47.3720}, project.WGS84.ToMercator)
	solid := project.Point(orb.Point{8.5405, 47.3705}, project.WGS84.ToMercator)
	assert.False(t, planar.PolygonContains(school.Geometry, hole))
	assert.True(t, planar.PolygonContains(school.Geometry, solid))
}

func TestRelationGeometry_MultipleOuters(t *testing.T) {
	node := func(id int64, lat, lon float64) *overpass.Node {
		return &overpass.Node{Meta: overpass.Meta{ID: id}, Lat: lat, Lon: lon}
	}
	a := []*overpass.Node{node(1, 0, 0), node(2, 0, 1), node(3, 1, 1), node(1, 0, 0)}
	b := []*overpass.Node{node(4, 5, 5), node(5, 5, 6), node(6, 6, 6), node(4, 5, 5)}
	open := []*overpass.Node{node(7, 9, 9), node(8, 9, 10)}

	r := &overpass.Relation{Members: []overpass.RelationMember{
		{Type: overpass.ElementTypeWay, Role: "outer", Way: &overpass.Way{Nodes: a}},
		{Type: overpass.ElementTypeWay, Role: "outer", Way: &overpass.Way{Nodes: b}},
		{Type: overpass.ElementTypeWay, Role: "outer", Way: &overpass.Way{Nodes: open}},
	}}

	mp, ok := relationGeometry(r).(orb.MultiPolygon)
	require.True(t, ok)
	assert.Len(t, mp, 2, "unclosed chains are discarded")
}

func TestRelationGeometry_NoClosedOuter(t *testing.T) {
	r := &overpass.Relation{}
	assert.Equal(t, orb.MultiPolygon{}, relationGeometry(r))
}
