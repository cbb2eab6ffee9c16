package geomcodec

import (
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{
		{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y},
	}}
}

func TestEncodeDecodePolygon(t *testing.T) {
	poly := square(1000, 2000, 50)
	poly = append(poly, orb.Ring{{1010, 2010}, {1010, 2020}, {1020, 2020}, {1010, 2010}})

	data, err := EncodePolygon(poly)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	got, err := DecodePolygon(data)
	require.NoError(t, err)
	assert.Equal(t, poly, got)
}

func TestEncodePolygon_Empty(t *testing.T) {
	_, err := EncodePolygon(nil)
	assert.Error(t, err)
}

func TestDecodePolygon_Garbage(t *testing.T) {
	_, err := DecodePolygon([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestFromGeom_MultiPolygonPicksLargest(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY)
	small := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}})
	large := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{10, 10}, {20, 10}, {20, 20}, {10, 20}, {10, 10}}})
	require.NoError(t, mp.Push(small))
	require.NoError(t, mp.Push(large))

	got, err := FromGeom(mp)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{10, 10}, got[0][0])
}

func TestFromGeom_Unsupported(t *testing.T) {
	_, err := FromGeom(geom.NewPointFlat(geom.XY, []float64{1, 2}))
	assert.Error(t, err)
}

func TestShapeToPolygon(t *testing.T) {
	poly := &shp.Polygon{
		NumParts: 2,
		Parts:    []int32{0, 5},
		Points: []shp.Point{
			// Small ring
			{X: -80.0, Y: 25.0},
			{X: -80.0, Y: 25.1},
			{X: -79.9, Y: 25.1},
			{X: -79.9, Y: 25.0},
			{X: -80.0, Y: 25.0},
			// Large ring
			{X: -81.0, Y: 26.0},
			{X: -81.0, Y: 27.0},
			{X: -80.0, Y: 27.0},
			{X: -80.0, Y: 26.0},
			{X: -81.0, Y: 26.0},
		},
	}

	got, err := ShapeToPolygon(poly)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, orb.Point{-81.0, 26.0}, got[0][0])
}

func TestShapeToPolygon_NotAPolygon(t *testing.T) {
	_, err := ShapeToPolygon(&shp.Point{X: 1, Y: 2})
	assert.Error(t, err)

	_, err = ShapeToPolygon(nil)
	assert.Error(t, err)
}

func TestLargest_Empty(t *testing.T) {
	assert.Nil(t, Largest(nil))
	assert.Nil(t, Largest([]orb.Polygon{{}}))
}
