package spatial

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/buildingmap/internal/model"
)

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

func fixture() []model.Building {
	return []model.Building{
		{OSMID: 1, Geometry: square(0, 0, 10), Amenity: "cafe"},
		{OSMID: 2, Geometry: square(100, 100, 10), Amenity: "bank"},
		{OSMID: 3, Geometry: square(5, 5, 10), Amenity: "school"},
		{OSMID: 4},
	}
}

func TestIndex_Search(t *testing.T) {
	idx := NewIndex(fixture())
	assert.Equal(t, 3, idx.Len())

	assert.Equal(t, []int{0, 2}, idx.Search(orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{20, 20}}))
	assert.Equal(t, []int{1}, idx.Search(orb.Bound{Min: orb.Point{95, 95}, Max: orb.Point{200, 200}}))
	assert.Empty(t, idx.Search(orb.Bound{Min: orb.Point{500, 500}, Max: orb.Point{600, 600}}))
}

func TestIndex_At(t *testing.T) {
	idx := NewIndex(fixture())

	b, ok := idx.At(orb.Point{2, 2})
	require.True(t, ok)
	assert.Equal(t, int64(1), b.OSMID)

	// Overlap: the later footprint is on top.
	b, ok = idx.At(orb.Point{7, 7})
	require.True(t, ok)
	assert.Equal(t, int64(3), b.OSMID)

	_, ok = idx.At(orb.Point{50, 50})
	assert.False(t, ok)
}

func TestIndex_Empty(t *testing.T) {
	idx := NewIndex(nil)
	assert.Zero(t, idx.Len())
	_, ok := idx.At(orb.Point{0, 0})
	assert.False(t, ok)
}

func TestIndex_DegenerateFootprint(t *testing.T) {
	line := orb.Polygon{{{3, 3}, {3, 3}, {3, 3}, {3, 3}}}
	idx := NewIndex([]model.Building{{OSMID: 9, Geometry: line}})
	assert.Equal(t, []int{0}, idx.Search(orb.Bound{Min: orb.Point{3, 3}, Max: orb.Point{3, 3}}))
}
