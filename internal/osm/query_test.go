package osm

import (
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

var studyArea = orb.Polygon{{
	{8.5400, 47.3700}, {8.5532, 47.3700}, {8.5532, 47.3790}, {8.5400, 47.3790}, {8.5400, 47.3700},
}}

func TestTagFilter_String(t *testing.T) {
	assert.Equal(t, `["building"]`, TagFilter{Key: "building"}.String())
	assert.Equal(t, `["building"="yes"]`, TagFilter{Key: "building", Value: "yes"}.String())
}

func TestTagFilter_Matches(t *testing.T) {
	wildcard := TagFilter{Key: "building"}
	assert.True(t, wildcard.Matches(map[string]string{"building": "yes"}))
	assert.True(t, wildcard.Matches(map[string]string{"building": "house"}))
	assert.False(t, wildcard.Matches(map[string]string{"amenity": "cafe"}))
	assert.False(t, wildcard.Matches(nil))

	exact := TagFilter{Key: "building", Value: "yes"}
	assert.True(t, exact.Matches(map[string]string{"building": "yes"}))
	assert.False(t, exact.Matches(map[string]string{"building": "house"}))
}

func TestBuildQuery(t *testing.T) {
	q := BuildQuery(studyArea, TagFilter{Key: "building"}, 90*time.Second)

	assert.True(t, strings.HasPrefix(q, "[out:json][timeout:90];"))
	assert.Contains(t, q, `node["building"](poly:"47.3700000 8.5400000 47.3700000 8.5532000 47.3790000 8.5532000 47.3790000 8.5400000");`)
	assert.Contains(t, q, `way["building"](poly:`)
	assert.Contains(t, q, `relation["building"](poly:`)
	assert.True(t, strings.HasSuffix(q, "out body;\n>;\nout skel qt;\n"))
}

func TestBuildQuery_DefaultTimeout(t *testing.T) {
	q := BuildQuery(studyArea, TagFilter{Key: "building"}, 0)
	assert.True(t, strings.HasPrefix(q, "[out:json][timeout:180];"))
}

func TestPolyFilter_Empty(t *testing.T) {
	assert.Equal(t, "", polyFilter(nil))
}
