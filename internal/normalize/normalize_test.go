package normalize

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/buildingmap/internal/model"
)

func rows(amenities ...string) []model.Building {
	out := make([]model.Building, len(amenities))
	for i, a := range amenities {
		out[i] = model.Building{OSMID: int64(i + 1), Amenity: a}
	}
	return out
}

// repeat returns n copies of label.
func repeat(label string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = label
	}
	return out
}

func TestNormalize_CafeBankUntagged(t *testing.T) {
	b := rows("cafe", "bank", "")
	cats := Normalize(b)

	assert.Equal(t, []string{"cafe", "bank", model.NoData}, cats)
	assert.Equal(t, "cafe", b[0].Amenity)
	assert.Equal(t, "bank", b[1].Amenity)
	assert.Equal(t, model.NoData, b[2].Amenity)
	for _, r := range b {
		assert.Equal(t, model.NoData, r.Name)
		assert.Equal(t, model.NoData, r.Description)
	}
}

func TestNormalize_FewerThanTenKeepsAll(t *testing.T) {
	var labels []string
	for i := 0; i < 9; i++ {
		labels = append(labels, repeat(fmt.Sprintf("cat%d", i), 9-i)...)
	}
	b := rows(labels...)
	cats := Normalize(b)

	assert.Len(t, cats, 9)
	assert.NotContains(t, cats, model.Other)
}

func TestNormalize_FoldsLongTail(t *testing.T) {
	var labels []string
	for i := 0; i < 15; i++ {
		labels = append(labels, repeat(fmt.Sprintf("cat%02d", i), 20-i)...)
	}
	b := rows(labels...)
	cats := Normalize(b)

	require.Len(t, cats, model.MaxCategories)
	assert.Contains(t, cats, model.Other)
	// The folded tail outnumbers every kept label.
	assert.Equal(t, model.Other, cats[0])

	distinct := map[string]bool{}
	for _, r := range b {
		distinct[r.Amenity] = true
	}
	assert.Len(t, distinct, model.MaxCategories)
	assert.False(t, distinct["cat09"], "tenth most frequent label is folded")
	assert.True(t, distinct["cat08"])
}

func TestNormalize_ExactlyTenDistinct(t *testing.T) {
	var labels []string
	for i := 0; i < 10; i++ {
		labels = append(labels, repeat(fmt.Sprintf("cat%d", i), 12-i)...)
	}
	b := rows(labels...)
	cats := Normalize(b)

	require.Len(t, cats, model.MaxCategories)
	assert.Equal(t, model.Other, cats[len(cats)-1])
	assert.NotContains(t, cats, "cat9")
}

func TestNormalize_NoDataCanBeFolded(t *testing.T) {
	var labels []string
	for i := 0; i < 9; i++ {
		labels = append(labels, repeat(fmt.Sprintf("cat%d", i), 5)...)
	}
	labels = append(labels, "") // single untagged row, least frequent
	b := rows(labels...)
	cats := Normalize(b)

	assert.NotContains(t, cats, model.NoData)
	assert.Equal(t, model.Other, b[len(b)-1].Amenity)
}

func TestNormalize_Idempotent(t *testing.T) {
	var labels []string
	for i := 0; i < 13; i++ {
		labels = append(labels, repeat(fmt.Sprintf("cat%02d", i), 14-i)...)
	}
	b := rows(labels...)
	first := Normalize(b)
	second := Normalize(b)
	assert.Equal(t, first, second)
	assert.Equal(t, first, Rank(b))
}

func TestRank_TiesByFirstAppearance(t *testing.T) {
	b := rows("school", "bank", "cafe", "bank", "cafe", "school")
	assert.Equal(t, []string{"school", "bank", "cafe"}, Rank(b))
}

func TestRank_Empty(t *testing.T) {
	assert.Empty(t, Rank(nil))
	assert.Empty(t, Normalize(nil))
}
