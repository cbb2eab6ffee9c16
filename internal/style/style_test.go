package style

import (
	"fmt"
	"math"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/buildingmap/internal/model"
)

var hexColor = regexp.MustCompile(`^#[0-9a-f]{6}$`)

func TestRGB_Hex(t *testing.T) {
	assert.Equal(t, "#000000", RGB{0, 0, 0}.Hex())
	assert.Equal(t, "#ffffff", RGB{1, 1, 1}.Hex())
	// int(0.5*255) truncates to 127.
	assert.Equal(t, "#7f7f7f", RGB{0.5, 0.5, 0.5}.Hex())
	assert.Equal(t, "#ff0000", RGB{1.2, -0.1, 0}.Hex())
}

func TestPalette(t *testing.T) {
	require.Len(t, Palette, 20)
	seen := map[string]bool{}
	for _, c := range Palette {
		h := c.Hex()
		assert.Regexp(t, hexColor, h)
		assert.False(t, seen[h], "duplicate palette colour %s", h)
		seen[h] = true
	}
}

// lightness returns the CIE L* of c, treating channels as sRGB.
func lightness(c RGB) float64 {
	lin := func(v float64) float64 {
		if v <= 0.04045 {
			return v / 12.92
		}
		return math.Pow((v+0.055)/1.055, 2.4)
	}
	y := 0.2126*lin(c[0]) + 0.7152*lin(c[1]) + 0.0722*lin(c[2])
	if y > 216.0/24389.0 {
		return 116*math.Cbrt(y) - 16
	}
	return y * 24389.0 / 27.0
}

func TestPalette_LightnessCap(t *testing.T) {
	for i, c := range Palette {
		assert.LessOrEqual(t, lightness(c), 70.0, "palette[%d] %s is too light", i, c.Hex())
	}
	assert.InDelta(t, 100.0, lightness(RGB{1, 1, 1}), 0.01)
	assert.InDelta(t, 0.0, lightness(RGB{0, 0, 0}), 0.01)
}

func TestNewColorKey(t *testing.T) {
	cats := []string{"cafe", "bank", model.NoData}
	key := NewColorKey(cats)

	require.Len(t, key.Colors, 3)
	assert.Equal(t, Palette[0].Hex(), key.Colors["cafe"])
	assert.Equal(t, Palette[1].Hex(), key.Colors["bank"])
	assert.Equal(t, Palette[2].Hex(), key.Colors[model.NoData])

	c, ok := key.Color("bank")
	assert.True(t, ok)
	assert.Regexp(t, hexColor, c)
	_, ok = key.Color("school")
	assert.False(t, ok)

	assert.Equal(t, 1, key.Index("bank"))
	assert.Equal(t, -1, key.Index("school"))
}

func TestNewColorKey_Deterministic(t *testing.T) {
	cats := make([]string, model.MaxCategories)
	for i := range cats {
		cats[i] = fmt.Sprintf("cat%d", i)
	}
	assert.Equal(t, NewColorKey(cats), NewColorKey(cats))
}

func TestNewColorKey_CapsAtPalette(t *testing.T) {
	cats := make([]string, 25)
	for i := range cats {
		cats[i] = fmt.Sprintf("cat%d", i)
	}
	assert.Len(t, NewColorKey(cats).Colors, len(Palette))
}

func TestLegend(t *testing.T) {
	key := NewColorKey([]string{"place_of_worship", "cafe", model.NoData, model.Other})
	got := Legend(key)

	require.Len(t, got, 4)
	assert.Equal(t, LegendEntry{Category: "place_of_worship", Label: "Place Of Worship", Color: Palette[0].Hex()}, got[0])
	assert.Equal(t, "Cafe", got[1].Label)
	assert.Equal(t, model.NoData, got[2].Label)
	assert.Equal(t, model.Other, got[3].Label)
}
