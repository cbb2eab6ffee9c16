// Package style assigns display colours to amenity categories and builds
// the map legend.
package style

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/buildingmap/internal/model"
)

// RGB is a colour with channels in [0, 1].
type RGB [3]float64

// Palette is a fixed 20-colour categorical palette. Every entry has a CIE
// L* of at most 70 so markers stay readable against light, low-saturation
// basemaps.
var Palette = []RGB{
	{0.8412, 0.0000, 0.0000}, // #d60000
	{0.0059, 0.5314, 0.0000}, // #018700
	{0.7118, 0.0000, 1.0000}, // #b500ff
	{0.0216, 0.6765, 0.7784}, // #05acc6
	{0.6647, 0.3667, 0.0000}, // #a95d00
	{0.4216, 0.0000, 0.3118}, // #6b004f
	{0.0000, 0.6686, 0.5000}, // #00aa7f
	{0.0000, 0.0000, 0.8686}, // #0000dd
	{0.4804, 0.4333, 0.0000}, // #7a6e00
	{0.7431, 0.0000, 0.7118}, // #bd00b5
	{0.0000, 0.2961, 0.5039}, // #004b80
	{0.7627, 0.2686, 0.0000}, // #c24400
	{0.0000, 0.3588, 0.3667}, // #005b5d
	{0.6451, 0.2294, 0.4216}, // #a43a6b
	{0.3549, 0.2333, 0.0000}, // #5a3b00
	{0.0000, 0.4490, 0.9000}, // #0072e5
	{0.4843, 0.2490, 0.6255}, // #7b3f9f
	{0.1824, 0.5000, 0.1824}, // #2e7f2e
	{0.5000, 0.0000, 0.0000}, // #7f0000
	{0.4294, 0.4294, 0.4294}, // #6d6d6d
}

// Hex converts c to "#rrggbb", truncating each channel with int(c*255).
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", channel(c[0]), channel(c[1]), channel(c[2]))
}

func channel(v float64) int {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return int(v * 255)
}

// ColorKey maps each category to a "#rrggbb" colour.
type ColorKey struct {
	Categories []string
	Colors     map[string]string
}

// NewColorKey assigns the i-th palette colour to the i-th category. Only
// the first len(Palette) categories receive a colour.
func NewColorKey(categories []string) ColorKey {
	n := len(categories)
	if n > len(Palette) {
		n = len(Palette)
	}
	key := ColorKey{
		Categories: append([]string(nil), categories[:n]...),
		Colors:     make(map[string]string, n),
	}
	for i, c := range key.Categories {
		key.Colors[c] = Palette[i].Hex()
	}
	return key
}

// Color returns the colour for category and whether it is mapped.
func (k ColorKey) Color(category string) (string, bool) {
	c, ok := k.Colors[category]
	return c, ok
}

// Index returns the rank of category, or -1.
func (k ColorKey) Index(category string) int {
	for i, c := range k.Categories {
		if c == category {
			return i
		}
	}
	return -1
}

// LegendEntry is one marker of the legend overlay.
type LegendEntry struct {
	Category string `json:"category"`
	Label    string `json:"label"`
	Color    string `json:"color"`
}

// Legend returns one entry per category in ranked order.
func Legend(key ColorKey) []LegendEntry {
	title := cases.Title(language.English)
	out := make([]LegendEntry, 0, len(key.Categories))
	for _, c := range key.Categories {
		out = append(out, LegendEntry{
			Category: c,
			Label:    displayLabel(title, c),
			Color:    key.Colors[c],
		})
	}
	return out
}

func displayLabel(title cases.Caser, category string) string {
	switch category {
	case model.NoData, model.Other:
		return category
	}
	return title.String(strings.ReplaceAll(category, "_", " "))
}
