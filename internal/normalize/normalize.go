// Package normalize reduces the amenity column of a buildings table to a
// bounded set of categories.
package normalize

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/buildingmap/internal/model"
)

// keepTop is the number of original labels that survive when the long tail
// is folded into model.Other.
const keepTop = model.MaxCategories - 1

// Normalize fills missing attribute values with model.NoData, keeps the nine
// most frequent amenity labels and relabels the rest model.Other. Rows are
// modified in place. The returned categories are ranked by descending
// frequency.
func Normalize(buildings []model.Building) []string {
	FillMissing(buildings)

	ranked := Rank(buildings)
	if len(ranked) <= keepTop {
		return ranked
	}

	keep := make(map[string]bool, keepTop)
	for _, c := range ranked[:keepTop] {
		keep[c] = true
	}
	folded := 0
	for i := range buildings {
		if !keep[buildings[i].Amenity] {
			buildings[i].Amenity = model.Other
			folded++
		}
	}

	zap.L().Debug("normalize: folded long tail",
		zap.Int("distinct", len(ranked)),
		zap.Int("rows_relabeled", folded),
	)
	return Rank(buildings)
}

// FillMissing substitutes model.NoData for empty amenity, name and
// description values.
func FillMissing(buildings []model.Building) {
	for i := range buildings {
		b := &buildings[i]
		if b.Amenity == "" {
			b.Amenity = model.NoData
		}
		if b.Name == "" {
			b.Name = model.NoData
		}
		if b.Description == "" {
			b.Description = model.NoData
		}
	}
}

// Rank returns the distinct amenity values by descending frequency. Ties
// keep the order of first appearance.
func Rank(buildings []model.Building) []string {
	counts := make(map[string]int)
	var order []string
	for _, b := range buildings {
		if _, seen := counts[b.Amenity]; !seen {
			order = append(order, b.Amenity)
		}
		counts[b.Amenity]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	return order
}
