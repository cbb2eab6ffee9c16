package osm

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// TagFilter selects OSM elements by tag. An empty Value matches any value,
// the equivalent of {"building": True}.
type TagFilter struct {
	Key   string
	Value string
}

// String renders the filter as an Overpass QL tag selector.
func (f TagFilter) String() string {
	if f.Value == "" {
		return fmt.Sprintf("[%q]", f.Key)
	}
	return fmt.Sprintf("[%q=%q]", f.Key, f.Value)
}

// Matches reports whether tags satisfy the filter.
func (f TagFilter) Matches(tags map[string]string) bool {
	v, ok := tags[f.Key]
	if !ok {
		return false
	}
	return f.Value == "" || v == f.Value
}

// BuildQuery returns an Overpass QL query selecting every node, way and
// relation matching filter inside the outer ring of poly (WGS84). Way and
// relation members are recursed so footprints can be assembled.
func BuildQuery(poly orb.Polygon, filter TagFilter, timeout time.Duration) string {
	secs := int(timeout.Seconds())
	if secs <= 0 {
		secs = 180
	}
	bound := polyFilter(poly)
	sel := filter.String()

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n", secs)
	b.WriteString("(\n")
	for _, kind := range []string{"node", "way", "relation"} {
		fmt.Fprintf(&b, "  %s%s(poly:%q);\n", kind, sel, bound)
	}
	b.WriteString(");\nout body;\n>;\nout skel qt;\n")
	return b.String()
}

// polyFilter renders the outer ring as "lat lon lat lon ...". The closing
// vertex is dropped; Overpass closes the ring itself.
func polyFilter(poly orb.Polygon) string {
	if len(poly) == 0 {
		return ""
	}
	ring := poly[0]
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}

	parts := make([]string, 0, len(ring)*2)
	for _, p := range ring {
		parts = append(parts,
			strconv.FormatFloat(p.Lat(), 'f', 7, 64),
			strconv.FormatFloat(p.Lon(), 'f', 7, 64),
		)
	}
	return strings.Join(parts, " ")
}
