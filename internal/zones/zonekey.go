// Package zones models the administrative/hydrological polygons that
// rainfall statistics are aggregated over.
package zones

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ZoneKey is the canonical zone identifier. Zones are numbered from 1 in
// layer order; the underlying layer enumeration is 0-based and the +1 shift
// happens exactly once, when the layer is loaded. The display form is
// "IM-01".
type ZoneKey int

func (k ZoneKey) String() string {
	return fmt.Sprintf("IM-%02d", int(k))
}

var zoneKeyRe = regexp.MustCompile(`^IM-?(\d{1,2})$`)

// ParseZoneKey normalizes the identifier spellings found in zone labels and
// CN raster names: "5", "05", "5.0", "IM5", "IM-05". It reports false for
// anything unrecognizable or outside 1..99.
func ParseZoneKey(s string) (ZoneKey, bool) {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if s == "" {
		return 0, false
	}

	if m := zoneKeyRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return checkedKey(n)
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) {
		return checkedKey(int(f))
	}
	return 0, false
}

func checkedKey(n int) (ZoneKey, bool) {
	if n <= 0 || n >= 100 {
		return 0, false
	}
	return ZoneKey(n), true
}
