package zones

import (
	"log/slog"
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/rainfall-etl/internal/raster"
)

// ZonalResult maps zone key -> percentile level -> value. NaN marks an
// undefined statistic (the zone had no valid cells), never a fabricated zero.
type ZonalResult map[ZoneKey]map[int]float64

// ComputeStatistics extracts, per zone, the raster cells the zone touches
// (all-touched rule, same as clipping), drops nodata cells, and computes the
// requested percentile levels by linear interpolation between order
// statistics. A zone that fails (degenerate geometry, no intersecting valid
// cells) yields a NaN row and never aborts the other zones.
func ComputeStatistics(g *raster.Grid, zs []Zone, levels []int, logger *slog.Logger) ZonalResult {
	res := make(ZonalResult, len(zs))
	for _, z := range zs {
		res[z.Key] = zoneRow(g, z, levels, logger)
	}
	return res
}

func zoneRow(g *raster.Grid, z Zone, levels []int, logger *slog.Logger) map[int]float64 {
	if z.Geometry == nil || z.Geometry.Bound().IsEmpty() {
		logger.Warn("degenerate zone geometry", "zone", z.Key.String(), "label", z.Label)
		return undefinedRow(levels)
	}

	vals := extract(g, z.Geometry)
	if len(vals) == 0 {
		logger.Info("zone has no valid cells", "zone", z.Key.String(), "label", z.Label)
		return undefinedRow(levels)
	}

	sort.Float64s(vals)
	row := make(map[int]float64, len(levels))
	for _, lvl := range levels {
		row[lvl] = percentile(vals, float64(lvl))
	}
	return row
}

// extract returns the values of valid cells touched by the geometry,
// restricted to the geometry's bounding sub-rectangle of the grid.
func extract(g *raster.Grid, geom orb.Geometry) []float64 {
	b := geom.Bound()
	if !b.Intersects(g.Bound()) {
		return nil
	}

	row0, row1 := g.RowAt(b.Max[1]), g.RowAt(b.Min[1])
	col0, col1 := g.ColAt(b.Min[0]), g.ColAt(b.Max[0])

	var vals []float64
	for r := row0; r <= row1; r++ {
		for c := col0; c <= col1; c++ {
			v := g.Value(r, c)
			if v == g.NoData || math.IsNaN(v) {
				continue
			}
			if Touches(geom, g.CellBound(r, c)) {
				vals = append(vals, v)
			}
		}
	}
	return vals
}

func undefinedRow(levels []int) map[int]float64 {
	row := make(map[int]float64, len(levels))
	for _, lvl := range levels {
		row[lvl] = math.NaN()
	}
	return row
}

// percentile computes the level-th percentile of sorted values using linear
// interpolation between adjacent order statistics (rank = level/100 * (n-1)),
// the conventional definition.
func percentile(sorted []float64, level float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := level / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		return sorted[0]
	}
	if hi >= n {
		return sorted[n-1]
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
