package zones

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/couchcryptid/rainfall-etl/internal/raster"
)

// Clip restricts a raster to the union bounding geometry of the zones. The
// output is cropped to the union bound and every cell not touched by any
// zone polygon is set to the nodata sentinel. Membership follows the
// all-touched rule: a cell counts if any part of it is touched by a polygon,
// not only when its center falls inside.
func Clip(g *raster.Grid, zs []Zone) (*raster.Grid, error) {
	if len(zs) == 0 {
		return nil, errors.New("no zones to clip to")
	}

	b := zs[0].Geometry.Bound()
	for _, z := range zs[1:] {
		b = b.Union(z.Geometry.Bound())
	}
	if !b.Intersects(g.Bound()) {
		return nil, fmt.Errorf("zone extent %v does not intersect raster extent %v", b, g.Bound())
	}

	out := g.Crop(g.RowAt(b.Max[1]), g.RowAt(b.Min[1]), g.ColAt(b.Min[0]), g.ColAt(b.Max[0]))
	out.NoData = raster.DefaultNoData

	for r := 0; r < out.Rows; r++ {
		for c := 0; c < out.Cols; c++ {
			cell := out.CellBound(r, c)
			if !anyTouches(zs, cell) {
				out.Set(r, c, out.NoData)
			}
		}
	}
	return out, nil
}

func anyTouches(zs []Zone, cell orb.Bound) bool {
	for _, z := range zs {
		if Touches(z.Geometry, cell) {
			return true
		}
	}
	return false
}

// Touches implements the all-touched test between a (Multi)Polygon and a
// cell rectangle.
func Touches(geom orb.Geometry, cell orb.Bound) bool {
	switch t := geom.(type) {
	case orb.Polygon:
		return polygonTouches(t, cell)
	case orb.MultiPolygon:
		for _, p := range t {
			if polygonTouches(p, cell) {
				return true
			}
		}
	}
	return false
}

func polygonTouches(p orb.Polygon, cell orb.Bound) bool {
	if len(p) == 0 || !p.Bound().Intersects(cell) {
		return false
	}

	// Any cell corner or the center inside the polygon covers cells fully or
	// mostly within it, holes included.
	probes := [5]orb.Point{
		cell.Min,
		{cell.Max[0], cell.Min[1]},
		cell.Max,
		{cell.Min[0], cell.Max[1]},
		cell.Center(),
	}
	for _, pt := range probes {
		if planar.PolygonContains(p, pt) {
			return true
		}
	}

	// Otherwise the polygon must poke into the cell: a ring vertex inside
	// the rectangle, or a ring segment crossing one of its edges.
	for _, ring := range p {
		for i := 0; i < len(ring); i++ {
			if cell.Contains(ring[i]) {
				return true
			}
			if i+1 < len(ring) && segmentIntersectsRect(ring[i], ring[i+1], cell) {
				return true
			}
		}
	}
	return false
}

func segmentIntersectsRect(a, b orb.Point, r orb.Bound) bool {
	if r.Contains(a) || r.Contains(b) {
		return true
	}
	corners := [4]orb.Point{
		r.Min,
		{r.Max[0], r.Min[1]},
		r.Max,
		{r.Min[0], r.Max[1]},
	}
	for i := 0; i < 4; i++ {
		if segmentsIntersect(a, b, corners[i], corners[(i+1)%4]) {
			return true
		}
	}
	return false
}

// segmentsIntersect is the standard orientation test, counting collinear
// touching as intersection. Exact float comparison is fine here: a cell that
// is merely grazed still counts under the all-touched rule, and ties only
// occur when a vertex lies exactly on a cell edge.
func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}

// cross returns the z component of (b-a) x (p-a).
func cross(a, b, p orb.Point) float64 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}

// onSegment reports whether p, known collinear with a-b, lies within the
// segment's bounding box.
func onSegment(a, b, p orb.Point) bool {
	return min(a[0], b[0]) <= p[0] && p[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= p[1] && p[1] <= max(a[1], b[1])
}
