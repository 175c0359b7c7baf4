package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/floats"
)

// DefaultNoData is the sentinel marking cells outside the valid data region.
const DefaultNoData = -9999.0

// Grid is an in-memory single-band raster: row-major cell values plus the
// georeferencing needed to place each cell. Row 0 is the northernmost row,
// matching the on-disk order of ESRI ASCII grids.
type Grid struct {
	Cols, Rows int

	// XLL and YLL locate the lower-left corner of the grid in CRS units.
	XLL, YLL float64
	CellSize float64

	NoData float64
	CRS    string

	// Data holds Cols*Rows values, row-major from the top row down.
	Data []float64
}

// New allocates a zero-filled grid with the given shape and georeferencing.
func New(cols, rows int, xll, yll, cellSize, noData float64) *Grid {
	return &Grid{
		Cols:     cols,
		Rows:     rows,
		XLL:      xll,
		YLL:      yll,
		CellSize: cellSize,
		NoData:   noData,
		Data:     make([]float64, cols*rows),
	}
}

// Value returns the cell at (row, col). Row 0 is the top row.
func (g *Grid) Value(row, col int) float64 {
	return g.Data[row*g.Cols+col]
}

// Set writes the cell at (row, col).
func (g *Grid) Set(row, col int, v float64) {
	g.Data[row*g.Cols+col] = v
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	out := *g
	out.Data = make([]float64, len(g.Data))
	copy(out.Data, g.Data)
	return &out
}

// alignEps is the tolerance, as a fraction of the cell size, for deciding
// that two grids share the same origin and resolution.
const alignEps = 1e-6

// SameShape reports whether two grids share shape, resolution, and origin,
// so that their cells line up one-to-one.
func (g *Grid) SameShape(o *Grid) bool {
	if g.Cols != o.Cols || g.Rows != o.Rows {
		return false
	}
	eps := g.CellSize * alignEps
	return math.Abs(g.XLL-o.XLL) <= eps &&
		math.Abs(g.YLL-o.YLL) <= eps &&
		math.Abs(g.CellSize-o.CellSize) <= eps
}

// Add accumulates another grid into this one cell-wise. The two grids must
// share shape and alignment; a mismatch is an error and leaves g unchanged.
func (g *Grid) Add(o *Grid) error {
	if !g.SameShape(o) {
		return fmt.Errorf("grid shape mismatch: %dx%d@(%g,%g,%g) vs %dx%d@(%g,%g,%g)",
			g.Cols, g.Rows, g.XLL, g.YLL, g.CellSize,
			o.Cols, o.Rows, o.XLL, o.YLL, o.CellSize)
	}
	floats.Add(g.Data, o.Data)
	return nil
}

// Bound returns the outer envelope of the grid in CRS units.
func (g *Grid) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{g.XLL, g.YLL},
		Max: orb.Point{g.XLL + float64(g.Cols)*g.CellSize, g.YLL + float64(g.Rows)*g.CellSize},
	}
}

// CellBound returns the envelope of a single cell.
func (g *Grid) CellBound(row, col int) orb.Bound {
	x0 := g.XLL + float64(col)*g.CellSize
	yTop := g.YLL + float64(g.Rows-row)*g.CellSize
	return orb.Bound{
		Min: orb.Point{x0, yTop - g.CellSize},
		Max: orb.Point{x0 + g.CellSize, yTop},
	}
}

// ColAt returns the column index containing x, clamped to the grid.
func (g *Grid) ColAt(x float64) int {
	return clamp(int(math.Floor((x-g.XLL)/g.CellSize)), 0, g.Cols-1)
}

// RowAt returns the row index (top-based) containing y, clamped to the grid.
func (g *Grid) RowAt(y float64) int {
	fromBottom := int(math.Floor((y - g.YLL) / g.CellSize))
	return clamp(g.Rows-1-fromBottom, 0, g.Rows-1)
}

// Crop returns a new grid restricted to the inclusive cell ranges, with its
// own lower-left origin.
func (g *Grid) Crop(row0, row1, col0, col1 int) *Grid {
	row0 = clamp(row0, 0, g.Rows-1)
	row1 = clamp(row1, 0, g.Rows-1)
	col0 = clamp(col0, 0, g.Cols-1)
	col1 = clamp(col1, 0, g.Cols-1)

	out := New(col1-col0+1, row1-row0+1,
		g.XLL+float64(col0)*g.CellSize,
		g.YLL+float64(g.Rows-1-row1)*g.CellSize,
		g.CellSize, g.NoData)
	out.CRS = g.CRS
	for r := row0; r <= row1; r++ {
		copy(out.Data[(r-row0)*out.Cols:(r-row0+1)*out.Cols],
			g.Data[r*g.Cols+col0:r*g.Cols+col1+1])
	}
	return out
}

// ValidRange returns the min and max over cells not equal to the nodata
// sentinel, and whether any valid cell exists.
func (g *Grid) ValidRange() (minV, maxV float64, ok bool) {
	minV, maxV = math.Inf(1), math.Inf(-1)
	for _, v := range g.Data {
		if v == g.NoData || math.IsNaN(v) {
			continue
		}
		ok = true
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	return minV, maxV, ok
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
