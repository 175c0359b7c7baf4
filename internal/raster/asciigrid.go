package raster

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Read decodes an ESRI ASCII grid file into a Grid.
func Read(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raster: %w", err)
	}
	defer f.Close()

	g, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode raster %s: %w", path, err)
	}
	return g, nil
}

// Decode reads a complete ESRI ASCII grid from r.
func Decode(r io.Reader) (*Grid, error) {
	d := newDecoder(r)
	g, err := d.header()
	if err != nil {
		return nil, err
	}

	for i := range g.Data {
		v, err := d.nextFloat()
		if err != nil {
			return nil, fmt.Errorf("truncated data: cell %d of %d: %w", i, len(g.Data), err)
		}
		g.Data[i] = v
	}
	return g, nil
}

// DecodeSample reads the header and up to maxRows full rows of data,
// returning a grid that covers only the sampled rows. ASCII grids are
// sequential text, so sampling is bounded by rows rather than a square
// window.
func DecodeSample(r io.Reader, maxRows int) (*Grid, error) {
	d := newDecoder(r)
	g, err := d.header()
	if err != nil {
		return nil, err
	}

	rows := g.Rows
	if rows > maxRows {
		rows = maxRows
	}
	sample := New(g.Cols, rows, g.XLL, g.YLL, g.CellSize, g.NoData)
	for i := range sample.Data {
		v, err := d.nextFloat()
		if err != nil {
			return nil, fmt.Errorf("truncated data: cell %d of %d: %w", i, len(sample.Data), err)
		}
		sample.Data[i] = v
	}
	return sample, nil
}

type decoder struct {
	sc *bufio.Scanner
	// pending carries a data token consumed while detecting the end of
	// the header.
	pending string
}

func newDecoder(r io.Reader) *decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	sc.Split(bufio.ScanWords)
	return &decoder{sc: sc}
}

// header parses the keyword/value lines and allocates the grid. ncols,
// nrows, the corner coordinates, and cellsize are required; NODATA_value is
// optional and defaults to the standard sentinel.
func (d *decoder) header() (*Grid, error) {
	var cols, rows int
	var xll, yll, cellSize float64
	noData := DefaultNoData
	var haveCols, haveRows, haveX, haveY, haveCell, haveNoData bool
	var xCenter, yCenter bool

	complete := func() bool { return haveCols && haveRows && haveX && haveY && haveCell }

	for {
		if !d.sc.Scan() {
			if complete() {
				break
			}
			return nil, fmt.Errorf("unexpected end of header")
		}
		key := strings.ToLower(d.sc.Text())

		if !isHeaderKeyword(key) {
			// First data value reached.
			if !complete() {
				return nil, fmt.Errorf("incomplete header before data token %q", d.sc.Text())
			}
			d.pending = d.sc.Text()
			break
		}

		if !d.sc.Scan() {
			return nil, fmt.Errorf("missing value for header field %q", key)
		}
		val := d.sc.Text()

		switch key {
		case "ncols":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid ncols %q", val)
			}
			cols, haveCols = n, true
		case "nrows":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid nrows %q", val)
			}
			rows, haveRows = n, true
		case "xllcorner", "xllcenter":
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q", key, val)
			}
			xll, xCenter, haveX = v, key == "xllcenter", true
		case "yllcorner", "yllcenter":
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q", key, val)
			}
			yll, yCenter, haveY = v, key == "yllcenter", true
		case "cellsize":
			v, err := strconv.ParseFloat(val, 64)
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("invalid cellsize %q", val)
			}
			cellSize, haveCell = v, true
		case "nodata_value":
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid nodata_value %q", val)
			}
			noData, haveNoData = v, true
		}

		if complete() && haveNoData {
			break
		}
	}

	// Center-referenced origins are shifted to the corner convention.
	if xCenter {
		xll -= cellSize / 2
	}
	if yCenter {
		yll -= cellSize / 2
	}

	return New(cols, rows, xll, yll, cellSize, noData), nil
}

func (d *decoder) nextFloat() (float64, error) {
	if d.pending != "" {
		tok := d.pending
		d.pending = ""
		return strconv.ParseFloat(tok, 64)
	}
	if !d.sc.Scan() {
		if err := d.sc.Err(); err != nil {
			return 0, err
		}
		return 0, io.ErrUnexpectedEOF
	}
	return strconv.ParseFloat(d.sc.Text(), 64)
}

func isHeaderKeyword(s string) bool {
	switch s {
	case "ncols", "nrows", "xllcorner", "xllcenter", "yllcorner", "yllcenter", "cellsize", "nodata_value":
		return true
	}
	return false
}

// Write encodes a grid as an ESRI ASCII grid file.
func Write(path string, g *Grid) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create raster: %w", err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "ncols %d\n", g.Cols)
	fmt.Fprintf(w, "nrows %d\n", g.Rows)
	fmt.Fprintf(w, "xllcorner %s\n", formatFloat(g.XLL))
	fmt.Fprintf(w, "yllcorner %s\n", formatFloat(g.YLL))
	fmt.Fprintf(w, "cellsize %s\n", formatFloat(g.CellSize))
	fmt.Fprintf(w, "NODATA_value %s\n", formatFloat(g.NoData))

	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			if c > 0 {
				w.WriteByte(' ')
			}
			w.WriteString(formatFloat(g.Value(r, c)))
		}
		w.WriteByte('\n')
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write raster %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write raster %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
