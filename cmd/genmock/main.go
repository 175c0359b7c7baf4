// Command genmock generates a synthetic rainfall archive, zone layer, and CN
// raster set for local runs and demos. It uses the real raster codec and
// archive layout so the generated tree is byte-for-byte what the pipeline
// expects.
//
// Usage:
//
//	go run ./cmd/genmock -out ./data/mock -hours 30 -zones 3
//
// Then point ARCHIVE_ROOT, ZONES_PATH, and CN_RASTER_DIR at the generated
// tree.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/rainfall-etl/internal/archive"
	"github.com/couchcryptid/rainfall-etl/internal/raster"
)

const (
	gridCols = 40
	gridRows = 30
	cellSize = 0.1
	originX  = 7.0
	originY  = 43.5
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory")
	hours := flag.Int("hours", 30, "hours of archive to generate, ending now")
	zoneCount := flag.Int("zones", 3, "number of zones")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	layout := archive.Layout{
		Root:  filepath.Join(*out, "archive"),
		Namer: archive.Namer{Prefix: "MCM_", MinuteSuffix: "0000", Ext: ".asc"},
	}

	end := time.Now().UTC().Truncate(time.Hour)
	if err := writeArchive(layout, end, *hours); err != nil {
		return err
	}
	log.Printf("wrote %d hourly rasters under %s", *hours, layout.Root)

	zonesPath := filepath.Join(*out, "zones.geojson")
	if err := writeZones(zonesPath, *zoneCount); err != nil {
		return err
	}
	log.Printf("wrote zone layer: %s", zonesPath)

	cnDir := filepath.Join(*out, "cn")
	if err := writeCNRasters(cnDir, *zoneCount); err != nil {
		return err
	}
	log.Printf("wrote %d CN rasters under %s", *zoneCount, cnDir)

	return nil
}

// writeArchive fills the partition tree with hourly layers carrying a moving
// rain band, so cumulatives have visible structure.
func writeArchive(layout archive.Layout, end time.Time, hours int) error {
	for i := hours - 1; i >= 0; i-- {
		t := end.Add(-time.Duration(i) * time.Hour)
		if err := os.MkdirAll(layout.PartitionDir(t), 0o755); err != nil {
			return err
		}

		g := raster.New(gridCols, gridRows, originX, originY, cellSize, raster.DefaultNoData)
		band := float64(t.Hour() % gridCols)
		for r := 0; r < gridRows; r++ {
			for c := 0; c < gridCols; c++ {
				// Gaussian band around a column that drifts with the hour.
				d := float64(c) - band
				g.Set(r, c, 5*math.Exp(-d*d/18))
			}
		}

		if err := raster.Write(layout.Path(t), g); err != nil {
			return err
		}
	}
	return nil
}

// writeZones lays the zones out as adjacent rectangles across the grid.
func writeZones(path string, count int) error {
	fc := geojson.NewFeatureCollection()

	width := float64(gridCols) * cellSize / float64(count)
	for i := 0; i < count; i++ {
		x0 := originX + float64(i)*width
		x1 := x0 + width
		y0 := originY
		y1 := originY + float64(gridRows)*cellSize

		poly := orb.Polygon{{
			{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0},
		}}
		f := geojson.NewFeature(poly)
		f.Properties["zone"] = fmt.Sprintf("IM-%02d", i+1)
		fc.Append(f)
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// writeCNRasters emits one CN grid per zone, each a uniform plausible value
// with the zone number at the end of the stem.
func writeCNRasters(dir string, count int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i := 1; i <= count; i++ {
		g := raster.New(20, 20, originX, originY, cellSize, raster.DefaultNoData)
		cn := 55 + float64(i*7%40)
		for j := range g.Data {
			g.Data[j] = cn
		}
		path := filepath.Join(dir, fmt.Sprintf("CN_zone_%02d.asc", i))
		if err := raster.Write(path, g); err != nil {
			return err
		}
	}
	return nil
}
