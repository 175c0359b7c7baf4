// Package cumulate builds cumulative rainfall rasters by summing consecutive
// hourly archive layers.
package cumulate

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/rainfall-etl/internal/archive"
	"github.com/couchcryptid/rainfall-etl/internal/raster"
)

// anchorCRS is force-stamped onto the first decoded layer regardless of the
// coordinate reference the file itself declares. Inherited from the upstream
// acquisition chain; see DESIGN.md before changing.
const anchorCRS = "EPSG:4326"

// Result is the outcome of one duration's aggregation. Problems is populated
// even when the aggregation fails, so nothing is dropped silently.
type Result struct {
	Duration    int
	Anchor      time.Time
	WindowStart time.Time
	Grid        *raster.Grid
	Problems    []archive.Problem
	Summed      int
}

// Aggregator sums N consecutive hourly layers ending at the most recent
// available archive hour.
type Aggregator struct {
	layout archive.Layout
	prober archive.Prober
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewAggregator(layout archive.Layout, prober archive.Prober, clock clockwork.Clock, logger *slog.Logger) *Aggregator {
	return &Aggregator{layout: layout, prober: prober, clock: clock, logger: logger}
}

// Aggregate produces the cumulative raster for the given duration in hours.
//
// The anchor is the latest timestamp parseable from today's partition
// directory. The aggregation window is the durationHours hourly identities
// strictly after anchor-durationHours up to and including the anchor. Missing,
// empty, and corrupt members are tolerated and reported; the duration fails
// only when no member at all can be summed, when the anchor cannot be
// discovered, or when a structural error breaks the summation itself.
func (a *Aggregator) Aggregate(durationHours int) (Result, error) {
	res := Result{Duration: durationHours}

	today := a.clock.Now().UTC()
	anchor, err := a.layout.LatestTimestamp(a.layout.PartitionDir(today))
	if err != nil {
		return res, fmt.Errorf("discover anchor for %dh cumulative: %w", durationHours, err)
	}
	res.Anchor = anchor
	res.WindowStart = anchor.Add(-time.Duration(durationHours) * time.Hour)

	a.logger.Info("cumulative window",
		"duration_hours", durationHours,
		"window_start", res.WindowStart,
		"anchor", anchor,
	)

	var valid []string
	for i := 1; i <= durationHours; i++ {
		t := res.WindowStart.Add(time.Duration(i) * time.Hour)
		path, prob := archive.Classify(a.layout, a.prober, t)
		if prob != nil {
			a.logger.Warn("unusable archive file", "name", prob.Name, "reason", prob.Reason)
			res.Problems = append(res.Problems, *prob)
			continue
		}
		valid = append(valid, path)
	}

	if len(valid) == 0 {
		return res, fmt.Errorf("no valid files for %dh cumulative (%d problems)", durationHours, len(res.Problems))
	}

	total, err := a.sum(valid, &res)
	if err != nil {
		return res, fmt.Errorf("%dh cumulative: %w", durationHours, err)
	}
	res.Grid = total

	if minV, maxV, ok := total.ValidRange(); ok {
		a.logger.Info("cumulative ready",
			"duration_hours", durationHours,
			"summed", res.Summed,
			"expected", durationHours,
			"min", minV,
			"max", maxV,
		)
	}
	return res, nil
}

// sum folds the valid layers into a fresh accumulation buffer. The first
// layer establishes shape and georeferencing; later layers that fail to
// decode are skipped and reported, but a shape mismatch is fatal because the
// cells would no longer line up.
func (a *Aggregator) sum(paths []string, res *Result) (*raster.Grid, error) {
	first, err := raster.Read(paths[0])
	if err != nil {
		return nil, fmt.Errorf("read reference layer: %w", err)
	}
	first.CRS = anchorCRS

	total := first.Clone()
	res.Summed = 1

	for _, path := range paths[1:] {
		layer, err := raster.Read(path)
		if err != nil {
			name := filepath.Base(path)
			a.logger.Warn("skipped file during sum", "name", name, "error", err)
			res.Problems = append(res.Problems, archive.Problem{Name: name, Reason: archive.ReasonSkipped})
			continue
		}
		if err := total.Add(layer); err != nil {
			return nil, err
		}
		res.Summed++
	}
	return total, nil
}
