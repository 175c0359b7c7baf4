package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-etl/internal/archive"
	"github.com/couchcryptid/rainfall-etl/internal/config"
	"github.com/couchcryptid/rainfall-etl/internal/cumulate"
	"github.com/couchcryptid/rainfall-etl/internal/curvenumber"
	"github.com/couchcryptid/rainfall-etl/internal/observability"
	"github.com/couchcryptid/rainfall-etl/internal/raster"
	"github.com/couchcryptid/rainfall-etl/internal/report"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture assembles a minimal on-disk world: an hourly archive, a zone
// layer, and one CN raster.
type fixture struct {
	cfg   *config.Config
	clock *clockwork.FakeClock
}

const zoneLayerJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"zone": "IM-01"},
      "geometry": {"type": "Polygon", "coordinates": [[[0.5,0.5],[3.5,0.5],[3.5,3.5],[0.5,3.5],[0.5,0.5]]]}
    }
  ]
}`

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()

	cfg := &config.Config{
		ArchiveRoot: filepath.Join(root, "archive"),
		TempDir:     filepath.Join(root, "tmp"),
		OutputDir:   filepath.Join(root, "out"),
		ZonesPath:   filepath.Join(root, "zones.geojson"),
		CNRasterDir: filepath.Join(root, "cn"),
		CNCachePath: filepath.Join(root, "cn-cache.json"),

		FilePrefix:       "MCM_",
		FileMinuteSuffix: "0000",
		RasterExt:        ".asc",

		Durations:          []int{3},
		ControlHours:       3,
		RecentExcludeHours: 2,
		Percentiles:        []int{50, 90},
		Lambda:             0.2,
	}
	for _, dir := range []string{cfg.ArchiveRoot, cfg.TempDir, cfg.OutputDir, cfg.CNRasterDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	require.NoError(t, os.WriteFile(cfg.ZonesPath, []byte(zoneLayerJSON), 0o644))

	cnGrid := raster.New(4, 4, 0, 0, 1, raster.DefaultNoData)
	for i := range cnGrid.Data {
		cnGrid.Data[i] = 75
	}
	require.NoError(t, raster.Write(filepath.Join(cfg.CNRasterDir, "CN_zone_01.asc"), cnGrid))

	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	return fixture{cfg: cfg, clock: clock}
}

func (f fixture) layout() archive.Layout {
	return archive.Layout{
		Root: f.cfg.ArchiveRoot,
		Namer: archive.Namer{
			Prefix:       f.cfg.FilePrefix,
			MinuteSuffix: f.cfg.FileMinuteSuffix,
			Ext:          f.cfg.RasterExt,
		},
	}
}

func (f fixture) writeHour(t *testing.T, ts time.Time, v float64) {
	t.Helper()
	g := raster.New(4, 4, 0, 0, 1, raster.DefaultNoData)
	for i := range g.Data {
		g.Data[i] = v
	}
	path := f.layout().Path(ts)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, raster.Write(path, g))
}

func (f fixture) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	logger := testLogger()
	layout := f.layout()
	prober := raster.NewProber(logger)

	return New(
		f.cfg,
		cumulate.NewAggregator(layout, prober, f.clock, logger),
		archive.NewScanner(layout, prober, logger),
		curvenumber.New(f.cfg.CNRasterDir, f.cfg.CNCachePath, logger),
		report.NewWriter(f.cfg.OutputDir, f.clock),
		f.clock,
		logger,
		observability.NewMetricsForTesting(),
	)
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t)
	// Hours 07..10 exist; the anchor is 10:00 and the 3h window is complete.
	for h := 7; h <= 10; h++ {
		f.writeHour(t, time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC), 1)
	}

	p := f.pipeline(t)
	require.Error(t, p.CheckReadiness(context.Background()))

	require.NoError(t, p.Run(context.Background()))
	assert.NoError(t, p.CheckReadiness(context.Background()))

	// Cumulative raster in the temp dir.
	clipped, err := raster.Read(filepath.Join(f.cfg.TempDir, "cumulative_3h.asc"))
	require.NoError(t, err)
	minV, maxV, ok := clipped.ValidRange()
	require.True(t, ok)
	assert.Equal(t, 3.0, minV)
	assert.Equal(t, 3.0, maxV)

	// Percentile table: every cell sums to 3, so every statistic is 3.
	stats, err := os.ReadFile(filepath.Join(f.cfg.OutputDir, "percentiles_3h.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(stats), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "zone,duration_hours,percentile,value", lines[0])
	assert.Equal(t, "IM-01,3,50,3", lines[1])
	assert.Equal(t, "IM-01,3,90,3", lines[2])

	// Peq0 table plus its dated archive copy.
	assert.FileExists(t, filepath.Join(f.cfg.OutputDir, "peq0_3h.csv"))
	assert.FileExists(t, filepath.Join(f.cfg.OutputDir, "2024", "01", "peq0_3h_20240101.csv"))

	// Empty problem list and clean archive report.
	probs, err := os.ReadFile(filepath.Join(f.cfg.OutputDir, "problems_3h.csv"))
	require.NoError(t, err)
	assert.Equal(t, "file,reason\n", string(probs))
	assert.FileExists(t, filepath.Join(f.cfg.OutputDir, "archive_report.csv"))
}

func TestRun_MissingHoursAreContained(t *testing.T) {
	f := newFixture(t)
	// Only the anchor hour exists; the other two window members are missing.
	f.writeHour(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), 2)

	p := f.pipeline(t)
	require.NoError(t, p.Run(context.Background()))
	assert.NoError(t, p.CheckReadiness(context.Background()))

	probs, err := os.ReadFile(filepath.Join(f.cfg.OutputDir, "problems_3h.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(probs), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "missing")
	assert.Contains(t, lines[2], "missing")

	// The cumulative raster is the single available layer.
	clipped, err := raster.Read(filepath.Join(f.cfg.TempDir, "cumulative_3h.asc"))
	require.NoError(t, err)
	_, maxV, ok := clipped.ValidRange()
	require.True(t, ok)
	assert.Equal(t, 2.0, maxV)
}

func TestRun_EmptyArchiveFailsDurationNotRun(t *testing.T) {
	f := newFixture(t)

	p := f.pipeline(t)
	require.NoError(t, p.Run(context.Background()))

	// No duration completed, so the service never reports ready.
	assert.Error(t, p.CheckReadiness(context.Background()))
	assert.NoFileExists(t, filepath.Join(f.cfg.OutputDir, "percentiles_3h.csv"))

	// The per-duration problem list is still written, empty.
	assert.FileExists(t, filepath.Join(f.cfg.OutputDir, "problems_3h.csv"))
}

func TestRun_UnreadableZoneLayerFatal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(f.cfg.ZonesPath))

	p := f.pipeline(t)
	require.Error(t, p.Run(context.Background()))
}

func TestRun_CanceledContextStopsEarly(t *testing.T) {
	f := newFixture(t)
	for h := 7; h <= 10; h++ {
		f.writeHour(t, time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := f.pipeline(t)
	require.NoError(t, p.Run(ctx))
	assert.Error(t, p.CheckReadiness(context.Background()))
	assert.NoFileExists(t, filepath.Join(f.cfg.OutputDir, "percentiles_3h.csv"))
}

func TestRun_MissingCNDirSkipsPeq(t *testing.T) {
	f := newFixture(t)
	for h := 7; h <= 10; h++ {
		f.writeHour(t, time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC), 1)
	}
	require.NoError(t, os.RemoveAll(f.cfg.CNRasterDir))

	p := f.pipeline(t)
	require.NoError(t, p.Run(context.Background()))

	// Percentiles still land, the Peq0 stage is skipped for the run.
	assert.FileExists(t, filepath.Join(f.cfg.OutputDir, "percentiles_3h.csv"))
	assert.NoFileExists(t, filepath.Join(f.cfg.OutputDir, "peq0_3h.csv"))
}
