package archive

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-etl/internal/raster"
)

const validRaster = `ncols 2
nrows 2
xllcorner 0
yllcorner 0
cellsize 1
NODATA_value -9999
1 2
3 4
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLayout(t *testing.T) Layout {
	t.Helper()
	return Layout{Root: t.TempDir(), Namer: testNamer}
}

func writeArchiveFile(t *testing.T, l Layout, ts time.Time, content string) {
	t.Helper()
	path := l.Path(ts)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestClassify(t *testing.T) {
	l := testLayout(t)
	prober := raster.NewProber(testLogger())
	ts := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

	t.Run("missing", func(t *testing.T) {
		path, prob := Classify(l, prober, ts)
		require.NotNil(t, prob)
		assert.Equal(t, ReasonMissing, prob.Reason)
		assert.Equal(t, l.Path(ts), path)
	})

	t.Run("empty", func(t *testing.T) {
		writeArchiveFile(t, l, ts, "")
		_, prob := Classify(l, prober, ts)
		require.NotNil(t, prob)
		assert.Equal(t, ReasonEmpty, prob.Reason)
	})

	t.Run("corrupt", func(t *testing.T) {
		writeArchiveFile(t, l, ts, "not a raster")
		_, prob := Classify(l, prober, ts)
		require.NotNil(t, prob)
		assert.Equal(t, ReasonCorrupt, prob.Reason)
	})

	t.Run("valid", func(t *testing.T) {
		writeArchiveFile(t, l, ts, validRaster)
		_, prob := Classify(l, prober, ts)
		assert.Nil(t, prob)
	})
}

func TestScan(t *testing.T) {
	l := testLayout(t)
	prober := raster.NewProber(testLogger())
	s := NewScanner(l, prober, testLogger())
	anchor := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

	// Hours 03 and 04 exist, 05 and 06 do not.
	writeArchiveFile(t, l, anchor.Add(-3*time.Hour), validRaster)
	writeArchiveFile(t, l, anchor.Add(-2*time.Hour), validRaster)

	rep := s.Scan(anchor, 3, 0)

	assert.Equal(t, anchor.Add(-3*time.Hour), rep.WindowStart)
	assert.Equal(t, anchor, rep.WindowEnd)
	assert.Equal(t, 4, rep.Expected())
	assert.Equal(t, 2, rep.Valid)
	assert.Equal(t, []string{
		testNamer.Filename(anchor.Add(-time.Hour)),
		testNamer.Filename(anchor),
	}, rep.Missing)
	assert.Empty(t, rep.Corrupt)
	assert.False(t, rep.Clean())
}

func TestScan_Exclusion(t *testing.T) {
	l := testLayout(t)
	prober := raster.NewProber(testLogger())
	s := NewScanner(l, prober, testLogger())
	anchor := time.Date(2024, 1, 1, 6, 30, 0, 0, time.UTC)

	for h := 2; h <= 4; h++ {
		writeArchiveFile(t, l, anchor.Add(-time.Duration(h)*time.Hour), validRaster)
	}

	// Anchor truncates to 06:00; the window is [01:00, 04:00] and only
	// hour 01 has no file.
	rep := s.Scan(anchor, 3, 2)

	assert.Equal(t, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), rep.WindowStart)
	assert.Equal(t, time.Date(2024, 1, 1, 4, 0, 0, 0, time.UTC), rep.WindowEnd)
	assert.Equal(t, 3, rep.Valid)
	assert.Len(t, rep.Missing, 1)
	assert.Empty(t, rep.Corrupt)
}

func TestScan_MixedProblems(t *testing.T) {
	l := testLayout(t)
	prober := raster.NewProber(testLogger())
	s := NewScanner(l, prober, testLogger())
	anchor := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)

	writeArchiveFile(t, l, anchor.Add(-2*time.Hour), validRaster)
	writeArchiveFile(t, l, anchor.Add(-time.Hour), "")
	writeArchiveFile(t, l, anchor, "garbage")

	rep := s.Scan(anchor, 2, 0)

	assert.Equal(t, 3, rep.Expected())
	assert.Equal(t, 1, rep.Valid)
	assert.Empty(t, rep.Missing)
	require.Len(t, rep.Corrupt, 2)
	assert.Equal(t, ReasonEmpty, rep.Corrupt[0].Reason)
	assert.Equal(t, ReasonCorrupt, rep.Corrupt[1].Reason)
	assert.False(t, rep.Clean())
}

func TestScan_CleanWindow(t *testing.T) {
	l := testLayout(t)
	prober := raster.NewProber(testLogger())
	s := NewScanner(l, prober, testLogger())
	anchor := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	// Window spans the day boundary into the previous partition.
	for h := 0; h <= 2; h++ {
		writeArchiveFile(t, l, anchor.Add(-time.Duration(h)*time.Hour), validRaster)
	}

	rep := s.Scan(anchor, 2, 0)

	assert.True(t, rep.Clean())
	assert.Equal(t, 3, rep.Valid)
}
