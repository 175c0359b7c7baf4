package report

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-etl/internal/archive"
	"github.com/couchcryptid/rainfall-etl/internal/zones"
)

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	dir := t.TempDir()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC))
	return NewWriter(dir, clock), dir
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestWriteZonal(t *testing.T) {
	w, dir := newTestWriter(t)

	res := zones.ZonalResult{
		2: {50: 3.14159, 90: 7.5},
		1: {90: 1.006, 50: 0.5},
	}
	path, err := w.WriteZonal("percentiles", 6, []int{90, 50}, res)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "percentiles_6h.csv"), path)

	lines := readLines(t, path)
	require.Len(t, lines, 5)
	assert.Equal(t, "zone,duration_hours,percentile,value", lines[0])

	// Zones ordered by key, levels ascending, values rounded to 2 decimals.
	assert.Equal(t, "IM-01,6,50,0.5", lines[1])
	assert.Equal(t, "IM-01,6,90,1.01", lines[2])
	assert.Equal(t, "IM-02,6,50,3.14", lines[3])
	assert.Equal(t, "IM-02,6,90,7.5", lines[4])
}

func TestWriteZonal_UndefinedIsEmptyCell(t *testing.T) {
	w, _ := newTestWriter(t)

	res := zones.ZonalResult{1: {50: math.NaN()}}
	path, err := w.WriteZonal("peq0", 24, []int{50}, res)
	require.NoError(t, err)

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, "IM-01,24,50,", lines[1])
}

func TestWriteProblems(t *testing.T) {
	w, dir := newTestWriter(t)

	probs := []archive.Problem{
		{Name: "MCM_20240101050000.asc", Reason: archive.ReasonMissing},
		{Name: "MCM_20240101060000.asc", Reason: archive.ReasonCorrupt},
	}
	path, err := w.WriteProblems(3, probs)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "problems_3h.csv"), path)

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	assert.Equal(t, "file,reason", lines[0])
	assert.Equal(t, "MCM_20240101050000.asc,missing", lines[1])
	assert.Equal(t, "MCM_20240101060000.asc,corrupted file", lines[2])
}

func TestWriteProblems_Empty(t *testing.T) {
	w, _ := newTestWriter(t)

	path, err := w.WriteProblems(1, nil)
	require.NoError(t, err)

	lines := readLines(t, path)
	require.Len(t, lines, 1)
	assert.Equal(t, "file,reason", lines[0])
}

func TestWriteArchiveReport(t *testing.T) {
	w, _ := newTestWriter(t)

	rep := archive.ScanReport{
		Missing: []string{"MCM_20240101010000.asc"},
		Corrupt: []archive.Problem{{Name: "MCM_20240101020000.asc", Reason: archive.ReasonEmpty}},
	}
	path, err := w.WriteArchiveReport(rep)
	require.NoError(t, err)

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	assert.Equal(t, "file,status", lines[0])
	assert.Equal(t, "MCM_20240101010000.asc,missing", lines[1])
	assert.Equal(t, "MCM_20240101020000.asc,empty file", lines[2])
}

func TestArchiveCopy(t *testing.T) {
	w, dir := newTestWriter(t)

	src := filepath.Join(dir, "peq0_24h.csv")
	require.NoError(t, os.WriteFile(src, []byte("zone,value\nIM-01,3\n"), 0o644))

	dst, err := w.ArchiveCopy(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2024", "03", "peq0_24h_20240307.csv"), dst)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "zone,value\nIM-01,3\n", string(data))
}

func TestArchiveCopy_MissingSource(t *testing.T) {
	w, dir := newTestWriter(t)
	_, err := w.ArchiveCopy(filepath.Join(dir, "nope.csv"))
	require.Error(t, err)
}
