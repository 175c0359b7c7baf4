// Package report persists the pipeline's numeric artifacts for downstream
// collaborators: per-duration percentile and Peq0 tables, per-duration
// problem lists, and the archive completeness report. Presentation beyond
// plain CSV is somebody else's job.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/jonboulle/clockwork"
	"github.com/jszwec/csvutil"

	"github.com/couchcryptid/rainfall-etl/internal/archive"
	"github.com/couchcryptid/rainfall-etl/internal/zones"
)

// statRow is one zone/percentile cell of a result table in long form. A nil
// Value encodes an undefined statistic as an empty CSV cell.
type statRow struct {
	Zone          string   `csv:"zone"`
	DurationHours int      `csv:"duration_hours"`
	Percentile    int      `csv:"percentile"`
	Value         *float64 `csv:"value"`
}

type problemRow struct {
	File   string `csv:"file"`
	Reason string `csv:"reason"`
}

type archiveRow struct {
	File   string `csv:"file"`
	Status string `csv:"status"`
}

// Writer writes report files under the configured output directory.
type Writer struct {
	outputDir string
	clock     clockwork.Clock
}

func NewWriter(outputDir string, clock clockwork.Clock) *Writer {
	return &Writer{outputDir: outputDir, clock: clock}
}

// WriteZonal persists a per-zone percentile table as
// <name>_<duration>h.csv, zones ordered by key, levels ascending.
func (w *Writer) WriteZonal(name string, duration int, levels []int, res zones.ZonalResult) (string, error) {
	keys := make([]zones.ZoneKey, 0, len(res))
	for k := range res {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	sorted := append([]int(nil), levels...)
	sort.Ints(sorted)

	rows := make([]statRow, 0, len(keys)*len(sorted))
	for _, k := range keys {
		for _, lvl := range sorted {
			row := statRow{Zone: k.String(), DurationHours: duration, Percentile: lvl}
			if v, ok := res[k][lvl]; ok && !math.IsNaN(v) {
				rounded := math.Round(v*100) / 100
				row.Value = &rounded
			}
			rows = append(rows, row)
		}
	}

	path := filepath.Join(w.outputDir, fmt.Sprintf("%s_%dh.csv", name, duration))
	return path, writeCSV(path, rows)
}

// WriteProblems persists one duration's unusable-file list.
func (w *Writer) WriteProblems(duration int, problems []archive.Problem) (string, error) {
	rows := make([]problemRow, 0, len(problems))
	for _, p := range problems {
		rows = append(rows, problemRow{File: p.Name, Reason: string(p.Reason)})
	}
	path := filepath.Join(w.outputDir, fmt.Sprintf("problems_%dh.csv", duration))
	return path, writeCSV(path, rows)
}

// WriteArchiveReport persists the completeness scan's missing and corrupt
// identities for the notification collaborator.
func (w *Writer) WriteArchiveReport(rep archive.ScanReport) (string, error) {
	rows := make([]archiveRow, 0, len(rep.Missing)+len(rep.Corrupt))
	for _, name := range rep.Missing {
		rows = append(rows, archiveRow{File: name, Status: string(archive.ReasonMissing)})
	}
	for _, p := range rep.Corrupt {
		rows = append(rows, archiveRow{File: p.Name, Status: string(p.Reason)})
	}
	path := filepath.Join(w.outputDir, "archive_report.csv")
	return path, writeCSV(path, rows)
}

// ArchiveCopy drops a dated copy of a report under <output>/<YYYY>/<MM>/ for
// the historical record.
func (w *Writer) ArchiveCopy(src string) (string, error) {
	today := w.clock.Now().UTC()
	dir := filepath.Join(w.outputDir, today.Format("2006"), today.Format("01"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	base := filepath.Base(src)
	ext := filepath.Ext(base)
	dst := filepath.Join(dir, fmt.Sprintf("%s_%s%s",
		base[:len(base)-len(ext)], today.Format("20060102"), ext))

	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func writeCSV(path string, rows any) error {
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("archive copy: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("archive copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("archive copy: %w", err)
	}
	return out.Close()
}
