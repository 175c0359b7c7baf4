package archive

import (
	"log/slog"
	"os"
	"time"
)

// Reason classifies why an expected archive file is unusable.
type Reason string

const (
	ReasonMissing Reason = "missing"
	ReasonEmpty   Reason = "empty file"
	ReasonCorrupt Reason = "corrupted file"
	// ReasonSkipped marks a file that classified as valid but failed to
	// decode during a later summation pass.
	ReasonSkipped Reason = "skipped during sum"
)

// Problem is one unusable expected file, annotated with the reason.
type Problem struct {
	Name   string
	Reason Reason
}

func (p Problem) String() string { return p.Name + " (" + string(p.Reason) + ")" }

// Prober reports whether a raster file is structurally readable.
type Prober interface {
	Probe(path string) bool
}

// Classify checks the expected file for the hour containing t. It returns
// the canonical path and, when the file is unusable, a non-nil Problem.
func Classify(layout Layout, prober Prober, t time.Time) (string, *Problem) {
	path := layout.Path(t)
	name := layout.Namer.Filename(t)

	info, err := os.Stat(path)
	if err != nil {
		return path, &Problem{Name: name, Reason: ReasonMissing}
	}
	if info.Size() == 0 {
		return path, &Problem{Name: name, Reason: ReasonEmpty}
	}
	if !prober.Probe(path) {
		return path, &Problem{Name: name, Reason: ReasonCorrupt}
	}
	return path, nil
}

// ScanReport is the outcome of an archive completeness check. Every expected
// identity in the window is accounted for: Valid + len(Missing) + len(Corrupt)
// equals the window length.
type ScanReport struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Missing     []string
	Corrupt     []Problem
	Valid       int
}

// Expected returns the number of identities the scan classified.
func (r ScanReport) Expected() int {
	return r.Valid + len(r.Missing) + len(r.Corrupt)
}

// Clean reports whether the window had no missing or corrupt files.
func (r ScanReport) Clean() bool {
	return len(r.Missing) == 0 && len(r.Corrupt) == 0
}

// Scanner validates archive completeness over a rolling window.
type Scanner struct {
	layout Layout
	prober Prober
	logger *slog.Logger
}

func NewScanner(layout Layout, prober Prober, logger *slog.Logger) *Scanner {
	return &Scanner{layout: layout, prober: prober, logger: logger}
}

// Scan classifies every hourly identity in the completeness-check window
// anchored at anchor: the window ends exclusionHours before the anchor and
// extends controlHours further back, both ends inclusive, so controlHours+1
// identities are classified. No single file aborts the scan.
func (s *Scanner) Scan(anchor time.Time, controlHours, exclusionHours int) ScanReport {
	limit := anchor.UTC().Truncate(time.Hour).Add(-time.Duration(exclusionHours) * time.Hour)
	start := limit.Add(-time.Duration(controlHours) * time.Hour)

	rep := ScanReport{WindowStart: start, WindowEnd: limit}
	for t := start; !t.After(limit); t = t.Add(time.Hour) {
		_, prob := Classify(s.layout, s.prober, t)
		switch {
		case prob == nil:
			rep.Valid++
		case prob.Reason == ReasonMissing:
			rep.Missing = append(rep.Missing, prob.Name)
		default:
			rep.Corrupt = append(rep.Corrupt, *prob)
		}
	}

	s.logger.Info("archive scan complete",
		"window_start", rep.WindowStart,
		"window_end", rep.WindowEnd,
		"expected", rep.Expected(),
		"valid", rep.Valid,
		"missing", len(rep.Missing),
		"corrupt", len(rep.Corrupt),
	)
	return rep
}
