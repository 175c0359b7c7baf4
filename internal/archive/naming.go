// Package archive locates and validates the hourly rainfall raster archive.
//
// The archive is a directory tree partitioned by year/month/day. Each hour
// has exactly one expected file named by a fixed template:
//
//	<prefix><YYYYMMDDHH><minute-suffix><ext>   e.g. MCM_2024010106 0000.asc
//
// (no space in the real name; shown split for readability). File identity is
// the hourly timestamp; existence and validity are determined lazily when a
// scan or aggregation asks.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const stampLayout = "2006010215"

// Namer derives canonical archive file names from hourly timestamps and
// parses them back.
type Namer struct {
	Prefix       string
	MinuteSuffix string
	Ext          string
}

// Filename returns the canonical name for the hour containing t.
func (n Namer) Filename(t time.Time) string {
	return n.Prefix + t.UTC().Format(stampLayout) + n.MinuteSuffix + n.Ext
}

// ParseFilename extracts the hourly timestamp embedded in an archive file
// name. It reports false for names that do not match the template.
func (n Namer) ParseFilename(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, n.Prefix) || !strings.HasSuffix(name, n.Ext) {
		return time.Time{}, false
	}
	core := strings.TrimSuffix(strings.TrimPrefix(name, n.Prefix), n.Ext)
	if !strings.HasSuffix(core, n.MinuteSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(core, n.MinuteSuffix)
	if len(stamp) != len(stampLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(stampLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Layout maps hourly timestamps onto the year/month/day partition tree.
type Layout struct {
	Root  string
	Namer Namer
}

// PartitionDir returns the day directory holding files for t.
func (l Layout) PartitionDir(t time.Time) string {
	t = t.UTC()
	return filepath.Join(l.Root, t.Format("2006"), t.Format("01"), t.Format("02"))
}

// Path returns the canonical path of the file for the hour containing t.
func (l Layout) Path(t time.Time) string {
	return filepath.Join(l.PartitionDir(t), l.Namer.Filename(t))
}

// LatestTimestamp scans a partition directory and returns the maximum
// timestamp parseable from the file names present. Independent of listing
// order, so it does not rely on zero-padded lexicographic sorting.
func (l Layout) LatestTimestamp(dir string) (time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, fmt.Errorf("list partition %s: %w", dir, err)
	}

	var latest time.Time
	found := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		t, ok := l.Namer.ParseFilename(e.Name())
		if !ok {
			continue
		}
		if !found || t.After(latest) {
			latest = t
			found = true
		}
	}
	if !found {
		return time.Time{}, fmt.Errorf("no parseable archive files in %s", dir)
	}
	return latest, nil
}
