// Package curvenumber resolves per-zone average Curve Numbers from a
// directory of CN rasters, with a persisted cache keyed on source file
// modification times.
package curvenumber

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/rainfall-etl/internal/raster"
	"github.com/couchcryptid/rainfall-etl/internal/zones"
)

// trailingZoneRe extracts the 1-2 digit zone number a CN raster encodes at
// the end of its stem, e.g. "CN_zone_07.asc" -> 7.
var trailingZoneRe = regexp.MustCompile(`(\d{1,2})$`)

// snapshot is the persisted cache. Field names match the cache files written
// by the earlier tooling so existing caches stay readable; mtimes are
// recorded as Unix nanoseconds and must match the filesystem exactly.
type snapshot struct {
	ZoneCN map[string]float64 `json:"zone_cn"`
	MTimes map[string]int64   `json:"mtimes"`
}

// Cache resolves zone -> average CN, recomputing from the raster directory
// only when any recorded source modification time has drifted. The persisted
// file is always a complete snapshot: a miss recomputes everything and fully
// replaces it.
type Cache struct {
	rasterDir string
	path      string
	logger    *slog.Logger
}

func New(rasterDir, cachePath string, logger *slog.Logger) *Cache {
	return &Cache{rasterDir: rasterDir, path: cachePath, logger: logger}
}

// Resolve returns the per-zone average Curve Numbers. hit reports whether
// the persisted snapshot was still valid (in which case no raster was read).
func (c *Cache) Resolve() (cn map[zones.ZoneKey]float64, hit bool, err error) {
	if snap, ok := c.loadValid(); ok {
		c.logger.Info("curve numbers loaded from cache", "path", c.path, "zones", len(snap.ZoneCN))
		out, err := keyed(snap.ZoneCN)
		if err != nil {
			// A snapshot with unparseable keys is treated like any other
			// stale cache: recompute.
			c.logger.Warn("cache has unrecognizable zone keys, recomputing", "error", err)
		} else {
			return out, true, nil
		}
	}

	snap, err := c.recompute()
	if err != nil {
		return nil, false, err
	}

	if err := c.persist(snap); err != nil {
		return nil, false, err
	}
	c.logger.Info("curve number cache rewritten", "path", c.path, "zones", len(snap.ZoneCN))

	out, err := keyed(snap.ZoneCN)
	return out, false, err
}

// loadValid loads the persisted snapshot and checks every recorded
// modification time against the filesystem. Any drift, parse failure, or
// stat failure invalidates the whole snapshot.
func (c *Cache) loadValid() (snapshot, bool) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return snapshot{}, false
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Warn("curve number cache damaged, recomputing", "path", c.path, "error", err)
		return snapshot{}, false
	}

	for path, recorded := range snap.MTimes {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().UnixNano() != recorded {
			return snapshot{}, false
		}
	}
	return snap, true
}

// recompute reads every CN raster in the directory and averages its valid
// cells. Files whose names do not end in a zone number are skipped with a
// diagnostic; they are not an error.
func (c *Cache) recompute() (snapshot, error) {
	entries, err := os.ReadDir(c.rasterDir)
	if err != nil {
		return snapshot{}, fmt.Errorf("list CN rasters: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".asc") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	snap := snapshot{ZoneCN: map[string]float64{}, MTimes: map[string]int64{}}
	for _, name := range names {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		m := trailingZoneRe.FindString(stem)
		if m == "" {
			c.logger.Warn("CN raster name encodes no zone number, skipping", "name", name)
			continue
		}
		n, _ := strconv.Atoi(m)
		key, ok := zones.ZoneKey(n), n > 0 && n < 100
		if !ok {
			c.logger.Warn("CN raster name encodes no zone number, skipping", "name", name)
			continue
		}

		path := filepath.Join(c.rasterDir, name)
		mean, err := averageCN(path)
		if err != nil {
			return snapshot{}, fmt.Errorf("CN raster %s: %w", name, err)
		}

		info, err := os.Stat(path)
		if err != nil {
			return snapshot{}, fmt.Errorf("stat CN raster %s: %w", name, err)
		}

		snap.ZoneCN[key.String()] = mean
		snap.MTimes[path] = info.ModTime().UnixNano()
		c.logger.Info("average curve number computed", "zone", key.String(), "cn", mean)
	}
	return snap, nil
}

// averageCN reads one CN raster and returns the mean of its valid cells.
func averageCN(path string) (float64, error) {
	g, err := raster.Read(path)
	if err != nil {
		return 0, err
	}

	valid := make([]float64, 0, len(g.Data))
	for _, v := range g.Data {
		if v == g.NoData || math.IsNaN(v) {
			continue
		}
		valid = append(valid, v)
	}
	if len(valid) == 0 {
		return 0, fmt.Errorf("no valid cells")
	}
	return stat.Mean(valid, nil), nil
}

// persist atomically replaces the snapshot file: written to a temp file in
// the same directory and renamed, so a concurrent reader never observes a
// half-written cache.
func (c *Cache) persist(snap snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cn-cache-*")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}

func keyed(byLabel map[string]float64) (map[zones.ZoneKey]float64, error) {
	out := make(map[zones.ZoneKey]float64, len(byLabel))
	for label, v := range byLabel {
		key, ok := zones.ParseZoneKey(label)
		if !ok {
			return nil, fmt.Errorf("unrecognizable zone key %q", label)
		}
		out[key] = v
	}
	return out, nil
}
