// Command checkarchive runs the archive completeness scan on its own: it
// enumerates the expected hourly files over the control window, classifies
// each as valid, missing, or corrupt, and prints the problem lists.
//
// Usage:
//
//	go run ./cmd/checkarchive \
//	  -archive-root /data/mcm \
//	  -control-hours 24 -exclude-hours 2
//
// Exits 1 when the window has any missing or corrupt file, which makes it
// usable directly from cron-style monitoring.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/rainfall-etl/internal/archive"
	"github.com/couchcryptid/rainfall-etl/internal/raster"
)

func main() {
	root := flag.String("archive-root", "", "root of the year/month/day raster archive")
	controlHours := flag.Int("control-hours", 24, "lookback window in hours")
	excludeHours := flag.Int("exclude-hours", 2, "recent hours excluded from the check")
	prefix := flag.String("prefix", "MCM_", "file name prefix")
	minuteSuffix := flag.String("minute-suffix", "0000", "fixed minute suffix in file names")
	ext := flag.String("ext", ".asc", "raster file extension")
	anchorStr := flag.String("anchor", "", "anchor time (RFC3339), defaults to now")
	flag.Parse()

	if *root == "" {
		flag.Usage()
		os.Exit(2)
	}

	anchor := time.Now().UTC()
	if *anchorStr != "" {
		t, err := time.Parse(time.RFC3339, *anchorStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -anchor: %v\n", err)
			os.Exit(2)
		}
		anchor = t
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	layout := archive.Layout{
		Root:  *root,
		Namer: archive.Namer{Prefix: *prefix, MinuteSuffix: *minuteSuffix, Ext: *ext},
	}

	scanner := archive.NewScanner(layout, raster.NewProber(logger), logger)
	rep := scanner.Scan(anchor, *controlHours, *excludeHours)

	fmt.Printf("window: %s - %s\n",
		rep.WindowStart.Format("2006-01-02 15:04"),
		rep.WindowEnd.Format("2006-01-02 15:04"))
	fmt.Printf("expected %d files: %d valid, %d missing, %d corrupt\n",
		rep.Expected(), rep.Valid, len(rep.Missing), len(rep.Corrupt))

	for _, name := range rep.Missing {
		fmt.Printf("  missing  %s\n", name)
	}
	for _, p := range rep.Corrupt {
		fmt.Printf("  corrupt  %s (%s)\n", p.Name, p.Reason)
	}

	if !rep.Clean() {
		os.Exit(1)
	}
	fmt.Println("archive complete")
}
