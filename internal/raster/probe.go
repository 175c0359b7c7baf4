package raster

import (
	"fmt"
	"log/slog"
	"os"
)

// sampleRows bounds how much of a raster the prober decodes. Enough to catch
// truncation and garbled data without paying for a full decode.
const sampleRows = 100

// Prober checks whether a raster file is structurally readable.
type Prober struct {
	logger *slog.Logger
}

// NewProber creates a Prober that logs structural failures at Warn.
func NewProber(logger *slog.Logger) *Prober {
	return &Prober{logger: logger}
}

// Probe reports whether the raster at path has a readable header and a
// decodable sample window. It never returns an error: any structural failure
// is logged and reported as false.
func (p *Prober) Probe(path string) bool {
	if err := probeFile(path); err != nil {
		p.logger.Warn("corrupted raster file", "path", path, "error", err)
		return false
	}
	return true
}

func probeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	if _, err := DecodeSample(f, sampleRows); err != nil {
		return err
	}
	return nil
}
