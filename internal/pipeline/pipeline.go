// Package pipeline orchestrates one batch run: per-duration cumulative
// aggregation, zonal statistics, equivalent-rainfall derivation, and the
// closing archive completeness scan. One duration's failure never suppresses
// the others.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/rainfall-etl/internal/archive"
	"github.com/couchcryptid/rainfall-etl/internal/config"
	"github.com/couchcryptid/rainfall-etl/internal/cumulate"
	"github.com/couchcryptid/rainfall-etl/internal/curvenumber"
	"github.com/couchcryptid/rainfall-etl/internal/observability"
	"github.com/couchcryptid/rainfall-etl/internal/peq"
	"github.com/couchcryptid/rainfall-etl/internal/raster"
	"github.com/couchcryptid/rainfall-etl/internal/report"
	"github.com/couchcryptid/rainfall-etl/internal/zones"
)

// Pipeline wires the aggregation stages together for a batch run.
type Pipeline struct {
	cfg        *config.Config
	aggregator *cumulate.Aggregator
	scanner    *archive.Scanner
	cnCache    *curvenumber.Cache
	writer     *report.Writer
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool
}

func New(
	cfg *config.Config,
	aggregator *cumulate.Aggregator,
	scanner *archive.Scanner,
	cnCache *curvenumber.Cache,
	writer *report.Writer,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		aggregator: aggregator,
		scanner:    scanner,
		cnCache:    cnCache,
		writer:     writer,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// CheckReadiness returns nil once at least one duration has been processed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed any duration yet")
	}
	return nil
}

// durationOutcome records what a summary line needs per duration.
type durationOutcome struct {
	ok       bool
	problems int
}

// Run executes one complete batch: every configured duration, then the
// archive completeness scan. It returns an error only for conditions that
// invalidate the whole run (an unreadable zone layer); per-duration and
// per-file failures are contained and reported.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "durations", p.cfg.Durations, "percentiles", p.cfg.Percentiles)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	zs, err := zones.LoadLayer(p.cfg.ZonesPath)
	if err != nil {
		return fmt.Errorf("load zone layer: %w", err)
	}
	p.logger.Info("zone layer loaded", "zones", len(zs))

	cn := p.resolveCurveNumbers()

	outcomes := make(map[int]durationOutcome, len(p.cfg.Durations))
	for _, d := range p.cfg.Durations {
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
		outcomes[d] = p.processDuration(d, zs, cn)
	}

	p.scanArchive()
	p.summarize(outcomes)
	return nil
}

// resolveCurveNumbers resolves per-zone CN averages. Failure disables the
// Peq0 stage for this run but never the percentile tables.
func (p *Pipeline) resolveCurveNumbers() map[zones.ZoneKey]float64 {
	cn, hit, err := p.cnCache.Resolve()
	switch {
	case err != nil:
		p.metrics.CNCacheLookups.WithLabelValues("error").Inc()
		p.logger.Error("curve number resolution failed, skipping Peq0 stage", "error", err)
		return nil
	case hit:
		p.metrics.CNCacheLookups.WithLabelValues("hit").Inc()
	default:
		p.metrics.CNCacheLookups.WithLabelValues("miss").Inc()
	}
	return cn
}

// processDuration runs one aggregate-clip-stats-Peq0 cycle. Every failure
// path still leaves the duration's problem list on disk.
func (p *Pipeline) processDuration(d int, zs []zones.Zone, cn map[zones.ZoneKey]float64) durationOutcome {
	start := time.Now()

	res, aggErr := p.aggregator.Aggregate(d)
	for _, prob := range res.Problems {
		p.metrics.ProblemFiles.WithLabelValues(string(prob.Reason)).Inc()
	}
	if _, err := p.writer.WriteProblems(d, res.Problems); err != nil {
		p.logger.Error("write problem list failed", "duration_hours", d, "error", err)
	}

	if aggErr != nil {
		return p.failDuration(d, aggErr)
	}

	clipped, err := zones.Clip(res.Grid, zs)
	if err != nil {
		return p.failDuration(d, fmt.Errorf("clip: %w", err))
	}

	clipPath := filepath.Join(p.cfg.TempDir, fmt.Sprintf("cumulative_%dh.asc", d))
	if err := raster.Write(clipPath, clipped); err != nil {
		return p.failDuration(d, err)
	}

	stats := zones.ComputeStatistics(clipped, zs, p.cfg.Percentiles, p.logger)
	p.metrics.ZonesUndefined.Add(float64(countUndefined(stats)))

	statsPath, err := p.writer.WriteZonal("percentiles", d, p.cfg.Percentiles, stats)
	if err != nil {
		return p.failDuration(d, err)
	}
	p.logger.Info("percentile table written", "duration_hours", d, "path", statsPath)

	if cn != nil {
		if err := p.writePeq(d, stats, cn); err != nil {
			return p.failDuration(d, err)
		}
	}

	p.metrics.DurationsProcessed.WithLabelValues("success").Inc()
	p.metrics.LayersSummed.Observe(float64(res.Summed))
	p.metrics.DurationSeconds.Observe(time.Since(start).Seconds())
	p.ready.Store(true)

	p.logger.Info("duration complete",
		"duration_hours", d,
		"summed", res.Summed,
		"problems", len(res.Problems),
	)
	return durationOutcome{ok: true, problems: len(res.Problems)}
}

func (p *Pipeline) writePeq(d int, stats zones.ZonalResult, cn map[zones.ZoneKey]float64) error {
	peqRes, err := peq.ApplyZonal(stats, cn, p.cfg.Lambda, p.logger)
	if err != nil {
		return fmt.Errorf("peq0: %w", err)
	}

	path, err := p.writer.WriteZonal("peq0", d, p.cfg.Percentiles, peqRes)
	if err != nil {
		return err
	}

	archived, err := p.writer.ArchiveCopy(path)
	if err != nil {
		return err
	}
	p.logger.Info("peq0 table written", "duration_hours", d, "path", path, "archived", archived)
	return nil
}

func (p *Pipeline) failDuration(d int, err error) durationOutcome {
	p.metrics.DurationsProcessed.WithLabelValues("failure").Inc()
	p.logger.Error("duration failed", "duration_hours", d, "error", err)
	return durationOutcome{}
}

// scanArchive runs the completeness check over the control window and
// persists the report.
func (p *Pipeline) scanArchive() {
	rep := p.scanner.Scan(p.clock.Now().UTC(), p.cfg.ControlHours, p.cfg.RecentExcludeHours)
	p.metrics.ArchiveMissing.Set(float64(len(rep.Missing)))
	p.metrics.ArchiveCorrupt.Set(float64(len(rep.Corrupt)))

	path, err := p.writer.WriteArchiveReport(rep)
	if err != nil {
		p.logger.Error("write archive report failed", "error", err)
		return
	}
	if rep.Clean() {
		p.logger.Info("archive complete", "path", path)
	} else {
		p.logger.Warn("archive has problems",
			"path", path,
			"missing", len(rep.Missing),
			"corrupt", len(rep.Corrupt),
		)
	}
}

func (p *Pipeline) summarize(outcomes map[int]durationOutcome) {
	for _, d := range p.cfg.Durations {
		o := outcomes[d]
		p.logger.Info("run summary",
			"duration_hours", d,
			"success", o.ok,
			"problem_files", o.problems,
		)
	}
}

func countUndefined(res zones.ZonalResult) int {
	n := 0
	for _, row := range res {
		undefined := len(row) > 0
		for _, v := range row {
			if !math.IsNaN(v) {
				undefined = false
				break
			}
		}
		if undefined {
			n++
		}
	}
	return n
}
