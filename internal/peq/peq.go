// Package peq derives equivalent rainfall (Peq0) from precipitation depth
// and a zone's Curve Number via the modified SCS-CN relation:
//
//	S    = 25400/CN - 254
//	M    = max( sqrt(S*(P + ((1-λ)/2)²*S)) - ((1+λ)/2)*S, 0 )
//	Peq0 = M * (1 + λ*S/(S+M))
//
// λ is the initial-abstraction ratio.
package peq

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/couchcryptid/rainfall-etl/internal/zones"
)

// Compute returns Peq0 for a single precipitation depth in mm.
//
// CN must lie in (0, 100] and lambda in [0, 1). A NaN precipitation (an
// undefined upstream statistic) propagates as NaN. When S+M is zero, which
// only happens at CN=100 where retention vanishes, the correction term is
// taken as zero rather than dividing by zero. Negative radicands cannot occur for valid inputs with P >= 0 but are
// clamped at zero anyway so a stray negative depth cannot produce NaN.
func Compute(p, cn, lambda float64) (float64, error) {
	if cn <= 0 || cn > 100 {
		return 0, fmt.Errorf("curve number %g outside (0,100]", cn)
	}
	if lambda < 0 || lambda >= 1 {
		return 0, fmt.Errorf("lambda %g outside [0,1)", lambda)
	}
	if math.IsNaN(p) {
		return math.NaN(), nil
	}

	s := 25400/cn - 254
	radicand := s * (p + math.Pow((1-lambda)/2, 2)*s)
	if radicand < 0 {
		radicand = 0
	}
	m := math.Sqrt(radicand) - (1+lambda)/2*s
	if m < 0 {
		m = 0
	}

	if s+m == 0 {
		return m, nil
	}
	return m * (1 + lambda*s/(s+m)), nil
}

// ComputeSeries vectorizes Compute over precipitation depths for a fixed
// curve number and lambda.
func ComputeSeries(ps []float64, cn, lambda float64) ([]float64, error) {
	out := make([]float64, len(ps))
	for i, p := range ps {
		v, err := Compute(p, cn, lambda)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ApplyZonal transforms a per-zone percentile table into equivalent-rainfall
// values using each zone's average CN. Zones without a resolved CN are
// omitted from the result with a diagnostic; undefined percentiles stay
// undefined.
func ApplyZonal(res zones.ZonalResult, cnByZone map[zones.ZoneKey]float64, lambda float64, logger *slog.Logger) (zones.ZonalResult, error) {
	out := make(zones.ZonalResult, len(res))
	for key, row := range res {
		cn, ok := cnByZone[key]
		if !ok {
			logger.Warn("zone has no curve number, skipping", "zone", key.String())
			continue
		}

		outRow := make(map[int]float64, len(row))
		for lvl, p := range row {
			v, err := Compute(p, cn, lambda)
			if err != nil {
				return nil, fmt.Errorf("zone %s p%d: %w", key, lvl, err)
			}
			outRow[lvl] = v
		}
		out[key] = outRow
	}
	return out, nil
}
