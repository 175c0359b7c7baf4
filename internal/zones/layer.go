package zones

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Zone is one polygon region from the zone layer. Geometry is read-only for
// the lifetime of a run.
type Zone struct {
	Key      ZoneKey
	Label    string
	Geometry orb.Geometry
}

// LoadLayer reads a GeoJSON FeatureCollection of (Multi)Polygon zones.
// Features gain 1-based ZoneKeys in file order; the "zone" property, when
// present, supplies the display label, otherwise the key's canonical form is
// used. Non-polygonal features are rejected outright: a malformed layer is a
// configuration error, not a per-zone condition.
func LoadLayer(path string) ([]Zone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zone layer: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse zone layer %s: %w", path, err)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("zone layer %s has no features", path)
	}

	zs := make([]Zone, 0, len(fc.Features))
	for i, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, fmt.Errorf("zone layer %s: feature %d is %T, want polygon", path, i, f.Geometry)
		}

		key := ZoneKey(i + 1)
		label := f.Properties.MustString("zone", key.String())
		zs = append(zs, Zone{Key: key, Label: label, Geometry: f.Geometry})
	}
	return zs, nil
}
