package btlocate

import "math"

// DistanceEstimator converts an RSSI reading into an estimated distance
// using the log-distance path-loss model:
//
//	d = refDistance * 10^((refRSSI - rssi) / (10 * n))
//
// where n is the path-loss exponent of the active environment. The estimator
// is a pure function over its inputs; the session owns the current exponent.
type DistanceEstimator struct {
	Params Params
}

// Estimate returns the estimated distance in meters, clamped to the
// configured sane range, or nil when the RSSI is missing or the exponent is
// non-positive. A nil result means "unknown" and must never be treated as
// zero by downstream components.
func (e DistanceEstimator) Estimate(rssi *int, exponent float64) *float64 {
	if rssi == nil || exponent <= 0 {
		return nil
	}

	d := e.Params.ReferenceDistanceM *
		math.Pow(10, (e.Params.ReferenceRSSI-float64(*rssi))/(10*exponent))
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return nil
	}

	d = clampFloat(d, e.Params.MinDistanceM, e.Params.MaxDistanceM)
	return &d
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
