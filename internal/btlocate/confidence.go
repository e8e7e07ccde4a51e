package btlocate

import "gonum.org/v1/gonum/stat"

// ConfidenceEstimator derives an uncertainty radius from the dispersion of
// recent distance and RSSI samples. It is a heuristic blend, not a rigorous
// confidence interval: wider dispersion in either series widens the radius,
// and the additive baseline keeps the radius non-zero even with perfectly
// stable readings (receiver and GPS floor noise never vanish).
type ConfidenceEstimator struct {
	Params Params
}

// RadiusM computes the confidence radius in meters over the most recent
// window of trail points. It returns nil (undefined) when fewer than two
// usable distance or RSSI samples exist in the window.
func (c ConfidenceEstimator) RadiusM(window []Detection) *float64 {
	var dists, rssis []float64
	for _, det := range window {
		if det.DistanceM != nil {
			dists = append(dists, *det.DistanceM)
		}
		if det.RSSI != nil {
			rssis = append(rssis, float64(*det.RSSI))
		}
	}
	if len(dists) < 2 && len(rssis) < 2 {
		return nil
	}

	meanDist := c.Params.FallbackMeanDistM
	if len(dists) > 0 {
		meanDist = stat.Mean(dists, nil)
	}

	radius := meanDist*c.Params.MeanDistanceWeight +
		stdevOrZero(dists)*c.Params.DistanceStdevWeight +
		stdevOrZero(rssis)*c.Params.RSSIStdevWeight +
		c.Params.ConfidenceBaselineM
	radius = clampFloat(radius, c.Params.ConfidenceMinM, c.Params.ConfidenceMaxM)
	return &radius
}

// stdevOrZero is the sample standard deviation, treating windows too small
// to measure dispersion as perfectly stable.
func stdevOrZero(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}
