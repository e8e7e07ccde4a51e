package btlocate

import (
	"time"

	"github.com/mitchross/intercept/internal/geo"
)

// OutlierFilter rejects physically impossible position jumps. GPS dropouts
// and multipath produce single-sample teleports; the hard ceiling catches
// gross errors regardless of timing, while the speed-aware soft ceiling
// distinguishes a device that legitimately moved fast from a glitched fix
// when timing is available.
type OutlierFilter struct {
	Params Params
}

// Accept decides whether a candidate fix is plausible relative to the most
// recently accepted fix. A nil last fix (empty trail) always accepts.
// Candidates with timestamps at or before the last fix cannot have their
// speed bounded, so they fall back to the soft-ceiling-only rule; they are
// tolerated but never reordered in the trail.
func (f OutlierFilter) Accept(candidate geo.Point, candidateTime time.Time, last *Detection) bool {
	if last == nil || !last.HasPosition() {
		return true
	}

	dist := geo.Distance(candidate, geo.Point{Lat: *last.Lat, Lon: *last.Lon})
	if dist > f.Params.HardJumpMeters {
		return false
	}

	if candidateTime.IsZero() || last.Timestamp.IsZero() {
		return dist <= f.Params.SoftJumpMeters
	}
	elapsed := candidateTime.Sub(last.Timestamp).Seconds()
	if elapsed <= 0 {
		return dist <= f.Params.SoftJumpMeters
	}

	if dist > f.Params.SoftJumpMeters && dist/elapsed > f.Params.MaxSpeedMPS {
		return false
	}
	return true
}
