package btlocate

import (
	"time"

	"github.com/mitchross/intercept/internal/geo"
)

// Heat weights: RSSI is mapped linearly from [-100, -40] dBm onto the weight
// range and clamped, so a stronger signal renders hotter.
const (
	heatWeightMin  = 0.1
	heatWeightMax  = 1.0
	heatRSSIFloor  = -100.0
	heatRSSICeil   = -40.0
	heatRSSISpread = heatRSSICeil - heatRSSIFloor
)

// TrailStore accumulates accepted detections in arrival order, bounded FIFO.
// It owns the heat samples, the bounded RSSI history, and the derived
// movement aggregates (cumulative path length, average speed). The store
// does not deduplicate or filter; the session controller gates what reaches
// Accept. Not safe for concurrent use; the session's mutex covers it.
type TrailStore struct {
	params Params

	points  []Detection
	heat    []HeatSample
	history []RSSISample

	// Most recent accepted detection that carried a position. Outlier
	// decisions compare against this, never against position-less entries.
	lastFix *Detection

	pathLengthM float64
	firstAt     time.Time
	lastAt      time.Time
}

// NewTrailStore returns an empty trail store with the given calibration.
func NewTrailStore(params Params) *TrailStore {
	return &TrailStore{params: params}
}

// Accept appends a detection to the trail and updates derived state. For
// positioned detections it also appends a heat sample and extends the path
// length; position-less detections only touch the trail and RSSI history.
// Timestamps are not reordered: the trail is FIFO by arrival.
func (t *TrailStore) Accept(det Detection) {
	if det.HasPosition() {
		if t.lastFix != nil {
			t.pathLengthM += geo.Distance(
				geo.Point{Lat: *t.lastFix.Lat, Lon: *t.lastFix.Lon},
				geo.Point{Lat: *det.Lat, Lon: *det.Lon},
			)
		}
		fix := det
		t.lastFix = &fix

		t.heat = append(t.heat, HeatSample{
			Lat:    *det.Lat,
			Lon:    *det.Lon,
			Weight: heatWeight(det.RSSI),
		})
		if over := len(t.heat) - t.params.MaxHeatPoints; over > 0 {
			t.heat = append(t.heat[:0], t.heat[over:]...)
		}
	}

	t.points = append(t.points, det)
	if over := len(t.points) - t.params.MaxTrailPoints; over > 0 {
		t.points = append(t.points[:0], t.points[over:]...)
	}

	if det.RSSI != nil {
		t.history = append(t.history, RSSISample{Timestamp: det.Timestamp, RSSI: *det.RSSI})
		if over := len(t.history) - t.params.MaxRSSIPoints; over > 0 {
			t.history = append(t.history[:0], t.history[over:]...)
		}
	}

	if t.firstAt.IsZero() {
		t.firstAt = det.Timestamp
	}
	t.lastAt = det.Timestamp
}

// RecordRSSI appends a sample to the bounded RSSI history without touching
// the trail. Used for detections whose position was rejected but whose
// strength reading is still real.
func (t *TrailStore) RecordRSSI(sample RSSISample) {
	t.history = append(t.history, sample)
	if over := len(t.history) - t.params.MaxRSSIPoints; over > 0 {
		t.history = append(t.history[:0], t.history[over:]...)
	}
}

// Reset empties the trail, heat samples, history, and aggregates.
func (t *TrailStore) Reset() {
	t.points = nil
	t.heat = nil
	t.history = nil
	t.lastFix = nil
	t.pathLengthM = 0
	t.firstAt = time.Time{}
	t.lastAt = time.Time{}
}

// Len returns the number of detections currently retained.
func (t *TrailStore) Len() int { return len(t.points) }

// Points returns a copy of the retained trail in arrival order.
func (t *TrailStore) Points() []Detection {
	out := make([]Detection, len(t.points))
	copy(out, t.points)
	return out
}

// Positioned returns a copy of the retained trail filtered to detections
// that carry a position fix.
func (t *TrailStore) Positioned() []Detection {
	var out []Detection
	for _, d := range t.points {
		if d.HasPosition() {
			out = append(out, d)
		}
	}
	return out
}

// HeatSamples returns a copy of the retained heat samples.
func (t *TrailStore) HeatSamples() []HeatSample {
	out := make([]HeatSample, len(t.heat))
	copy(out, t.heat)
	return out
}

// RSSIHistory returns a copy of the bounded RSSI history.
func (t *TrailStore) RSSIHistory() []RSSISample {
	out := make([]RSSISample, len(t.history))
	copy(out, t.history)
	return out
}

// LastFix returns the most recently accepted positioned detection, or nil.
func (t *TrailStore) LastFix() *Detection {
	if t.lastFix == nil {
		return nil
	}
	fix := *t.lastFix
	return &fix
}

// Last returns the most recently accepted detection of any kind, or nil.
func (t *TrailStore) Last() *Detection {
	if len(t.points) == 0 {
		return nil
	}
	last := t.points[len(t.points)-1]
	return &last
}

// PathLengthM returns the cumulative great-circle path length over all
// accepted fixes since the last reset. Eviction does not shrink it.
func (t *TrailStore) PathLengthM() float64 { return t.pathLengthM }

// AvgSpeedMPS returns the average movement speed, or nil until the trail
// spans more than the minimum speed window.
func (t *TrailStore) AvgSpeedMPS() *float64 {
	if t.firstAt.IsZero() || t.lastAt.IsZero() {
		return nil
	}
	elapsed := t.lastAt.Sub(t.firstAt).Seconds()
	if elapsed <= t.params.MinSpeedWindowSec {
		return nil
	}
	speed := t.pathLengthM / elapsed
	return &speed
}

// Window returns up to n of the most recent detections in arrival order.
func (t *TrailStore) Window(n int) []Detection {
	if n <= 0 || len(t.points) == 0 {
		return nil
	}
	if n > len(t.points) {
		n = len(t.points)
	}
	out := make([]Detection, n)
	copy(out, t.points[len(t.points)-n:])
	return out
}

func heatWeight(rssi *int) float64 {
	if rssi == nil {
		return heatWeightMin
	}
	w := (float64(*rssi) - heatRSSIFloor) / heatRSSISpread
	return clampFloat(w, heatWeightMin, heatWeightMax)
}
