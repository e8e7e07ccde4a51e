// Package btlocate implements the proximity localization engine behind the
// Bluetooth locate mode: walk toward a target device while the engine turns
// signal-strength observations and position fixes into a confidence-scored
// movement trail.
//
// The engine is a single-writer state machine. Detections may originate from
// a push subscription and a polling fallback, but both delivery paths must
// converge on Session.Submit, which serializes the accept path (dedup check,
// outlier filter, trail append) behind one mutex.
package btlocate

import "time"

// Environment selects the path-loss exponent preset for distance estimation.
type Environment string

const (
	EnvFreeSpace Environment = "free_space"
	EnvOutdoor   Environment = "outdoor"
	EnvIndoor    Environment = "indoor"
	EnvCustom    Environment = "custom"
)

// PathLossExponent returns the preset exponent for the environment. Custom
// environments have no preset; ok is false and the caller must supply one.
func (e Environment) PathLossExponent() (n float64, ok bool) {
	switch e {
	case EnvFreeSpace:
		return 2.0, true
	case EnvOutdoor:
		return 2.2, true
	case EnvIndoor:
		return 3.0, true
	default:
		return 0, false
	}
}

// Valid reports whether e names a known environment.
func (e Environment) Valid() bool {
	switch e {
	case EnvFreeSpace, EnvOutdoor, EnvIndoor, EnvCustom:
		return true
	}
	return false
}

// Band is the advisory proximity classification of a single detection.
// Classification is stateless and has no hysteresis; flicker near a
// breakpoint is accepted behavior.
type Band string

const (
	BandImmediate Band = "immediate"
	BandNear      Band = "near"
	BandFar       Band = "far"
	BandUnknown   Band = "unknown"
)

// RawDetection is one observation of a device as reported by the scanner
// backend, before target matching and enrichment. RSSI and position are
// optional; a missing value is represented by a nil pointer and is
// propagated as "unknown", never coerced to zero.
type RawDetection struct {
	Address   string    `json:"address,omitempty"`
	Name      string    `json:"name,omitempty"`
	Identity  string    `json:"resolved_identity,omitempty"`
	RSSI      *int      `json:"rssi"`
	Lat       *float64  `json:"lat,omitempty"`
	Lon       *float64  `json:"lon,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Detection is one accepted observation of the target device. Immutable
// after creation.
type Detection struct {
	Timestamp time.Time `json:"timestamp"`
	RSSI      *int      `json:"rssi"`
	RSSIEMA   *float64  `json:"rssi_ema"`
	DistanceM *float64  `json:"estimated_distance_m"`
	Band      Band      `json:"proximity_band"`
	Lat       *float64  `json:"lat"`
	Lon       *float64  `json:"lon"`
}

// HasPosition reports whether the detection carries a position fix.
func (d Detection) HasPosition() bool {
	return d.Lat != nil && d.Lon != nil
}

// HeatSample is a weighted position used for signal-density overlays.
type HeatSample struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Weight float64 `json:"weight"`
}

// RSSISample is one point of the bounded RSSI history kept for smoothing and
// sparkline display.
type RSSISample struct {
	Timestamp time.Time `json:"timestamp"`
	RSSI      int       `json:"rssi"`
}

// Calibration constants. These are tuning values, not physical law; they are
// kept in Params so they can be recalibrated without touching control flow.
const (
	// Reference calibration for the log-distance path-loss model,
	// representative of common BLE beacons: -59 dBm at one meter.
	DefaultReferenceRSSI      = -59.0
	DefaultReferenceDistanceM = 1.0

	// Distance estimates are clamped into this range; anything outside is
	// physically implausible for a walk-toward-the-source search.
	DefaultMinDistanceM = 0.1
	DefaultMaxDistanceM = 10000.0

	// Bounded state sizes.
	DefaultMaxTrailPoints = 1200
	DefaultMaxHeatPoints  = 1200
	DefaultMaxRSSIPoints  = 60

	// Outlier filter ceilings. The hard ceiling catches gross fix errors
	// regardless of timing; the soft ceiling applies when the implied speed
	// cannot be bounded or exceeds the speed limit (~180 km/h).
	DefaultHardJumpMeters = 2000.0
	DefaultSoftJumpMeters = 450.0
	DefaultMaxSpeedMPS    = 50.0

	// Confidence radius heuristic.
	DefaultConfidenceWindow    = 8
	DefaultConfidenceMinM      = 4.0
	DefaultConfidenceMaxM      = 150.0
	DefaultFallbackMeanDistM   = 20.0
	DefaultMeanDistanceWeight  = 0.35
	DefaultDistanceStdevWeight = 1.6
	DefaultRSSIStdevWeight     = 0.9
	DefaultConfidenceBaselineM = 3.0

	// EMA smoothing factor for the running RSSI average.
	DefaultRSSISmoothingAlpha = 0.3

	// Average speed is only reported once the trail spans more than this
	// many seconds; shorter windows divide by near-zero elapsed time.
	DefaultMinSpeedWindowSec = 5.0
)

// Params holds the engine's calibration values. Zero values are invalid; use
// DefaultParams and override selectively (internal/config applies overrides
// from the tuning file).
type Params struct {
	ReferenceRSSI      float64
	ReferenceDistanceM float64
	MinDistanceM       float64
	MaxDistanceM       float64

	MaxTrailPoints int
	MaxHeatPoints  int
	MaxRSSIPoints  int

	HardJumpMeters float64
	SoftJumpMeters float64
	MaxSpeedMPS    float64

	ConfidenceWindow    int
	ConfidenceMinM      float64
	ConfidenceMaxM      float64
	FallbackMeanDistM   float64
	MeanDistanceWeight  float64
	DistanceStdevWeight float64
	RSSIStdevWeight     float64
	ConfidenceBaselineM float64

	RSSISmoothingAlpha float64
	MinSpeedWindowSec  float64
}

// DefaultParams returns the calibration the engine ships with.
func DefaultParams() Params {
	return Params{
		ReferenceRSSI:      DefaultReferenceRSSI,
		ReferenceDistanceM: DefaultReferenceDistanceM,
		MinDistanceM:       DefaultMinDistanceM,
		MaxDistanceM:       DefaultMaxDistanceM,

		MaxTrailPoints: DefaultMaxTrailPoints,
		MaxHeatPoints:  DefaultMaxHeatPoints,
		MaxRSSIPoints:  DefaultMaxRSSIPoints,

		HardJumpMeters: DefaultHardJumpMeters,
		SoftJumpMeters: DefaultSoftJumpMeters,
		MaxSpeedMPS:    DefaultMaxSpeedMPS,

		ConfidenceWindow:    DefaultConfidenceWindow,
		ConfidenceMinM:      DefaultConfidenceMinM,
		ConfidenceMaxM:      DefaultConfidenceMaxM,
		FallbackMeanDistM:   DefaultFallbackMeanDistM,
		MeanDistanceWeight:  DefaultMeanDistanceWeight,
		DistanceStdevWeight: DefaultDistanceStdevWeight,
		RSSIStdevWeight:     DefaultRSSIStdevWeight,
		ConfidenceBaselineM: DefaultConfidenceBaselineM,

		RSSISmoothingAlpha: DefaultRSSISmoothingAlpha,
		MinSpeedWindowSec:  DefaultMinSpeedWindowSec,
	}
}
