package btlocate

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mitchross/intercept/internal/geo"
	"github.com/mitchross/intercept/internal/timeutil"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusActive Status = "active"
)

// LiveView is the running snapshot served to a polling or push-subscribed
// UI: the most recent detection plus session metadata and diagnostics.
type LiveView struct {
	SessionID         string       `json:"session_id,omitempty"`
	Active            bool         `json:"active"`
	Target            string       `json:"target,omitempty"`
	Environment       Environment  `json:"environment,omitempty"`
	PathLossExponent  float64      `json:"path_loss_exponent,omitempty"`
	StartedAt         *time.Time   `json:"started_at,omitempty"`
	ElapsedSeconds    float64      `json:"elapsed_seconds"`
	Detections        int          `json:"detection_count"`
	Positions         int          `json:"position_count"`
	DuplicatesDropped int          `json:"duplicates_dropped"`
	OutliersRejected  int          `json:"outliers_rejected"`
	TrailPoints       int          `json:"trail_points"`
	PathLengthM       float64      `json:"path_length_m"`
	AvgSpeedMPS       *float64     `json:"avg_speed_mps"`
	AvgSpeed          *float64     `json:"avg_speed,omitempty"`
	SpeedUnits        string       `json:"speed_units,omitempty"`
	ConfidenceRadiusM *float64     `json:"confidence_radius_m"`
	Last              *Detection   `json:"last_detection"`
	Heat              []HeatSample `json:"-"`
}

// Session owns the locate lifecycle: target matching, deduplication,
// distance estimation, outlier filtering, and the trail. All mutation goes
// through its methods behind a single mutex; the computational components
// are pure functions over the session's inputs. There is exactly one active
// session at a time per Session value; Start while Active implicitly ends
// the prior run.
type Session struct {
	mu    sync.Mutex
	clock timeutil.Clock

	params     Params
	estimator  DistanceEstimator
	filter     OutlierFilter
	confidence ConfidenceEstimator

	id        string
	status    Status
	target    TargetDescriptor
	hints     Hints
	env       Environment
	exponent  float64
	startedAt time.Time

	trail   *TrailStore
	lastKey string
	emaRSSI *float64

	detections int
	positions  int
	dupDropped int
	outliers   int

	// onAccept is invoked after a detection is appended, outside state
	// mutation concerns but while the mutex is held; the hook must not call
	// back into the session.
	onAccept func(sessionID string, det Detection)
}

// NewSession creates an idle session with the given calibration. A nil
// clock defaults to the real one.
func NewSession(clock timeutil.Clock, params Params) *Session {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Session{
		clock:      clock,
		params:     params,
		estimator:  DistanceEstimator{Params: params},
		filter:     OutlierFilter{Params: params},
		confidence: ConfidenceEstimator{Params: params},
		status:     StatusIdle,
		trail:      NewTrailStore(params),
	}
}

// SetOnAccept registers a hook called for every accepted detection, for
// example a history recorder or event broadcaster.
func (s *Session) SetOnAccept(f func(sessionID string, det Detection)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAccept = f
}

// Start begins a locate run for the given target. It validates the
// descriptor, implicitly stops any prior run, and resets all derived state.
// customExponent is only consulted for EnvCustom.
func (s *Session) Start(target TargetDescriptor, env Environment, customExponent float64, hints Hints) (string, error) {
	if err := target.Validate(); err != nil {
		return "", err
	}
	exponent, err := resolveExponent(env, customExponent)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.id = uuid.NewString()
	s.status = StatusActive
	s.target = target
	s.hints = hints
	s.env = env
	s.exponent = exponent
	s.startedAt = s.clock.Now()

	s.trail.Reset()
	s.lastKey = ""
	s.emaRSSI = nil
	s.detections = 0
	s.positions = 0
	s.dupDropped = 0
	s.outliers = 0

	return s.id, nil
}

// Stop ends the active run but preserves the accumulated trail for export
// until the next Start or an explicit Clear. Stopping is idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusIdle
}

// Clear empties the trail, heat samples, and RSSI history regardless of
// state.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trail.Reset()
	s.lastKey = ""
	s.emaRSSI = nil
	s.detections = 0
	s.positions = 0
	s.dupDropped = 0
	s.outliers = 0
}

// SetEnvironment switches the path-loss environment for all subsequent
// distance computations; history is never recomputed. It is ignored while
// Idle.
func (s *Session) SetEnvironment(env Environment, customExponent float64) error {
	exponent, err := resolveExponent(env, customExponent)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return nil
	}
	s.env = env
	s.exponent = exponent
	return nil
}

// Submit applies one raw detection through the serial accept path: target
// match, dedup gate, enrichment, outlier filter, trail append. It reports
// whether the detection was appended to the trail. Rejections are silent by
// design; the counters in LiveView are the only trace.
func (s *Session) Submit(raw RawDetection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return false
	}
	if !s.target.Matches(raw) {
		return false
	}

	key := dedupKey(raw)
	if key == s.lastKey {
		s.dupDropped++
		return false
	}
	s.lastKey = key

	det := Detection{
		Timestamp: raw.Timestamp,
		RSSI:      raw.RSSI,
		Lat:       raw.Lat,
		Lon:       raw.Lon,
	}
	if raw.RSSI != nil {
		s.emaRSSI = smooth(s.emaRSSI, float64(*raw.RSSI), s.params.RSSISmoothingAlpha)
		ema := *s.emaRSSI
		det.RSSIEMA = &ema
	}
	det.DistanceM = s.estimator.Estimate(raw.RSSI, s.exponent)
	det.Band = ClassifyProximity(det.DistanceM, raw.RSSI)

	if det.HasPosition() {
		candidate := geo.Point{Lat: *det.Lat, Lon: *det.Lon}
		if !s.filter.Accept(candidate, det.Timestamp, s.trail.LastFix()) {
			s.outliers++
			// The fix is implausible but the strength reading is still
			// real: keep the RSSI-only state moving.
			if det.RSSI != nil {
				s.trail.RecordRSSI(RSSISample{Timestamp: det.Timestamp, RSSI: *det.RSSI})
			}
			return false
		}
	}

	s.trail.Accept(det)
	s.detections++
	if det.HasPosition() {
		s.positions++
	}

	if s.onAccept != nil {
		s.onAccept(s.id, det)
	}
	return true
}

// LiveView returns the current session snapshot.
func (s *Session) LiveView() LiveView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := LiveView{
		SessionID:         s.id,
		Active:            s.status == StatusActive,
		Target:            s.targetLabel(),
		Environment:       s.env,
		PathLossExponent:  s.exponent,
		Detections:        s.detections,
		Positions:         s.positions,
		DuplicatesDropped: s.dupDropped,
		OutliersRejected:  s.outliers,
		TrailPoints:       s.trail.Len(),
		PathLengthM:       s.trail.PathLengthM(),
		AvgSpeedMPS:       s.trail.AvgSpeedMPS(),
		ConfidenceRadiusM: s.confidence.RadiusM(s.trail.Window(s.params.ConfidenceWindow)),
		Last:              s.trail.Last(),
		Heat:              s.trail.HeatSamples(),
	}
	if !s.startedAt.IsZero() {
		started := s.startedAt
		view.StartedAt = &started
		if view.Active {
			view.ElapsedSeconds = s.clock.Since(s.startedAt).Seconds()
		}
	}
	return view
}

// Snapshot returns the retained trail, optionally filtered to positioned
// detections, for restoring a view after reconnect.
func (s *Session) Snapshot(positionedOnly bool) []Detection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if positionedOnly {
		return s.trail.Positioned()
	}
	return s.trail.Points()
}

// RSSIHistory returns the bounded RSSI history for sparkline display.
func (s *Session) RSSIHistory() []RSSISample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trail.RSSIHistory()
}

// HeatSamples returns the retained heat samples for density overlays.
func (s *Session) HeatSamples() []HeatSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trail.HeatSamples()
}

// ID returns the current (or last) session identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) targetLabel() string {
	switch {
	case s.target.IdentityKey != "":
		return s.target.IdentityKey
	case s.target.Address != "":
		return s.target.Address
	default:
		return s.target.NamePattern
	}
}

func resolveExponent(env Environment, custom float64) (float64, error) {
	if !env.Valid() {
		return 0, fmt.Errorf("unknown environment %q", env)
	}
	if n, ok := env.PathLossExponent(); ok {
		return n, nil
	}
	if custom <= 0 {
		return 0, fmt.Errorf("custom environment needs a positive path-loss exponent, got %v", custom)
	}
	return custom, nil
}

// dedupKey builds the composite identity of a raw detection: timestamp plus
// rounded position plus RSSI. An exact repeat of the most recent key is the
// transport's push stream and polling fallback delivering the same event.
func dedupKey(raw RawDetection) string {
	lat, lon := "-", "-"
	if raw.Lat != nil {
		lat = fmt.Sprintf("%.5f", *raw.Lat)
	}
	if raw.Lon != nil {
		lon = fmt.Sprintf("%.5f", *raw.Lon)
	}
	rssi := "-"
	if raw.RSSI != nil {
		rssi = fmt.Sprintf("%d", *raw.RSSI)
	}
	return fmt.Sprintf("%d|%s|%s|%s", raw.Timestamp.UnixNano(), lat, lon, rssi)
}

func smooth(prev *float64, v, alpha float64) *float64 {
	if prev == nil {
		return &v
	}
	next := *prev*(1-alpha) + v*alpha
	return &next
}
