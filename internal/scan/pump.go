package scan

import (
	"context"
	"time"

	"github.com/mitchross/intercept/internal/btlocate"
	"github.com/mitchross/intercept/internal/monitoring"
	"github.com/mitchross/intercept/internal/timeutil"
)

// DefaultPollInterval is how often the pump polls the backend snapshot as a
// fallback for missed pushes.
const DefaultPollInterval = 2 * time.Second

// GPSProvider supplies the observer's current position. Detections from
// backends that do not geotag (most scanners report only radio data) are
// stamped with the observer position on the way into the session.
type GPSProvider interface {
	// Position returns the current fix, or ok=false when no fix is held.
	Position() (lat, lon float64, ok bool)
}

// Pump drives a session from a backend. It consumes the push subscription
// and a poll ticker in a single goroutine, so every detection reaches
// Session.Submit from one place regardless of delivery path; the session's
// dedup key drops the overlap between the two.
type Pump struct {
	backend      Backend
	session      *btlocate.Session
	gps          GPSProvider
	clock        timeutil.Clock
	pollInterval time.Duration
}

// NewPump wires a backend to a session. gps may be nil when no position
// source exists; detections then flow through position-less. A nil clock
// defaults to the real one.
func NewPump(backend Backend, session *btlocate.Session, gps GPSProvider, clock timeutil.Clock, pollInterval time.Duration) *Pump {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Pump{
		backend:      backend,
		session:      session,
		gps:          gps,
		clock:        clock,
		pollInterval: pollInterval,
	}
}

// Run consumes the backend until the context is canceled.
func (p *Pump) Run(ctx context.Context) error {
	id, pushCh := p.backend.Subscribe()
	defer p.backend.Unsubscribe(id)

	ticker := p.clock.NewTicker(p.pollInterval)
	defer ticker.Stop()

	monitoring.Logf("pump: consuming backend (poll interval %s)", p.pollInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case det, ok := <-pushCh:
			if !ok {
				return nil
			}
			p.submit(det)

		case <-ticker.C():
			for _, det := range p.backend.Snapshot() {
				p.submit(det)
			}
		}
	}
}

func (p *Pump) submit(det btlocate.RawDetection) {
	if det.Lat == nil && det.Lon == nil && p.gps != nil {
		if lat, lon, ok := p.gps.Position(); ok {
			det.Lat = &lat
			det.Lon = &lon
		}
	}
	p.session.Submit(det)
}
