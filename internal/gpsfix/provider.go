package gpsfix

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/mitchross/intercept/internal/monitoring"
)

// DefaultBaudRate covers nearly every consumer GPS dongle.
const DefaultBaudRate = 9600

// A fix older than this is treated as lost; the provider stops reporting it
// rather than pin detections to a stale position.
const maxFixAge = 30 * time.Second

// Provider supplies the observer's current position.
type Provider interface {
	// Position returns the current fix, or ok=false when no fix is held.
	Position() (lat, lon float64, ok bool)
}

// Status describes a provider for the GPS status endpoint.
type Status struct {
	Source    string     `json:"source"`
	HasFix    bool       `json:"has_fix"`
	Last      *Position  `json:"last_position,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Reader reads NMEA sentences from a serial GPS dongle in the background
// and holds the most recent fix.
type Reader struct {
	portName string

	mu        sync.Mutex
	last      *Position
	updatedAt time.Time
}

// NewReader opens nothing yet; the port is opened by Run so construction
// stays cheap and failures surface where they can be retried.
func NewReader(portName string) *Reader {
	return &Reader{portName: portName}
}

// Run opens the serial port and consumes NMEA sentences until the context
// is canceled. Sentences that do not parse to a fix are skipped.
func (r *Reader) Run(ctx context.Context) error {
	mode := &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(r.portName, mode)
	if err != nil {
		return fmt.Errorf("failed to open GPS port %s: %w", r.portName, err)
	}
	defer port.Close()

	monitoring.Logf("gps: reading NMEA from %s", r.portName)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)
	go func() {
		defer close(lineChan)
		scan := bufio.NewScanner(port)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErrChan:
			return fmt.Errorf("failed to read GPS port %s: %w", r.portName, err)
		case line, ok := <-lineChan:
			if !ok {
				return nil
			}
			if pos, ok := ParseSentence(line, time.Now()); ok {
				r.mu.Lock()
				r.last = &pos
				r.updatedAt = time.Now()
				r.mu.Unlock()
			}
		}
	}
}

// Position returns the most recent fix unless it has gone stale.
func (r *Reader) Position() (float64, float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil || time.Since(r.updatedAt) > maxFixAge {
		return 0, 0, false
	}
	return r.last.Lat, r.last.Lon, true
}

// Status reports the reader's state for the GPS status endpoint.
func (r *Reader) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Status{Source: "serial:" + r.portName}
	if r.last != nil {
		last := *r.last
		updated := r.updatedAt
		s.Last = &last
		s.UpdatedAt = &updated
		s.HasFix = time.Since(r.updatedAt) <= maxFixAge
	}
	return s
}

// ManualProvider holds an operator-entered position, for browsers denied
// geolocation or desktop use without a dongle.
type ManualProvider struct {
	mu  sync.Mutex
	pos *Position
}

// Set replaces the manual position.
func (m *ManualProvider) Set(lat, lon float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos = &Position{Lat: lat, Lon: lon, FixQuality: 1}
}

// Clear removes the manual position.
func (m *ManualProvider) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos = nil
}

// Position returns the manual position, if set.
func (m *ManualProvider) Position() (float64, float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pos == nil {
		return 0, 0, false
	}
	return m.pos.Lat, m.pos.Lon, true
}

// Status reports the manual provider's state.
func (m *ManualProvider) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Status{Source: "manual"}
	if m.pos != nil {
		last := *m.pos
		s.Last = &last
		s.HasFix = true
	}
	return s
}

// Chain tries each provider in order and returns the first fix. A serial
// dongle outranks the manual override when both hold one.
type Chain []Provider

func (c Chain) Position() (float64, float64, bool) {
	for _, p := range c {
		if lat, lon, ok := p.Position(); ok {
			return lat, lon, true
		}
	}
	return 0, 0, false
}
