// Package scan bridges scanner backends to the locate engine. A backend
// produces raw detections over a push subscription; the package also keeps
// a most-recent-per-device snapshot so clients that missed pushes can poll.
// Multiple clients may subscribe to a single backend.
package scan

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/mitchross/intercept/internal/btlocate"
	"github.com/mitchross/intercept/internal/monitoring"
)

// Backend is a source of raw detections. Subscribe returns a channel of
// pushed detections plus an ID for unsubscribing; Snapshot returns the most
// recent detection per device for polling fallback.
type Backend interface {
	Subscribe() (string, chan btlocate.RawDetection)
	Unsubscribe(string)
	Snapshot() []btlocate.RawDetection
	Run(context.Context) error
	Close() error
}

// Mux reads newline-delimited JSON detections from a reader (a scanner
// process pipe or a serial-attached sniffer) and fans them out to
// subscribers. Slow subscribers drop events rather than block the read
// loop; the snapshot table catches them up on poll.
type Mux struct {
	source io.ReadCloser

	subscriberMu sync.Mutex
	subscribers  map[string]chan btlocate.RawDetection

	snapshotMu sync.Mutex
	latest     map[string]btlocate.RawDetection

	closingMu sync.Mutex
	closing   bool
}

// NewMux creates a Mux reading from the given source.
func NewMux(source io.ReadCloser) *Mux {
	return &Mux{
		source:      source,
		subscribers: make(map[string]chan btlocate.RawDetection),
		latest:      make(map[string]btlocate.RawDetection),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel for receiving pushed detections. The
// returned ID identifies the channel when unsubscribing.
func (m *Mux) Subscribe() (string, chan btlocate.RawDetection) {
	id := randomID()
	ch := make(chan btlocate.RawDetection, 16)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *Mux) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Snapshot returns the most recent detection seen for each device.
func (m *Mux) Snapshot() []btlocate.RawDetection {
	m.snapshotMu.Lock()
	defer m.snapshotMu.Unlock()
	out := make([]btlocate.RawDetection, 0, len(m.latest))
	for _, det := range m.latest {
		out = append(out, det)
	}
	return out
}

// Run reads detections from the source until the context is canceled or the
// source is exhausted. Unparseable lines are logged and skipped; a scanner
// that interleaves status chatter with detections must not kill the stream.
func (m *Mux) Run(ctx context.Context) error {
	scan := bufio.NewScanner(m.source)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan lives in its own goroutine so the outer loop
	// can await lines and context cancellation together.
	go func() {
		defer close(lineChan)
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
			return err

		case line, ok := <-lineChan:
			if !ok {
				return scan.Err()
			}

			m.closingMu.Lock()
			if m.closing {
				m.closingMu.Unlock()
				return nil
			}
			m.closingMu.Unlock()

			var det btlocate.RawDetection
			if err := json.Unmarshal([]byte(line), &det); err != nil {
				monitoring.Logf("scan: skipping unparseable line: %v", err)
				continue
			}
			if det.Timestamp.IsZero() {
				det.Timestamp = time.Now()
			}
			m.record(det)
			m.broadcast(det)
		}
	}
}

func (m *Mux) record(det btlocate.RawDetection) {
	key := det.Address
	if key == "" {
		key = det.Identity
	}
	if key == "" {
		return
	}
	m.snapshotMu.Lock()
	m.latest[key] = det
	m.snapshotMu.Unlock()
}

func (m *Mux) broadcast(det btlocate.RawDetection) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- det:
		default:
			// Skip full channels so one slow subscriber cannot block the read loop.
		}
	}
}

// Close closes all subscriber channels and the underlying source.
func (m *Mux) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.subscriberMu.Unlock()

	return m.source.Close()
}
