package scan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchross/intercept/internal/btlocate"
	"github.com/mitchross/intercept/internal/timeutil"
)

// fakeBackend is a hand-rolled Backend for driving the pump directly.
type fakeBackend struct {
	push chan btlocate.RawDetection
	snap []btlocate.RawDetection
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{push: make(chan btlocate.RawDetection, 16)}
}

func (f *fakeBackend) Subscribe() (string, chan btlocate.RawDetection) { return "fake", f.push }

func (f *fakeBackend) Unsubscribe(string) {}

func (f *fakeBackend) Snapshot() []btlocate.RawDetection { return f.snap }

func (f *fakeBackend) Run(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (f *fakeBackend) Close() error { close(f.push); return nil }

type fixedGPS struct{ lat, lon float64 }

func (g fixedGPS) Position() (float64, float64, bool) { return g.lat, g.lon, true }

func startedSession(t *testing.T, clock timeutil.Clock) *btlocate.Session {
	t.Helper()
	session := btlocate.NewSession(clock, btlocate.DefaultParams())
	_, err := session.Start(btlocate.TargetDescriptor{Address: "AA:BB:CC:DD:EE:FF"}, btlocate.EnvOutdoor, 0, btlocate.Hints{})
	require.NoError(t, err)
	return session
}

func waitForDetections(t *testing.T, session *btlocate.Session, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if session.LiveView().Detections >= want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d detections, have %d", want, session.LiveView().Detections)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func rawDetection(rssi int, at time.Time) btlocate.RawDetection {
	return btlocate.RawDetection{Address: "AA:BB:CC:DD:EE:FF", RSSI: &rssi, Timestamp: at}
}

func TestPumpPushPath(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))
	session := startedSession(t, clock)
	backend := newFakeBackend()
	pump := NewPump(backend, session, nil, clock, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pump.Run(ctx)

	backend.push <- rawDetection(-60, clock.Now())
	waitForDetections(t, session, 1)

	view := session.LiveView()
	assert.Equal(t, 1, view.Detections)
	assert.Zero(t, view.Positions, "no GPS provider means position-less detections")
}

func TestPumpPollPath(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))
	session := startedSession(t, clock)
	backend := newFakeBackend()
	backend.snap = []btlocate.RawDetection{rawDetection(-65, clock.Now())}
	pump := NewPump(backend, session, nil, clock, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pump.Run(ctx)

	// Let the pump subscribe and register its ticker before advancing.
	time.Sleep(20 * time.Millisecond)
	clock.Advance(time.Second)
	waitForDetections(t, session, 1)
}

func TestPumpDeduplicatesAcrossPaths(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))
	session := startedSession(t, clock)
	backend := newFakeBackend()
	det := rawDetection(-60, clock.Now())
	backend.snap = []btlocate.RawDetection{det}
	pump := NewPump(backend, session, nil, clock, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pump.Run(ctx)

	// Push delivers the event first, then the poll re-delivers it.
	backend.push <- det
	waitForDetections(t, session, 1)
	clock.Advance(time.Second)

	deadline := time.After(2 * time.Second)
	for session.LiveView().DuplicatesDropped == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the poll duplicate to be dropped")
		case <-time.After(5 * time.Millisecond):
		}
	}
	assert.Equal(t, 1, session.LiveView().Detections)
}

func TestPumpStampsGPSPosition(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewMockClock(time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))
	session := startedSession(t, clock)
	backend := newFakeBackend()
	pump := NewPump(backend, session, fixedGPS{lat: 51.5007, lon: -0.1246}, clock, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pump.Run(ctx)

	backend.push <- rawDetection(-60, clock.Now())
	waitForDetections(t, session, 1)

	view := session.LiveView()
	assert.Equal(t, 1, view.Positions)
	require.NotNil(t, view.Last)
	require.NotNil(t, view.Last.Lat)
	assert.InDelta(t, 51.5007, *view.Last.Lat, 1e-9)
}
