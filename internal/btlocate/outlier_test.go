package btlocate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mitchross/intercept/internal/geo"
)

// offsetNorth returns a point roughly meters north of base. One degree of
// latitude is ~111195 m everywhere.
func offsetNorth(base geo.Point, meters float64) geo.Point {
	return geo.Point{Lat: base.Lat + meters/111195.0, Lon: base.Lon}
}

func positionedDetection(p geo.Point, at time.Time) *Detection {
	return &Detection{Timestamp: at, Lat: &p.Lat, Lon: &p.Lon}
}

func TestOutlierFilter(t *testing.T) {
	t.Parallel()
	f := OutlierFilter{Params: DefaultParams()}
	base := geo.Point{Lat: 51.5007, Lon: -0.1246}
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	t.Run("first fix always accepted", func(t *testing.T) {
		assert.True(t, f.Accept(base, now, nil))
	})

	t.Run("position-less last fix always accepted", func(t *testing.T) {
		last := &Detection{Timestamp: now}
		assert.True(t, f.Accept(base, now.Add(time.Second), last))
	})

	t.Run("hard ceiling rejects regardless of elapsed time", func(t *testing.T) {
		last := positionedDetection(base, now)
		far := offsetNorth(base, 2500)
		assert.False(t, f.Accept(far, now.Add(24*time.Hour), last))
	})

	t.Run("teleport in one second rejected", func(t *testing.T) {
		last := positionedDetection(base, now)
		jump := offsetNorth(base, 1000)
		assert.False(t, f.Accept(jump, now.Add(time.Second), last))
	})

	t.Run("same displacement over an hour accepted", func(t *testing.T) {
		last := positionedDetection(base, now)
		jump := offsetNorth(base, 1000)
		assert.True(t, f.Accept(jump, now.Add(time.Hour), last))
	})

	t.Run("short hop at high speed tolerated under soft ceiling", func(t *testing.T) {
		last := positionedDetection(base, now)
		hop := offsetNorth(base, 400)
		assert.True(t, f.Accept(hop, now.Add(time.Second), last))
	})

	t.Run("missing timestamp falls back to soft ceiling", func(t *testing.T) {
		last := positionedDetection(base, now)
		near := offsetNorth(base, 300)
		far := offsetNorth(base, 600)
		assert.True(t, f.Accept(near, time.Time{}, last))
		assert.False(t, f.Accept(far, time.Time{}, last))
	})

	t.Run("out-of-order timestamp falls back to soft ceiling", func(t *testing.T) {
		last := positionedDetection(base, now)
		near := offsetNorth(base, 300)
		far := offsetNorth(base, 600)
		assert.True(t, f.Accept(near, now.Add(-time.Minute), last))
		assert.False(t, f.Accept(far, now.Add(-time.Minute), last))
	})
}
