package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	t.Parallel()

	t.Run("zero distance for identical points", func(t *testing.T) {
		t.Parallel()
		p := Point{Lat: 51.5007, Lon: -0.1246}
		assert.Zero(t, Distance(p, p))
	})

	t.Run("known landmark distance", func(t *testing.T) {
		t.Parallel()
		// Big Ben to the London Eye, roughly 330 m apart.
		bigBen := Point{Lat: 51.5007, Lon: -0.1246}
		londonEye := Point{Lat: 51.5033, Lon: -0.1196}
		d := Distance(bigBen, londonEye)
		assert.InDelta(t, 450, d, 120)
	})

	t.Run("symmetric", func(t *testing.T) {
		t.Parallel()
		a := Point{Lat: 40.7128, Lon: -74.0060}
		b := Point{Lat: 40.7130, Lon: -74.0100}
		assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		t.Parallel()
		a := Point{Lat: 0, Lon: 0}
		b := Point{Lat: 1, Lon: 0}
		// ~111.2 km per degree of latitude.
		assert.InDelta(t, 111195, Distance(a, b), 200)
	})
}

func TestPathLength(t *testing.T) {
	t.Parallel()

	t.Run("empty and single point paths are zero", func(t *testing.T) {
		t.Parallel()
		assert.Zero(t, PathLength(nil))
		assert.Zero(t, PathLength([]Point{{Lat: 1, Lon: 1}}))
	})

	t.Run("sums consecutive segments", func(t *testing.T) {
		t.Parallel()
		pts := []Point{
			{Lat: 0, Lon: 0},
			{Lat: 0, Lon: 0.001},
			{Lat: 0, Lon: 0.002},
		}
		total := PathLength(pts)
		segment := Distance(pts[0], pts[1])
		assert.InDelta(t, 2*segment, total, 1e-6)
	})
}
