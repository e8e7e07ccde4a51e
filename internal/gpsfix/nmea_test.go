package gpsfix

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

// withChecksum appends the correct NMEA checksum to a bare sentence body.
func withChecksum(body string) string {
	return fmt.Sprintf("$%s*%02X", body, nmeaChecksum(body))
}

func TestParseCoordinate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		coord     string
		direction string
		want      float64
		ok        bool
	}{
		{"4807.038", "N", 48.1173, true},
		{"4807.038", "S", -48.1173, true},
		{"01131.000", "E", 11.516667, true},
		{"01131.000", "W", -11.516667, true},
		{"", "N", 0, false},
		{"4807.038", "", 0, false},
		{"garbage", "N", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.coord+tt.direction, func(t *testing.T) {
			got, ok := parseCoordinate(tt.coord, tt.direction)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.InDelta(t, tt.want, got, 0.0001)
			}
		})
	}
}

func TestParseGGASentence(t *testing.T) {
	t.Parallel()

	pos, ok := ParseSentence("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47", testNow)
	require.True(t, ok)
	assert.InDelta(t, 48.1173, pos.Lat, 0.0001)
	assert.InDelta(t, 11.516667, pos.Lon, 0.0001)
	assert.Equal(t, 1, pos.FixQuality)
	require.NotNil(t, pos.Satellites)
	assert.Equal(t, 8, *pos.Satellites)
	require.NotNil(t, pos.AltitudeM)
	assert.InDelta(t, 545.4, *pos.AltitudeM, 0.001)
	require.NotNil(t, pos.Timestamp)
	assert.Equal(t, time.Date(2026, 8, 20, 12, 35, 19, 0, time.UTC), *pos.Timestamp)
}

func TestParseGGARejectsNoFix(t *testing.T) {
	t.Parallel()

	_, ok := ParseSentence(withChecksum("GPGGA,123519,4807.038,N,01131.000,E,0,00,,,M,,M,,"), testNow)
	assert.False(t, ok)
}

func TestParseRMCSentence(t *testing.T) {
	t.Parallel()

	pos, ok := ParseSentence("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A", testNow)
	require.True(t, ok)
	assert.InDelta(t, 48.1173, pos.Lat, 0.0001)
	assert.InDelta(t, 11.516667, pos.Lon, 0.0001)
	require.NotNil(t, pos.SpeedKnots)
	assert.InDelta(t, 22.4, *pos.SpeedKnots, 0.001)
	require.NotNil(t, pos.HeadingDeg)
	assert.InDelta(t, 84.4, *pos.HeadingDeg, 0.001)
	require.NotNil(t, pos.Timestamp)
	assert.Equal(t, time.Date(1994, 3, 23, 12, 35, 19, 0, time.UTC), *pos.Timestamp)
}

func TestParseRMCRejectsVoidStatus(t *testing.T) {
	t.Parallel()

	_, ok := ParseSentence(withChecksum("GPRMC,123519,V,4807.038,N,01131.000,E,,,230394,,"), testNow)
	assert.False(t, ok)
}

func TestParseSentenceChecksum(t *testing.T) {
	t.Parallel()

	t.Run("corrupt checksum is rejected", func(t *testing.T) {
		_, ok := ParseSentence("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*00", testNow)
		assert.False(t, ok)
	})

	t.Run("missing checksum is tolerated", func(t *testing.T) {
		_, ok := ParseSentence("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,", testNow)
		assert.True(t, ok)
	})
}

func TestParseSentenceTalkerPrefixes(t *testing.T) {
	t.Parallel()

	for _, talker := range []string{"GP", "GN", "GL", "GA"} {
		t.Run(talker, func(t *testing.T) {
			body := talker + "GGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"
			_, ok := ParseSentence(withChecksum(body), testNow)
			assert.True(t, ok)
		})
	}
}

func TestParseSentenceIgnoresOtherTypes(t *testing.T) {
	t.Parallel()

	_, ok := ParseSentence(withChecksum("GPGSV,3,1,11,03,03,111,00,04,15,270,00"), testNow)
	assert.False(t, ok)
}
