package btlocate

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportFixture() []Detection {
	start := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	ema := -60.5
	return []Detection{
		{
			Timestamp: start,
			RSSI:      intPtr(-60),
			RSSIEMA:   &ema,
			DistanceM: floatPtr(1.11),
			Band:      BandNear,
			Lat:       floatPtr(51.5007),
			Lon:       floatPtr(-0.1246),
		},
		{
			// Position-less detection, must be skipped by every format.
			Timestamp: start.Add(time.Second),
			RSSI:      intPtr(-61),
		},
		{
			Timestamp: start.Add(2 * time.Second),
			Lat:       floatPtr(51.5008),
			Lon:       floatPtr(-0.1247),
			Band:      BandUnknown,
		},
	}
}

func TestExportCSV(t *testing.T) {
	t.Parallel()

	out, err := ExportTrail(exportFixture(), FormatCSV)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus two positioned rows")

	assert.Equal(t, []string{"timestamp", "lat", "lon", "rssi", "rssi_ema", "estimated_distance", "proximity_band"}, records[0])
	assert.Equal(t, "2026-08-20T12:00:00Z", records[1][0])
	assert.Equal(t, "51.5007", records[1][1])
	assert.Equal(t, "-60", records[1][3])
	assert.Equal(t, "-60.5", records[1][4])
	assert.Equal(t, "1.11", records[1][5])
	assert.Equal(t, "near", records[1][6])

	// Missing RSSI and distance serialize as empty fields, never zero.
	assert.Equal(t, "", records[2][3])
	assert.Equal(t, "", records[2][5])
}

func TestExportGPX(t *testing.T) {
	t.Parallel()

	out, err := ExportTrail(exportFixture(), FormatGPX)
	require.NoError(t, err)

	var doc gpxDoc
	require.NoError(t, xml.Unmarshal(out, &doc))
	assert.Equal(t, "1.1", doc.Version)
	require.Len(t, doc.Track.Segment.Points, 2)

	first := doc.Track.Segment.Points[0]
	assert.InDelta(t, 51.5007, first.Lat, 1e-9)
	assert.InDelta(t, -0.1246, first.Lon, 1e-9)
	assert.Equal(t, "2026-08-20T12:00:00Z", first.Time)
	require.NotNil(t, first.Extensions)
	assert.Equal(t, -60, first.Extensions.RSSI)

	assert.Nil(t, doc.Track.Segment.Points[1].Extensions)
}

func TestExportKML(t *testing.T) {
	t.Parallel()

	out, err := ExportTrail(exportFixture(), FormatKML)
	require.NoError(t, err)

	var doc kmlDoc
	require.NoError(t, xml.Unmarshal(out, &doc))
	// One path placemark plus one per positioned detection.
	require.Len(t, doc.Doc.Placemarks, 3)

	path := doc.Doc.Placemarks[0]
	require.NotNil(t, path.LineString)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(path.LineString.Coordinates), "\n")+1)
	assert.Contains(t, path.LineString.Coordinates, "-0.1246,51.5007,0")

	pt := doc.Doc.Placemarks[1]
	require.NotNil(t, pt.Point)
	assert.Contains(t, pt.Description, "rssi -60")
}

func TestExportErrors(t *testing.T) {
	t.Parallel()

	t.Run("no positioned detections", func(t *testing.T) {
		points := []Detection{{Timestamp: time.Now(), RSSI: intPtr(-60)}}
		_, err := ExportTrail(points, FormatCSV)
		assert.ErrorIs(t, err, ErrNoPositions)
	})

	t.Run("empty trail", func(t *testing.T) {
		_, err := ExportTrail(nil, FormatGPX)
		assert.ErrorIs(t, err, ErrNoPositions)
	})

	t.Run("unknown format", func(t *testing.T) {
		points := exportFixture()
		_, err := ExportTrail(points, ExportFormat("pdf"))
		assert.Error(t, err)
	})
}

func TestExportFormatContentType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "text/csv", FormatCSV.ContentType())
	assert.Equal(t, "application/gpx+xml", FormatGPX.ContentType())
	assert.Equal(t, "application/vnd.google-earth.kml+xml", FormatKML.ContentType())
}
