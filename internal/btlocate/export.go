package btlocate

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrNoPositions is returned when an export is requested and the trail has
// no positioned detections to write.
var ErrNoPositions = errors.New("trail has no positioned detections")

// ExportFormat names a trail export encoding.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatGPX ExportFormat = "gpx"
	FormatKML ExportFormat = "kml"
)

// ContentType returns the MIME type served for the format.
func (f ExportFormat) ContentType() string {
	switch f {
	case FormatGPX:
		return "application/gpx+xml"
	case FormatKML:
		return "application/vnd.google-earth.kml+xml"
	default:
		return "text/csv"
	}
}

// ExportTrail encodes the positioned detections of a trail in the requested
// format. Position-less detections are skipped; if none remain it returns
// ErrNoPositions.
func ExportTrail(points []Detection, format ExportFormat) ([]byte, error) {
	var positioned []Detection
	for _, d := range points {
		if d.HasPosition() {
			positioned = append(positioned, d)
		}
	}
	if len(positioned) == 0 {
		return nil, ErrNoPositions
	}

	switch format {
	case FormatCSV:
		return exportCSV(positioned)
	case FormatGPX:
		return exportGPX(positioned)
	case FormatKML:
		return exportKML(positioned)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

func exportCSV(points []Detection) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"timestamp", "lat", "lon", "rssi", "rssi_ema", "estimated_distance", "proximity_band"}); err != nil {
		return nil, err
	}
	for _, d := range points {
		row := []string{
			d.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(*d.Lat, 'f', -1, 64),
			strconv.FormatFloat(*d.Lon, 'f', -1, 64),
			optInt(d.RSSI),
			optFloat(d.RSSIEMA, 1),
			optFloat(d.DistanceM, 2),
			string(d.Band),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GPX 1.1 track document. RSSI rides in the trackpoint extensions so the
// file stays loadable by stock GPX viewers.
type gpxDoc struct {
	XMLName xml.Name `xml:"gpx"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`
	Xmlns   string   `xml:"xmlns,attr"`
	Track   gpxTrack `xml:"trk"`
}

type gpxTrack struct {
	Name    string     `xml:"name"`
	Segment gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat        float64  `xml:"lat,attr"`
	Lon        float64  `xml:"lon,attr"`
	Time       string   `xml:"time,omitempty"`
	Extensions *gpxExts `xml:"extensions,omitempty"`
}

type gpxExts struct {
	RSSI int `xml:"rssi"`
}

func exportGPX(points []Detection) ([]byte, error) {
	doc := gpxDoc{
		Version: "1.1",
		Creator: "intercept",
		Xmlns:   "http://www.topografix.com/GPX/1/1",
		Track:   gpxTrack{Name: "locate trail"},
	}
	for _, d := range points {
		pt := gpxPoint{Lat: *d.Lat, Lon: *d.Lon}
		if !d.Timestamp.IsZero() {
			pt.Time = d.Timestamp.UTC().Format(time.RFC3339)
		}
		if d.RSSI != nil {
			pt.Extensions = &gpxExts{RSSI: *d.RSSI}
		}
		doc.Track.Segment.Points = append(doc.Track.Segment.Points, pt)
	}
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// KML document: one LineString placemark for the walked path plus a point
// placemark per detection so Google Earth shows per-sample detail.
type kmlDoc struct {
	XMLName xml.Name    `xml:"kml"`
	Xmlns   string      `xml:"xmlns,attr"`
	Doc     kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Name       string         `xml:"name"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name        string         `xml:"name"`
	Description string         `xml:"description,omitempty"`
	LineString  *kmlLineString `xml:"LineString,omitempty"`
	Point       *kmlPoint      `xml:"Point,omitempty"`
}

type kmlLineString struct {
	Tessellate  int    `xml:"tessellate"`
	Coordinates string `xml:"coordinates"`
}

type kmlPoint struct {
	Coordinates string `xml:"coordinates"`
}

func exportKML(points []Detection) ([]byte, error) {
	var coords bytes.Buffer
	for _, d := range points {
		fmt.Fprintf(&coords, "%s,%s,0\n",
			strconv.FormatFloat(*d.Lon, 'f', -1, 64),
			strconv.FormatFloat(*d.Lat, 'f', -1, 64))
	}

	doc := kmlDoc{
		Xmlns: "http://www.opengis.net/kml/2.2",
		Doc: kmlDocument{
			Name: "locate trail",
			Placemarks: []kmlPlacemark{{
				Name:       "path",
				LineString: &kmlLineString{Tessellate: 1, Coordinates: coords.String()},
			}},
		},
	}
	for i, d := range points {
		desc := "rssi " + optInt(d.RSSI)
		if !d.Timestamp.IsZero() {
			desc += " at " + d.Timestamp.UTC().Format(time.RFC3339)
		}
		doc.Doc.Placemarks = append(doc.Doc.Placemarks, kmlPlacemark{
			Name:        fmt.Sprintf("detection %d", i+1),
			Description: desc,
			Point: &kmlPoint{Coordinates: fmt.Sprintf("%s,%s,0",
				strconv.FormatFloat(*d.Lon, 'f', -1, 64),
				strconv.FormatFloat(*d.Lat, 'f', -1, 64))},
		})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optFloat(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}
