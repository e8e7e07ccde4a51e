// Package gpsfix reads the observer's position from a serial NMEA GPS
// dongle, or from a manual override when no hardware is attached. The locate
// pipeline stamps detections with whatever position the active provider
// holds at ingest time.
package gpsfix

import (
	"strconv"
	"strings"
	"time"
)

// Position is one GPS fix. Optional NMEA fields stay nil when the sentence
// omits them.
type Position struct {
	Lat        float64    `json:"latitude"`
	Lon        float64    `json:"longitude"`
	AltitudeM  *float64   `json:"altitude,omitempty"`
	SpeedKnots *float64   `json:"speed,omitempty"`
	HeadingDeg *float64   `json:"heading,omitempty"`
	Satellites *int       `json:"satellites,omitempty"`
	FixQuality int        `json:"fix_quality"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// ParseSentence parses a GGA or RMC sentence (any talker prefix: GP, GN, GL,
// GA) into a position. It returns ok=false for other sentence types, fixless
// sentences, and corrupt input. A checksum is verified when present.
func ParseSentence(sentence string, now time.Time) (Position, bool) {
	sentence = strings.TrimSpace(sentence)

	if i := strings.LastIndex(sentence, "*"); i >= 0 {
		data, sum := sentence[:i], sentence[i+1:]
		data = strings.TrimPrefix(data, "$")
		want, err := strconv.ParseUint(strings.TrimSpace(sum), 16, 8)
		if err == nil && nmeaChecksum(data) != byte(want) {
			return Position{}, false
		}
		sentence = data
	} else {
		sentence = strings.TrimPrefix(sentence, "$")
	}

	parts := strings.Split(sentence, ",")
	if len(parts) == 0 {
		return Position{}, false
	}

	switch {
	case strings.HasSuffix(parts[0], "GGA"):
		return parseGGA(parts, now)
	case strings.HasSuffix(parts[0], "RMC"):
		return parseRMC(parts)
	}
	return Position{}, false
}

func nmeaChecksum(data string) byte {
	var sum byte
	for i := 0; i < len(data); i++ {
		sum ^= data[i]
	}
	return sum
}

// parseCoordinate converts NMEA DDMM.MMMM (or DDDMM.MMMM) plus a hemisphere
// letter into signed decimal degrees.
func parseCoordinate(coord, direction string) (float64, bool) {
	dot := strings.Index(coord, ".")
	if dot < 3 || direction == "" {
		return 0, false
	}

	degrees, err := strconv.Atoi(coord[:dot-2])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.ParseFloat(coord[dot-2:], 64)
	if err != nil {
		return 0, false
	}

	result := float64(degrees) + minutes/60.0
	if direction == "S" || direction == "W" {
		result = -result
	}
	return result, true
}

// parseGGA handles the fix-data sentence:
// $GPGGA,time,lat,N/S,lon,E/W,quality,satellites,hdop,altitude,M,...
func parseGGA(parts []string, now time.Time) (Position, bool) {
	if len(parts) < 10 {
		return Position{}, false
	}

	quality, err := strconv.Atoi(parts[6])
	if err != nil || quality == 0 {
		return Position{}, false
	}

	lat, latOK := parseCoordinate(parts[2], parts[3])
	lon, lonOK := parseCoordinate(parts[4], parts[5])
	if !latOK || !lonOK {
		return Position{}, false
	}

	pos := Position{Lat: lat, Lon: lon, FixQuality: quality}
	if sats, err := strconv.Atoi(parts[7]); err == nil {
		pos.Satellites = &sats
	}
	if alt, err := strconv.ParseFloat(parts[9], 64); err == nil {
		pos.AltitudeM = &alt
	}
	if ts, ok := parseClock(parts[1], now); ok {
		pos.Timestamp = &ts
	}
	return pos, true
}

// parseRMC handles the recommended-minimum sentence:
// $GPRMC,time,status,lat,N/S,lon,E/W,speed,heading,date,...
func parseRMC(parts []string) (Position, bool) {
	if len(parts) < 8 {
		return Position{}, false
	}
	if parts[2] != "A" {
		return Position{}, false
	}

	lat, latOK := parseCoordinate(parts[3], parts[4])
	lon, lonOK := parseCoordinate(parts[5], parts[6])
	if !latOK || !lonOK {
		return Position{}, false
	}

	// Status A means a valid fix.
	pos := Position{Lat: lat, Lon: lon, FixQuality: 1}
	if speed, err := strconv.ParseFloat(parts[7], 64); err == nil {
		pos.SpeedKnots = &speed
	}
	if len(parts) > 8 {
		if heading, err := strconv.ParseFloat(parts[8], 64); err == nil {
			pos.HeadingDeg = &heading
		}
	}
	if len(parts) > 9 {
		if ts, ok := parseClockAndDate(parts[1], parts[9]); ok {
			pos.Timestamp = &ts
		}
	}
	return pos, true
}

// parseClock parses an NMEA HHMMSS.sss time of day onto today's UTC date.
func parseClock(raw string, now time.Time) (time.Time, bool) {
	hms, _, _ := strings.Cut(raw, ".")
	if len(hms) < 6 {
		return time.Time{}, false
	}
	h, err1 := strconv.Atoi(hms[0:2])
	m, err2 := strconv.Atoi(hms[2:4])
	s, err3 := strconv.Atoi(hms[4:6])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), h, m, s, 0, time.UTC), true
}

// parseClockAndDate parses the RMC HHMMSS.sss time plus DDMMYY date pair.
func parseClockAndDate(rawTime, rawDate string) (time.Time, bool) {
	hms, _, _ := strings.Cut(rawTime, ".")
	if len(hms) < 6 || len(rawDate) < 6 {
		return time.Time{}, false
	}
	h, err1 := strconv.Atoi(hms[0:2])
	m, err2 := strconv.Atoi(hms[2:4])
	s, err3 := strconv.Atoi(hms[4:6])
	day, err4 := strconv.Atoi(rawDate[0:2])
	month, err5 := strconv.Atoi(rawDate[2:4])
	year, err6 := strconv.Atoi(rawDate[4:6])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
		return time.Time{}, false
	}
	return time.Date(2000+year, time.Month(month), day, h, m, s, 0, time.UTC), true
}
