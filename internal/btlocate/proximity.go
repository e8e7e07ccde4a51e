package btlocate

// Proximity breakpoints. Distance thresholds are preferred; the RSSI pair is
// the fallback used when no distance estimate exists.
const (
	immediateDistanceM = 1.0
	nearDistanceM      = 5.0
	immediateRSSI      = -50
	nearRSSI           = -70
)

// ClassifyProximity maps a distance estimate (preferred) or raw RSSI
// (fallback) onto the advisory proximity band. With neither input the band
// is unknown.
func ClassifyProximity(distanceM *float64, rssi *int) Band {
	if distanceM != nil {
		switch {
		case *distanceM <= immediateDistanceM:
			return BandImmediate
		case *distanceM < nearDistanceM:
			return BandNear
		default:
			return BandFar
		}
	}
	if rssi != nil {
		switch {
		case *rssi >= immediateRSSI:
			return BandImmediate
		case *rssi >= nearRSSI:
			return BandNear
		default:
			return BandFar
		}
	}
	return BandUnknown
}
