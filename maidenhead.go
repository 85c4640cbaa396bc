package main

import (
	"fmt"
	"math"
	"strings"
)

// MaidenheadToLatLon converts a 4- or 6-character Maidenhead locator to the
// latitude/longitude of its grid-square center.
func MaidenheadToLatLon(locator string) (lat, lon float64, err error) {
	locator = strings.ToUpper(locator)
	if len(locator) != 4 && len(locator) != 6 {
		return 0, 0, fmt.Errorf("invalid Maidenhead locator length: %d (must be 4 or 6)", len(locator))
	}
	if locator[0] < 'A' || locator[0] > 'R' || locator[1] < 'A' || locator[1] > 'R' {
		return 0, 0, fmt.Errorf("invalid field characters (must be A-R)")
	}
	if locator[2] < '0' || locator[2] > '9' || locator[3] < '0' || locator[3] > '9' {
		return 0, 0, fmt.Errorf("invalid square characters (must be 0-9)")
	}
	if len(locator) == 6 {
		if locator[4] < 'A' || locator[4] > 'X' || locator[5] < 'A' || locator[5] > 'X' {
			return 0, 0, fmt.Errorf("invalid subsquare characters (must be A-X)")
		}
	}

	// Field (first 2 characters): 20° longitude × 10° latitude
	lon = float64(locator[0]-'A') * 20.0
	lat = float64(locator[1]-'A') * 10.0

	// Square (characters 3-4): 2° longitude × 1° latitude
	lon += float64(locator[2]-'0') * 2.0
	lat += float64(locator[3]-'0') * 1.0

	// Subsquare (characters 5-6): 5' longitude × 2.5' latitude
	if len(locator) == 6 {
		lon += float64(locator[4]-'A') * (2.0 / 24.0)
		lat += float64(locator[5]-'A') * (1.0 / 24.0)
		lon += 2.0 / 48.0
		lat += 1.0 / 48.0
	} else {
		lon += 1.0
		lat += 0.5
	}

	return lat - 90.0, lon - 180.0, nil
}

// IsValidMaidenheadLocator checks if a string is a valid Maidenhead locator.
func IsValidMaidenheadLocator(locator string) bool {
	_, _, err := MaidenheadToLatLon(locator)
	return err == nil
}

// CalculateDistanceAndBearing calculates the great circle distance (in km)
// and initial bearing (in degrees) between two points using the Haversine
// formula.
func CalculateDistanceAndBearing(lat1, lon1, lat2, lon2 float64) (distanceKm float64, bearingDeg float64) {
	const earthRadiusKm = 6371.0

	lat1Rad := lat1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	dLat := (lat2 - lat1) * math.Pi / 180.0
	dLon := (lon2 - lon1) * math.Pi / 180.0

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	distanceKm = earthRadiusKm * c

	y := math.Sin(dLon) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) -
		math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(dLon)
	bearingDeg = math.Atan2(y, x) * 180.0 / math.Pi
	if bearingDeg < 0 {
		bearingDeg += 360.0
	}

	return distanceKm, bearingDeg
}

// DistanceAndBearingFromLocators calculates distance and bearing between two
// Maidenhead locators.
func DistanceAndBearingFromLocators(from, to string) (distanceKm float64, bearingDeg float64, err error) {
	lat1, lon1, err := MaidenheadToLatLon(from)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid source locator: %w", err)
	}
	lat2, lon2, err := MaidenheadToLatLon(to)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid destination locator: %w", err)
	}
	distanceKm, bearingDeg = CalculateDistanceAndBearing(lat1, lon1, lat2, lon2)
	return distanceKm, bearingDeg, nil
}
