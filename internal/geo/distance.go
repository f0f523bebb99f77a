package geo

import (
	"math"

	"droneDeliveryCoordinator/models"
)

const (
	// EarthRadiusKm is Earth's mean radius in kilometres for Haversine calculation.
	EarthRadiusKm = 6371.0
	degToRad      = math.Pi / 180
)

// HaversineKm calculates the great-circle distance between two points
// on Earth in kilometres using the Haversine formula.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// Distance is HaversineKm over coordinates.
func Distance(a, b models.Coordinates) float64 {
	return HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// IsWithinKm checks if two coordinates are within the given radius in kilometres.
func IsWithinKm(a, b models.Coordinates, radiusKm float64) bool {
	return Distance(a, b) <= radiusKm
}

// StepToward moves from a toward b by fraction of the remaining lat/lng vector.
// This is a straight line in degree space, not a great-circle interpolation.
func StepToward(a, b models.Coordinates, fraction float64) models.Coordinates {
	return models.Coordinates{
		Lat: a.Lat + (b.Lat-a.Lat)*fraction,
		Lng: a.Lng + (b.Lng-a.Lng)*fraction,
	}
}

// PathLength sums the great-circle lengths of consecutive segments.
func PathLength(points []models.Coordinates) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}
