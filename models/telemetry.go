package models

import "time"

// LegKind names one straight-line flight of a delivery.
type LegKind string

const (
	LegOutbound LegKind = "OUTBOUND"
	LegReturn   LegKind = "RETURN"
)

// TelemetrySample is one simulated or reported drone reading.
type TelemetrySample struct {
	DroneID        int64     `json:"drone_id"`
	OrderID        int64     `json:"order_id"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	BatteryPercent float64   `json:"battery_percent"`
	SpeedKmh       float64   `json:"speed_kmh"`
	RemainingKm    float64   `json:"remaining_km"`
	Leg            LegKind   `json:"leg"`
	Terminal       bool      `json:"terminal,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Position returns the sample's coordinates.
func (s TelemetrySample) Position() Coordinates {
	return Coordinates{Lat: s.Lat, Lng: s.Lng}
}
