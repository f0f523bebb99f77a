package models

import "time"

// DroneStatus represents where a drone is in its delivery cycle.
type DroneStatus string

const (
	DroneStatusIdle        DroneStatus = "IDLE"
	DroneStatusDelivering  DroneStatus = "DELIVERING"
	DroneStatusArrived     DroneStatus = "ARRIVED"
	DroneStatusReturning   DroneStatus = "RETURNING"
	DroneStatusMaintenance DroneStatus = "MAINTENANCE"
)

// Valid reports whether s is a known drone status.
func (s DroneStatus) Valid() bool {
	switch s {
	case DroneStatusIdle, DroneStatusDelivering, DroneStatusArrived, DroneStatusReturning, DroneStatusMaintenance:
		return true
	}
	return false
}

// HasOrder reports whether a drone in this status must carry an assigned order.
func (s DroneStatus) HasOrder() bool {
	return s == DroneStatusDelivering || s == DroneStatusArrived || s == DroneStatusReturning
}

const (
	DefaultMaxPayloadKg = 2.0
	DefaultMaxSpeedKmh  = 30.0
	FullBattery         = 100.0
)

// Coordinates is a point in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within latitude/longitude bounds.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Drone represents a delivery drone owned by a restaurant.
// assigned_order_id is non-null exactly while the drone is DELIVERING, ARRIVED or RETURNING.
type Drone struct {
	ID              int64        `db:"id" json:"id"`
	RestaurantID    string       `db:"restaurant_id" json:"restaurant_id"`
	Name            string       `db:"name" json:"name"`
	Model           string       `db:"model" json:"model"`
	Status          DroneStatus  `db:"status" json:"status"`
	BatteryPercent  float64      `db:"battery_percent" json:"battery_percent"`
	Current         *Coordinates `json:"current,omitempty"`
	Home            Coordinates  `json:"home"`
	MaxPayloadKg    float64      `db:"max_payload_kg" json:"max_payload_kg"`
	MaxSpeedKmh     float64      `db:"max_speed_kmh" json:"max_speed_kmh"`
	TotalDeliveries int          `db:"total_deliveries" json:"total_deliveries"`
	Active          bool         `db:"active" json:"active"`
	AssignedOrderID *int64       `db:"assigned_order_id" json:"assigned_order_id,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// Position returns the current coordinates, falling back to home.
func (d *Drone) Position() Coordinates {
	if d.Current != nil {
		return *d.Current
	}
	return d.Home
}
