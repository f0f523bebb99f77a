package models

import "time"

// DeliveryPhase is the correlator's view of a delivery in flight.
type DeliveryPhase string

const (
	DeliveryPhaseOutbound             DeliveryPhase = "OUTBOUND"
	DeliveryPhaseAwaitingConfirmation DeliveryPhase = "AWAITING_CONFIRMATION"
	DeliveryPhaseReturning            DeliveryPhase = "RETURNING"
	DeliveryPhaseCompleted            DeliveryPhase = "COMPLETED"
)

// Open reports whether the delivery still holds its drone.
func (p DeliveryPhase) Open() bool {
	return p != "" && p != DeliveryPhaseCompleted
}

// Delivery links one order to one drone for one outbound and return trip.
type Delivery struct {
	ID                   int64         `db:"id" json:"id"`
	OrderID              int64         `db:"order_id" json:"order_id"`
	DroneID              int64         `db:"drone_id" json:"drone_id"`
	RestaurantID         string        `db:"restaurant_id" json:"restaurant_id"`
	CustomerID           string        `db:"customer_id" json:"customer_id,omitempty"`
	Origin               Coordinates   `json:"origin"`
	Destination          Coordinates   `json:"destination"`
	DestinationAddress   string        `db:"destination_address" json:"destination_address,omitempty"`
	EstimatedDistanceKm  float64       `db:"estimated_distance_km" json:"estimated_distance_km"`
	EstimatedDurationMin int           `db:"estimated_duration_min" json:"estimated_duration_min"`
	Phase                DeliveryPhase `db:"phase" json:"phase"`
	ActualDistanceKm     float64       `db:"actual_distance_km" json:"actual_distance_km"`
	BatteryStart         float64       `db:"battery_start" json:"battery_start"`
	BatteryEnd           *float64      `db:"battery_end" json:"battery_end,omitempty"`
	PendingOrderStatus   OrderStatus   `db:"pending_order_status" json:"pending_order_status,omitempty"`
	StartedAt            time.Time     `db:"started_at" json:"started_at"`
	ArrivedAt            *time.Time    `db:"arrived_at" json:"arrived_at,omitempty"`
	ConfirmedAt          *time.Time    `db:"confirmed_at" json:"confirmed_at,omitempty"`
	EndedAt              *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
	EscalatedAt          *time.Time    `db:"escalated_at" json:"escalated_at,omitempty"`
}

// BatteryConsumed is the charge used over the whole delivery, once closed.
func (d *Delivery) BatteryConsumed() float64 {
	if d.BatteryEnd == nil {
		return 0
	}
	return d.BatteryStart - *d.BatteryEnd
}

// RoutePoint is one recorded position of a delivery's flown path.
type RoutePoint struct {
	Seq            int64     `db:"seq" json:"seq"`
	Leg            LegKind   `db:"leg" json:"leg"`
	Lat            float64   `db:"lat" json:"lat"`
	Lng            float64   `db:"lng" json:"lng"`
	BatteryPercent float64   `db:"battery_percent" json:"battery_percent"`
	SpeedKmh       float64   `db:"speed_kmh" json:"speed_kmh"`
	RecordedAt     time.Time `db:"recorded_at" json:"recorded_at"`
}
