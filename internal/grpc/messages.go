package grpcserver

import (
	"droneDeliveryCoordinator/internal/telemetry"
	"droneDeliveryCoordinator/models"
)

// Wire messages of fleet.v1 and delivery.v1. They travel as JSON.

type Empty struct{}

type DroneRequest struct {
	DroneID int64 `json:"drone_id"`
}

type ListDronesRequest struct {
	RestaurantID  string  `json:"restaurant_id"`
	AvailableOnly bool    `json:"available_only,omitempty"`
	MinBattery    float64 `json:"min_battery,omitempty"`
}

type ListAllDronesRequest struct {
	Statuses        []models.DroneStatus `json:"statuses,omitempty"`
	RestaurantID    string               `json:"restaurant_id,omitempty"`
	IncludeInactive bool                 `json:"include_inactive,omitempty"`
	PageSize        int                  `json:"page_size,omitempty"`
	AfterID         int64                `json:"after_id,omitempty"`
}

type ListDronesResponse struct {
	Drones      []models.Drone `json:"drones"`
	NextAfterID int64          `json:"next_after_id,omitempty"`
}

type SubmitRegistrationRequest struct {
	Name         string              `json:"name"`
	Model        string              `json:"model"`
	MaxPayloadKg float64             `json:"max_payload_kg"`
	MaxSpeedKmh  float64             `json:"max_speed_kmh"`
	Home         *models.Coordinates `json:"home,omitempty"`
	Reason       string              `json:"reason,omitempty"`
}

type SubmitDeletionRequest struct {
	DroneID int64  `json:"drone_id"`
	Reason  string `json:"reason,omitempty"`
}

type ListRequestsRequest struct {
	Mine   bool                 `json:"mine,omitempty"`
	Status models.RequestStatus `json:"status,omitempty"`
}

type ListRequestsResponse struct {
	Requests []models.RegistrationRequest `json:"requests"`
}

type RequestIDRequest struct {
	RequestID int64 `json:"request_id"`
}

type ResolveRequest struct {
	RequestID int64  `json:"request_id"`
	Note      string `json:"note,omitempty"`
}

type ShipOrderRequest struct {
	OrderID   int64   `json:"order_id"`
	DroneID   int64   `json:"drone_id"`
	PayloadKg float64 `json:"payload_kg,omitempty"`
}

// ShipOrderResponse carries Warning when the delivery started but the order service
// could not be told; the update is retried in the background.
type ShipOrderResponse struct {
	Delivery             *models.Delivery `json:"delivery"`
	EstimatedDistanceKm  float64          `json:"estimated_distance_km"`
	EstimatedDurationMin int              `json:"estimated_duration_min"`
	Warning              string           `json:"warning,omitempty"`
}

type OrderRequest struct {
	OrderID int64 `json:"order_id"`
}

type TelemetryRequest struct {
	Sample models.TelemetrySample `json:"sample"`
}

type DeliveryLogResponse struct {
	Delivery *models.Delivery    `json:"delivery"`
	Route    []models.RoutePoint `json:"route"`
}

// SubscribeRequest selects exactly one topic.
type SubscribeRequest struct {
	DroneID int64 `json:"drone_id,omitempty"`
	OrderID int64 `json:"order_id,omitempty"`
}

// TelemetryMessage is streamed by Subscribe.
type TelemetryMessage = telemetry.Message

type DroneResponse struct {
	Drone *models.Drone `json:"drone"`
}

type RequestResponse struct {
	Request *models.RegistrationRequest `json:"request"`
}

type DeliveryResponse struct {
	Delivery *models.Delivery `json:"delivery"`
}
