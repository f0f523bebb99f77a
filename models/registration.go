package models

import "time"

// RequestType distinguishes fleet change requests.
type RequestType string

const (
	RequestTypeRegisterNew RequestType = "REGISTER_NEW"
	RequestTypeDeleteDrone RequestType = "DELETE_DRONE"
)

// RequestStatus is the lifecycle of a registration request. APPROVED and REJECTED are terminal.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusApproved RequestStatus = "APPROVED"
	RequestStatusRejected RequestStatus = "REJECTED"
)

// RegistrationRequest is a restaurant-submitted fleet change awaiting an admin decision.
type RegistrationRequest struct {
	ID             int64         `db:"id" json:"id"`
	RestaurantID   string        `db:"restaurant_id" json:"restaurant_id"`
	RestaurantName string        `db:"restaurant_name" json:"restaurant_name"`
	Type           RequestType   `db:"request_type" json:"request_type"`
	Status         RequestStatus `db:"status" json:"status"`
	// REGISTER_NEW payload.
	DroneName    string       `db:"drone_name" json:"drone_name,omitempty"`
	DroneModel   string       `db:"drone_model" json:"drone_model,omitempty"`
	MaxPayloadKg float64      `db:"max_payload_kg" json:"max_payload_kg,omitempty"`
	MaxSpeedKmh  float64      `db:"max_speed_kmh" json:"max_speed_kmh,omitempty"`
	Home         *Coordinates `json:"home,omitempty"`
	// DELETE_DRONE target; for REGISTER_NEW it holds the created drone once approved.
	DroneID    *int64     `db:"drone_id" json:"drone_id,omitempty"`
	Reason     string     `db:"reason" json:"reason,omitempty"`
	AdminID    string     `db:"admin_id" json:"admin_id,omitempty"`
	AdminNote  string     `db:"admin_note" json:"admin_note,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Resolved reports whether the request reached a terminal status.
func (r *RegistrationRequest) Resolved() bool {
	return r.Status == RequestStatusApproved || r.Status == RequestStatusRejected
}
