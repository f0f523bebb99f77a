package models

// OrderStatus mirrors the order service's status vocabulary.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// Order is the coordinator's view of an order owned by the order service.
type Order struct {
	ID                 int64       `db:"id" json:"id"`
	RestaurantID       string      `db:"restaurant_id" json:"restaurant_id"`
	CustomerID         string      `db:"customer_id" json:"customer_id"`
	Status             OrderStatus `db:"status" json:"status"`
	Destination        Coordinates `json:"destination"`
	DestinationAddress string      `db:"destination_address" json:"destination_address"`
	PayloadKg          float64     `db:"payload_kg" json:"payload_kg"`
	UpdatedAt          string      `db:"updated_at" json:"updated_at,omitempty"`
}
