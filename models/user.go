package models

// User is an account known to the coordinator.
// It maps to the `users` table in SQLite. RestaurantID is set for restaurant staff only.
type User struct {
	ID           int64  `db:"id" json:"id"`
	Username     string `db:"username" json:"username"`
	Role         Role   `db:"role" json:"role"`
	RestaurantID string `db:"restaurant_id" json:"restaurant_id,omitempty"`
}

// Restaurant is the ownership and home-location record for a fleet.
type Restaurant struct {
	ID       string      `db:"id" json:"id"`
	Name     string      `db:"name" json:"name"`
	Owner    string      `db:"owner" json:"owner"`
	Location Coordinates `json:"location"`
}
