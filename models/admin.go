package models

// NewAdmin creates an admin user model with Role preset to "admin".
func NewAdmin(username string) *User {
	return &User{Username: username, Role: RoleAdmin}
}

// NewRestaurantUser creates a restaurant staff user bound to a restaurant.
func NewRestaurantUser(username, restaurantID string) *User {
	return &User{Username: username, Role: RoleRestaurant, RestaurantID: restaurantID}
}
