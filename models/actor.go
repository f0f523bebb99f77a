package models

import (
	"strconv"
	"strings"
)

// Role identifies the kind of caller invoking an operation.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleRestaurant Role = "restaurant"
	RoleCustomer   Role = "customer"
	RoleDrone      Role = "drone"
	RoleSystem     Role = "system"
)

// ParseRole normalizes a role string. Unknown values yield "".
func ParseRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleRestaurant, RoleCustomer, RoleDrone, RoleSystem:
		return r
	}
	return ""
}

// Actor is the caller of an operation after server-side validation.
type Actor struct {
	Role         Role
	Subject      string
	RestaurantID string
}

// SystemActor is used by background jobs and the simulator.
var SystemActor = Actor{Role: RoleSystem, Subject: "coordinator"}

// Is reports whether the actor holds any of the given roles.
func (a Actor) Is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// Privileged reports whether the actor bypasses ownership checks.
func (a Actor) Privileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

// DroneActor is the caller behind a drone's own token. Drone tokens name the drone by id;
// names are chosen by restaurants and are not unique.
func DroneActor(droneID int64) Actor {
	return Actor{Role: RoleDrone, Subject: strconv.FormatInt(droneID, 10)}
}

// IsDrone reports whether the actor is the given drone.
func (a Actor) IsDrone(droneID int64) bool {
	return a.Role == RoleDrone && a.Subject == strconv.FormatInt(droneID, 10)
}
