package auth

import (
	"context"
	"fmt"

	"droneDeliveryCoordinator/models"
)

// UserLookup is the slice of the users repository the resolver needs.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// ResolveActor turns a token principal into a models.Actor. Admin and restaurant
// principals must exist in the users table with the same role, so a forged kind
// claim cannot escalate; a restaurant user's restaurant comes from its row.
// Drones and customers are identified by token name alone.
func ResolveActor(ctx context.Context, p *Principal, users UserLookup) (models.Actor, error) {
	if p == nil {
		return models.Actor{}, ErrUnauthenticated
	}
	role := models.ParseRole(p.Kind)
	switch role {
	case models.RoleDrone, models.RoleCustomer:
		return models.Actor{Role: role, Subject: p.Name}, nil
	case models.RoleAdmin, models.RoleRestaurant:
	default:
		return models.Actor{}, fmt.Errorf("%w: unknown principal kind %q", models.ErrPermissionDenied, p.Kind)
	}
	if users == nil {
		return models.Actor{}, fmt.Errorf("users repository not configured")
	}
	u, err := users.GetByUsername(ctx, p.Name)
	if err != nil {
		return models.Actor{}, fmt.Errorf("get user %s: %w", p.Name, err)
	}
	if u == nil || u.Role != role {
		return models.Actor{}, fmt.Errorf("%w: %s is not a %s", models.ErrPermissionDenied, p.Name, role)
	}
	if role == models.RoleRestaurant && u.RestaurantID == "" {
		return models.Actor{}, fmt.Errorf("%w: %s has no restaurant", models.ErrPermissionDenied, p.Name)
	}
	return models.Actor{Role: role, Subject: u.Username, RestaurantID: u.RestaurantID}, nil
}

// ActorFromContext resolves the principal stored by the interceptors or middleware.
func ActorFromContext(ctx context.Context, users UserLookup) (models.Actor, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return models.Actor{}, ErrUnauthenticated
	}
	return ResolveActor(ctx, p, users)
}
