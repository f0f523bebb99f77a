package grpcserver

import (
	"context"

	"droneDeliveryCoordinator/internal/auth"
	"droneDeliveryCoordinator/internal/fleet"
	"droneDeliveryCoordinator/internal/registration"
	"droneDeliveryCoordinator/models"
	"droneDeliveryCoordinator/repository"
)

// FleetServer implements FleetService: drone lookups, maintenance and the
// registration approval workflow.
type FleetServer struct {
	Users    *repository.UserRepository
	Registry *fleet.Registry
	Workflow *registration.Workflow
}

func (s *FleetServer) actor(ctx context.Context) (models.Actor, error) {
	a, err := auth.ActorFromContext(ctx, s.Users)
	return a, toStatus(err)
}

// GetDrone returns a drone the caller may see.
func (s *FleetServer) GetDrone(ctx context.Context, req *DroneRequest) (*DroneResponse, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	d, err := s.Registry.GetFor(ctx, a, req.DroneID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DroneResponse{Drone: d}, nil
}

// ListDrones lists a restaurant's active fleet, or only the drones able to take an
// order now. Restaurant callers default to their own restaurant.
func (s *FleetServer) ListDrones(ctx context.Context, req *ListDronesRequest) (*ListDronesResponse, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	restaurantID := req.RestaurantID
	if restaurantID == "" {
		restaurantID = a.RestaurantID
	}
	var drones []models.Drone
	if req.AvailableOnly {
		drones, err = s.Registry.ListAvailable(ctx, a, restaurantID, req.MinBattery)
	} else {
		drones, err = s.Registry.ListByRestaurant(ctx, a, restaurantID)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListDronesResponse{Drones: drones}, nil
}

// ListAllDrones is the admin fleet view with keyset pagination.
func (s *FleetServer) ListAllDrones(ctx context.Context, req *ListAllDronesRequest) (*ListDronesResponse, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	drones, err := s.Registry.ListAll(ctx, a, repository.ListDronesAdminParams{
		Statuses:        req.Statuses,
		RestaurantID:    req.RestaurantID,
		IncludeInactive: req.IncludeInactive,
		PageSize:        req.PageSize,
		AfterID:         req.AfterID,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ListDronesResponse{Drones: drones}
	if n := len(drones); n > 0 && (req.PageSize <= 0 || n == req.PageSize) {
		resp.NextAfterID = drones[n-1].ID
	}
	return resp, nil
}

func (s *FleetServer) SetMaintenance(ctx context.Context, req *DroneRequest) (*DroneResponse, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	d, err := s.Registry.SetMaintenance(ctx, a, req.DroneID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DroneResponse{Drone: d}, nil
}

func (s *FleetServer) ClearMaintenance(ctx context.Context, req *DroneRequest) (*DroneResponse, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	d, err := s.Registry.ClearMaintenance(ctx, a, req.DroneID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DroneResponse{Drone: d}, nil
}

// SubmitRegistration queues a new drone for admin approval.
func (s *FleetServer) SubmitRegistration(ctx context.Context, req *SubmitRegistrationRequest) (*RequestResponse, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.Workflow.SubmitRegistration(ctx, a, registration.RegistrationInput{
		Name:         req.Name,
		Model:        req.Model,
		MaxPayloadKg: req.MaxPayloadKg,
		MaxSpeedKmh:  req.MaxSpeedKmh,
		Home:         req.Home,
		Reason:       req.Reason,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &RequestResponse{Request: r}, nil
}

// SubmitDeletion queues the retirement of one of the caller's drones.
func (s *FleetServer) SubmitDeletion(ctx context.Context, req *SubmitDeletionRequest) (*RequestResponse, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.Workflow.SubmitDeletion(ctx, a, req.DroneID, req.Reason)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RequestResponse{Request: r}, nil
}

// ListRequests returns the caller's own requests when Mine is set (restaurants),
// otherwise all requests filtered by status (admins).
func (s *FleetServer) ListRequests(ctx context.Context, req *ListRequestsRequest) (*ListRequestsResponse, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	var reqs []models.RegistrationRequest
	if req.Mine || a.Role == models.RoleRestaurant {
		reqs, err = s.Workflow.ListMine(ctx, a)
	} else {
		reqs, err = s.Workflow.List(ctx, a, req.Status)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListRequestsResponse{Requests: reqs}, nil
}

func (s *FleetServer) GetRequest(ctx context.Context, req *RequestIDRequest) (*RequestResponse, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.Workflow.Get(ctx, a, req.RequestID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RequestResponse{Request: r}, nil
}

func (s *FleetServer) ApproveRequest(ctx context.Context, req *ResolveRequest) (*RequestResponse, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.Workflow.Approve(ctx, a, req.RequestID, req.Note)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RequestResponse{Request: r}, nil
}

func (s *FleetServer) RejectRequest(ctx context.Context, req *ResolveRequest) (*RequestResponse, error) {
	a, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.Workflow.Reject(ctx, a, req.RequestID, req.Note)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RequestResponse{Request: r}, nil
}
