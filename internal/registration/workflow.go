// Package registration gates fleet changes behind admin approval.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"droneDeliveryCoordinator/internal/fleet"
	"droneDeliveryCoordinator/models"
	"droneDeliveryCoordinator/repository"
)

// RestaurantDirectory resolves restaurant names and home locations.
type RestaurantDirectory interface {
	Restaurant(ctx context.Context, id string) (*models.Restaurant, error)
}

type Workflow struct {
	store       *repository.Store
	registry    *fleet.Registry
	restaurants RestaurantDirectory
	log         *logrus.Entry
}

func New(store *repository.Store, registry *fleet.Registry, restaurants RestaurantDirectory, log *logrus.Entry) *Workflow {
	return &Workflow{store: store, registry: registry, restaurants: restaurants, log: log}
}

// RegistrationInput is the REGISTER_NEW payload. Home defaults to the restaurant's location.
type RegistrationInput struct {
	Name         string
	Model        string
	MaxPayloadKg float64
	MaxSpeedKmh  float64
	Home         *models.Coordinates
	Reason       string
}

func requireRestaurant(actor models.Actor) error {
	if actor.Role != models.RoleRestaurant || actor.RestaurantID == "" {
		return fmt.Errorf("%w: only restaurants can submit fleet requests", models.ErrPermissionDenied)
	}
	return nil
}

func requireAdmin(actor models.Actor) error {
	if actor.Role != models.RoleAdmin {
		return fmt.Errorf("%w: only admin can review fleet requests", models.ErrPermissionDenied)
	}
	return nil
}

// SubmitRegistration queues a new drone for approval.
func (w *Workflow) SubmitRegistration(ctx context.Context, actor models.Actor, in RegistrationInput) (*models.RegistrationRequest, error) {
	if err := requireRestaurant(actor); err != nil {
		return nil, err
	}
	switch {
	case strings.TrimSpace(in.Name) == "":
		return nil, fmt.Errorf("%w: drone name is required", models.ErrInvalidArgument)
	case strings.TrimSpace(in.Model) == "":
		return nil, fmt.Errorf("%w: drone model is required", models.ErrInvalidArgument)
	case in.MaxPayloadKg <= 0:
		return nil, fmt.Errorf("%w: max payload must be positive", models.ErrInvalidArgument)
	case in.MaxSpeedKmh <= 0:
		return nil, fmt.Errorf("%w: max speed must be positive", models.ErrInvalidArgument)
	}

	var restaurantName string
	rest, err := w.restaurants.Restaurant(ctx, actor.RestaurantID)
	switch {
	case err == nil:
		restaurantName = rest.Name
	case errors.Is(err, models.ErrRestaurantNotFound):
	default:
		return nil, fmt.Errorf("lookup restaurant %s: %w", actor.RestaurantID, err)
	}
	home := in.Home
	if home == nil {
		if rest == nil {
			return nil, fmt.Errorf("%w: home coordinates are required", models.ErrInvalidArgument)
		}
		loc := rest.Location
		home = &loc
	}
	if !home.Valid() {
		return nil, fmt.Errorf("%w: home coordinates out of range", models.ErrInvalidArgument)
	}

	req, err := w.store.Requests.Create(ctx, &models.RegistrationRequest{
		RestaurantID:   actor.RestaurantID,
		RestaurantName: restaurantName,
		Type:           models.RequestTypeRegisterNew,
		DroneName:      strings.TrimSpace(in.Name),
		DroneModel:     strings.TrimSpace(in.Model),
		MaxPayloadKg:   in.MaxPayloadKg,
		MaxSpeedKmh:    in.MaxSpeedKmh,
		Home:           home,
		Reason:         strings.TrimSpace(in.Reason),
	})
	if err != nil {
		return nil, fmt.Errorf("create registration request: %w", err)
	}
	w.log.WithFields(logrus.Fields{"request_id": req.ID, "restaurant_id": req.RestaurantID, "type": req.Type}).Info("request submitted")
	return req, nil
}

// SubmitDeletion queues the retirement of one of the caller's drones.
func (w *Workflow) SubmitDeletion(ctx context.Context, actor models.Actor, droneID int64, reason string) (*models.RegistrationRequest, error) {
	if err := requireRestaurant(actor); err != nil {
		return nil, err
	}
	d, err := w.registry.GetFor(ctx, actor, droneID)
	if err != nil {
		return nil, err
	}
	if !d.Active {
		return nil, fmt.Errorf("%w: drone %d is already retired", models.ErrInvalidArgument, droneID)
	}
	pending, err := w.store.Requests.HasPendingDeletion(ctx, droneID)
	if err != nil {
		return nil, fmt.Errorf("check pending deletion: %w", err)
	}
	if pending {
		return nil, fmt.Errorf("%w: deletion of drone %d is already pending", models.ErrInvalidArgument, droneID)
	}

	var restaurantName string
	if rest, err := w.restaurants.Restaurant(ctx, actor.RestaurantID); err == nil {
		restaurantName = rest.Name
	}
	id := d.ID
	req, err := w.store.Requests.Create(ctx, &models.RegistrationRequest{
		RestaurantID:   actor.RestaurantID,
		RestaurantName: restaurantName,
		Type:           models.RequestTypeDeleteDrone,
		DroneName:      d.Name,
		DroneModel:     d.Model,
		DroneID:        &id,
		Reason:         strings.TrimSpace(reason),
	})
	if err != nil {
		return nil, fmt.Errorf("create deletion request: %w", err)
	}
	w.log.WithFields(logrus.Fields{"request_id": req.ID, "drone_id": droneID, "type": req.Type}).Info("request submitted")
	return req, nil
}

// ListMine returns the caller restaurant's requests, pending first.
func (w *Workflow) ListMine(ctx context.Context, actor models.Actor) ([]models.RegistrationRequest, error) {
	if err := requireRestaurant(actor); err != nil {
		return nil, err
	}
	return w.store.Requests.ListByRestaurant(ctx, actor.RestaurantID)
}

// List returns requests for review, pending first. An empty status lists everything.
func (w *Workflow) List(ctx context.Context, actor models.Actor, status models.RequestStatus) ([]models.RegistrationRequest, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return w.store.Requests.List(ctx, status)
}

// Get returns one request visible to the actor.
func (w *Workflow) Get(ctx context.Context, actor models.Actor, id int64) (*models.RegistrationRequest, error) {
	req, err := w.store.Requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request %d: %w", id, err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %d", models.ErrRequestNotFound, id)
	}
	if actor.Role != models.RoleAdmin && actor.RestaurantID != req.RestaurantID {
		return nil, fmt.Errorf("%w: request %d", models.ErrPermissionDenied, id)
	}
	return req, nil
}

// Approve applies the request's side effect and marks it APPROVED in one transaction.
// If the side effect fails (for example the drone to delete is busy) the request stays PENDING.
func (w *Workflow) Approve(ctx context.Context, actor models.Actor, id int64, note string) (*models.RegistrationRequest, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var out *models.RegistrationRequest
	err := w.store.InTx(ctx, func(tx *repository.Store) error {
		req, err := pendingRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		reg := w.registry.WithStore(tx)
		var droneID *int64
		switch req.Type {
		case models.RequestTypeRegisterNew:
			if req.Home == nil {
				return fmt.Errorf("%w: request %d has no home coordinates", models.ErrInvalidArgument, id)
			}
			d, err := reg.Register(ctx, fleet.NewDrone{
				RestaurantID: req.RestaurantID,
				Name:         req.DroneName,
				Model:        req.DroneModel,
				MaxPayloadKg: req.MaxPayloadKg,
				MaxSpeedKmh:  req.MaxSpeedKmh,
				Home:         *req.Home,
			})
			if err != nil {
				return err
			}
			droneID = &d.ID
		case models.RequestTypeDeleteDrone:
			if req.DroneID == nil {
				return fmt.Errorf("%w: request %d has no drone", models.ErrInvalidArgument, id)
			}
			if err := reg.Deactivate(ctx, *req.DroneID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unknown request type %q", models.ErrInvalidArgument, req.Type)
		}
		if err := resolve(ctx, tx, id, models.RequestStatusApproved, actor.Subject, note, droneID); err != nil {
			return err
		}
		out, err = tx.Requests.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	w.log.WithFields(logrus.Fields{"request_id": id, "admin": actor.Subject, "type": out.Type}).Info("request approved")
	return out, nil
}

// Reject closes the request without side effects. A note explaining why is required.
func (w *Workflow) Reject(ctx context.Context, actor models.Actor, id int64, note string) (*models.RegistrationRequest, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, fmt.Errorf("%w: rejecting request %d", models.ErrReasonRequired, id)
	}
	var out *models.RegistrationRequest
	err := w.store.InTx(ctx, func(tx *repository.Store) error {
		if _, err := pendingRequest(ctx, tx, id); err != nil {
			return err
		}
		if err := resolve(ctx, tx, id, models.RequestStatusRejected, actor.Subject, note, nil); err != nil {
			return err
		}
		var err error
		out, err = tx.Requests.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	w.log.WithFields(logrus.Fields{"request_id": id, "admin": actor.Subject}).Info("request rejected")
	return out, nil
}

func pendingRequest(ctx context.Context, tx *repository.Store, id int64) (*models.RegistrationRequest, error) {
	req, err := tx.Requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get request %d: %w", id, err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %d", models.ErrRequestNotFound, id)
	}
	if req.Resolved() {
		return nil, fmt.Errorf("%w: request %d is %s", models.ErrRequestAlreadyResolved, id, req.Status)
	}
	return req, nil
}

func resolve(ctx context.Context, tx *repository.Store, id int64, status models.RequestStatus, admin, note string, droneID *int64) error {
	ok, err := tx.Requests.Resolve(ctx, id, status, admin, strings.TrimSpace(note), droneID)
	if err != nil {
		return fmt.Errorf("resolve request %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("%w: request %d", models.ErrRequestAlreadyResolved, id)
	}
	return nil
}
