package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"droneDeliveryCoordinator/models"
)

// RestaurantRepository answers ownership and home-location questions about restaurants.
type RestaurantRepository struct {
	db querier
}

func NewRestaurantRepository(db *sql.DB) *RestaurantRepository {
	return &RestaurantRepository{db: db}
}

// Upsert creates or replaces a restaurant record.
func (r *RestaurantRepository) Upsert(ctx context.Context, rest *models.Restaurant) error {
	if rest == nil || rest.ID == "" {
		return errors.New("restaurant id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `INSERT INTO restaurants (id, name, owner, lat, lng) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, owner = excluded.owner, lat = excluded.lat, lng = excluded.lng`,
		rest.ID, rest.Name, rest.Owner, rest.Location.Lat, rest.Location.Lng)
	return err
}

// Restaurant returns the restaurant or models.ErrRestaurantNotFound.
func (r *RestaurantRepository) Restaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var rest models.Restaurant
	err := r.db.QueryRowContext(ctx, `SELECT id, name, owner, lat, lng FROM restaurants WHERE id = ?`, id).
		Scan(&rest.ID, &rest.Name, &rest.Owner, &rest.Location.Lat, &rest.Location.Lng)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrRestaurantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rest, nil
}
