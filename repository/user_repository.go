package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"droneDeliveryCoordinator/models"
)

type UserRepository struct {
	db querier
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user with the given username. Role defaults to customer.
func (r *UserRepository) Create(ctx context.Context, username string) (*models.User, error) {
	return r.CreateWithRole(ctx, &models.User{Username: username, Role: models.RoleCustomer})
}

// CreateWithRole inserts a user with an explicit role and restaurant binding.
func (r *UserRepository) CreateWithRole(ctx context.Context, u *models.User) (*models.User, error) {
	if u == nil {
		return nil, errors.New("user is nil")
	}
	if u.Role == "" {
		u.Role = models.RoleCustomer
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var restaurantID any
	if u.RestaurantID != "" {
		restaurantID = u.RestaurantID
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO users (username, role, restaurant_id) VALUES (?,?,?)`, u.Username, string(u.Role), restaurantID)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	u.ID = id
	return u, nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var role string
	var restaurantID sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &role, &restaurantID); err != nil {
		return nil, err
	}
	u.Role = models.ParseRole(role)
	u.RestaurantID = restaurantID.String
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT id, username, role, restaurant_id FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT id, username, role, restaurant_id FROM users WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

// UpdateRoleByUsername sets the role for the given username.
// Intended for administrative flows and tests.
func (r *UserRepository) UpdateRoleByUsername(ctx context.Context, username string, role models.Role) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE username = ?`, string(role), username)
	return err
}
