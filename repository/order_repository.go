package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"droneDeliveryCoordinator/models"
)

// OrderRepository is a local stand-in for the order service. It backs development
// deployments and tests; production wires the HTTP order client instead.
type OrderRepository struct {
	db querier
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, restaurant_id, customer_id, status, dest_lat, dest_lng, destination_address, payload_kg, updated_at`

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var status string
	err := row.Scan(&o.ID, &o.RestaurantID, &o.CustomerID, &status, &o.Destination.Lat, &o.Destination.Lng,
		&o.DestinationAddress, &o.PayloadKg, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(status)
	return &o, nil
}

// Create inserts a new order. Status defaults to PENDING if empty.
func (r *OrderRepository) Create(ctx context.Context, o *models.Order) (*models.Order, error) {
	if o == nil {
		return nil, errors.New("order is nil")
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `INSERT INTO orders (restaurant_id, customer_id, status, dest_lat, dest_lng, destination_address, payload_kg, updated_at)
VALUES (?,?,?,?,?,?,?,?)`,
		o.RestaurantID, o.CustomerID, string(o.Status), o.Destination.Lat, o.Destination.Lng, o.DestinationAddress, o.PayloadKg,
		formatTime(time.Now()))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	o2, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o2 == nil {
		return nil, fmt.Errorf("created order not found: id=%d", id)
	}
	return o2, nil
}

// GetByID fetches an order by its ID, nil when absent.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

// GetOrder satisfies the order service contract: a missing order is an error.
func (r *OrderRepository) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	o, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, models.ErrOrderNotFound
	}
	return o, nil
}

// SetStatus updates the order status.
func (r *OrderRepository) SetStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`, string(status), formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrOrderNotFound
	}
	return nil
}

// ListByRestaurant returns a restaurant's orders with the given statuses, oldest first.
func (r *OrderRepository) ListByRestaurant(ctx context.Context, restaurantID string, statuses ...models.OrderStatus) ([]models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	query := `SELECT ` + orderColumns + ` FROM orders WHERE restaurant_id = ?`
	args := []any{restaurantID}
	if len(statuses) > 0 {
		query += " AND status IN ("
		for i, s := range statuses {
			if i > 0 {
				query += ","
			}
			query += "?"
			args = append(args, string(s))
		}
		query += ")"
	}
	query += " ORDER BY id"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
