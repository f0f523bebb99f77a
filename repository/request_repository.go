package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"droneDeliveryCoordinator/models"
)

type RequestRepository struct {
	db querier
}

func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `id, restaurant_id, restaurant_name, request_type, status, drone_name, drone_model, max_payload_kg,
max_speed_kmh, home_lat, home_lng, drone_id, reason, admin_id, admin_note, created_at, resolved_at`

// pending first, then newest.
const requestOrder = ` ORDER BY CASE WHEN status = 'PENDING' THEN 0 ELSE 1 END, created_at DESC, id DESC`

func scanRequest(row rowScanner) (*models.RegistrationRequest, error) {
	var q models.RegistrationRequest
	var typ, status, createdAt string
	var homeLat, homeLng sql.NullFloat64
	var droneID sql.NullInt64
	var resolvedAt sql.NullString
	err := row.Scan(&q.ID, &q.RestaurantID, &q.RestaurantName, &typ, &status, &q.DroneName, &q.DroneModel, &q.MaxPayloadKg,
		&q.MaxSpeedKmh, &homeLat, &homeLng, &droneID, &q.Reason, &q.AdminID, &q.AdminNote, &createdAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	q.Type = models.RequestType(typ)
	q.Status = models.RequestStatus(status)
	if homeLat.Valid && homeLng.Valid {
		q.Home = &models.Coordinates{Lat: homeLat.Float64, Lng: homeLng.Float64}
	}
	q.DroneID = nullInt64Ptr(droneID)
	q.CreatedAt = parseTime(createdAt)
	q.ResolvedAt = parseTimePtr(resolvedAt)
	return &q, nil
}

// Create stores a new PENDING request.
func (r *RequestRepository) Create(ctx context.Context, q *models.RegistrationRequest) (*models.RegistrationRequest, error) {
	if q == nil {
		return nil, errors.New("request is nil")
	}
	q.Status = models.RequestStatusPending
	q.CreatedAt = time.Now().UTC()
	var homeLat, homeLng any
	if q.Home != nil {
		homeLat, homeLng = q.Home.Lat, q.Home.Lng
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `INSERT INTO registration_requests (restaurant_id, restaurant_name, request_type, status,
drone_name, drone_model, max_payload_kg, max_speed_kmh, home_lat, home_lng, drone_id, reason, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		q.RestaurantID, q.RestaurantName, string(q.Type), string(q.Status), q.DroneName, q.DroneModel, q.MaxPayloadKg,
		q.MaxSpeedKmh, homeLat, homeLng, int64PtrArg(q.DroneID), q.Reason, formatTime(q.CreatedAt))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	q.ID = id
	return q, nil
}

// GetByID returns the request or nil when it does not exist.
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*models.RegistrationRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	q, err := scanRequest(r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM registration_requests WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return q, err
}

// ListByRestaurant returns a restaurant's requests, pending first.
func (r *RequestRepository) ListByRestaurant(ctx context.Context, restaurantID string) ([]models.RegistrationRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+requestColumns+` FROM registration_requests WHERE restaurant_id = ?`+requestOrder, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequestRows(rows)
}

// List returns all requests, optionally filtered by status, pending first.
func (r *RequestRepository) List(ctx context.Context, status models.RequestStatus) ([]models.RegistrationRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = r.db.QueryContext(ctx, `SELECT `+requestColumns+` FROM registration_requests WHERE status = ?`+requestOrder, string(status))
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT `+requestColumns+` FROM registration_requests`+requestOrder)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequestRows(rows)
}

// HasPendingDeletion reports whether a DELETE_DRONE request for the drone is still open.
func (r *RequestRepository) HasPendingDeletion(ctx context.Context, droneID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registration_requests
WHERE drone_id = ? AND request_type = 'DELETE_DRONE' AND status = 'PENDING'`, droneID).Scan(&n)
	return n > 0, err
}

// Resolve moves a PENDING request to a terminal status. It reports false when the
// request was no longer pending; terminal requests are never rewritten.
func (r *RequestRepository) Resolve(ctx context.Context, id int64, status models.RequestStatus, adminID, note string, droneID *int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE registration_requests
SET status = ?, admin_id = ?, admin_note = ?, drone_id = COALESCE(?, drone_id), resolved_at = ?
WHERE id = ? AND status = 'PENDING'`,
		string(status), adminID, note, int64PtrArg(droneID), formatTime(time.Now()), id)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func scanRequestRows(rows *sql.Rows) ([]models.RegistrationRequest, error) {
	var out []models.RegistrationRequest
	for rows.Next() {
		q, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
