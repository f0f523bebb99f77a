package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"droneDeliveryCoordinator/models"
)

type DroneRepository struct {
	db querier
}

func NewDroneRepository(db *sql.DB) *DroneRepository {
	return &DroneRepository{db: db}
}

const droneColumns = `id, restaurant_id, name, model, status, battery_percent, current_lat, current_lng, home_lat, home_lng,
max_payload_kg, max_speed_kmh, total_deliveries, active, assigned_order_id, created_at, updated_at`

func scanDrone(row rowScanner) (*models.Drone, error) {
	var d models.Drone
	var status, createdAt, updatedAt string
	var curLat, curLng sql.NullFloat64
	var assigned sql.NullInt64
	err := row.Scan(&d.ID, &d.RestaurantID, &d.Name, &d.Model, &status, &d.BatteryPercent, &curLat, &curLng,
		&d.Home.Lat, &d.Home.Lng, &d.MaxPayloadKg, &d.MaxSpeedKmh, &d.TotalDeliveries, &d.Active, &assigned,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = models.DroneStatus(status)
	if curLat.Valid && curLng.Valid {
		d.Current = &models.Coordinates{Lat: curLat.Float64, Lng: curLng.Float64}
	}
	d.AssignedOrderID = nullInt64Ptr(assigned)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

// Create inserts a new drone. Status defaults to IDLE, battery to full and the
// current position to home.
func (r *DroneRepository) Create(ctx context.Context, d *models.Drone) (*models.Drone, error) {
	if d == nil {
		return nil, errors.New("drone is nil")
	}
	if d.Status == "" {
		d.Status = models.DroneStatusIdle
	}
	if d.MaxPayloadKg <= 0 {
		d.MaxPayloadKg = models.DefaultMaxPayloadKg
	}
	if d.MaxSpeedKmh <= 0 {
		d.MaxSpeedKmh = models.DefaultMaxSpeedKmh
	}
	if d.Current == nil {
		home := d.Home
		d.Current = &home
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `INSERT INTO drones (restaurant_id, name, model, status, battery_percent, current_lat, current_lng,
home_lat, home_lng, max_payload_kg, max_speed_kmh, total_deliveries, active, assigned_order_id, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.RestaurantID, d.Name, d.Model, string(d.Status), d.BatteryPercent, d.Current.Lat, d.Current.Lng,
		d.Home.Lat, d.Home.Lng, d.MaxPayloadKg, d.MaxSpeedKmh, d.TotalDeliveries, d.Active, int64PtrArg(d.AssignedOrderID),
		formatTime(now), formatTime(now))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	d.ID = id
	return d, nil
}

// GetByID returns the drone or nil when it does not exist.
func (r *DroneRepository) GetByID(ctx context.Context, id int64) (*models.Drone, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	d, err := scanDrone(r.db.QueryRowContext(ctx, `SELECT `+droneColumns+` FROM drones WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// GetByOrderID returns the drone carrying the given order, if any.
func (r *DroneRepository) GetByOrderID(ctx context.Context, orderID int64) (*models.Drone, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	d, err := scanDrone(r.db.QueryRowContext(ctx, `SELECT `+droneColumns+` FROM drones WHERE assigned_order_id = ?`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// ListByRestaurant returns the active drones of a restaurant ordered by id.
func (r *DroneRepository) ListByRestaurant(ctx context.Context, restaurantID string) ([]models.Drone, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+droneColumns+` FROM drones WHERE restaurant_id = ? AND active = 1 ORDER BY id`, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDroneRows(rows)
}

// ListAvailable returns active IDLE drones of a restaurant with at least minBattery charge,
// best charged first.
func (r *DroneRepository) ListAvailable(ctx context.Context, restaurantID string, minBattery float64) ([]models.Drone, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+droneColumns+` FROM drones
WHERE restaurant_id = ? AND active = 1 AND status = 'IDLE' AND battery_percent >= ?
ORDER BY battery_percent DESC, id`, restaurantID, minBattery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDroneRows(rows)
}

// ListDronesAdminParams represents filters and pagination for ListAdmin.
type ListDronesAdminParams struct {
	Statuses        []models.DroneStatus
	RestaurantID    string
	IncludeInactive bool
	PageSize        int
	AfterID         int64 // keyset cursor: drone id
}

// ListAdmin returns drones matching filters ordered by id with keyset pagination.
func (r *DroneRepository) ListAdmin(ctx context.Context, p ListDronesAdminParams) ([]models.Drone, error) {
	p.PageSize = clampPageSize(p.PageSize)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var where []string
	var args []any
	if len(p.Statuses) > 0 {
		placeholders := make([]string, len(p.Statuses))
		for i, s := range p.Statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	if p.RestaurantID != "" {
		where = append(where, "restaurant_id = ?")
		args = append(args, p.RestaurantID)
	}
	if !p.IncludeInactive {
		where = append(where, "active = 1")
	}
	if p.AfterID > 0 {
		where = append(where, "id > ?")
		args = append(args, p.AfterID)
	}
	query := `SELECT ` + droneColumns + ` FROM drones`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, p.PageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDroneRows(rows)
}

// Assign moves an IDLE, active, sufficiently charged drone to DELIVERING with the given order.
// It reports false when the drone did not satisfy the preconditions; nothing is written then.
func (r *DroneRepository) Assign(ctx context.Context, droneID, orderID int64, minBattery float64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE drones SET status = 'DELIVERING', assigned_order_id = ?, updated_at = ?
WHERE id = ? AND status = 'IDLE' AND active = 1 AND battery_percent >= ? AND assigned_order_id IS NULL`,
		orderID, formatTime(time.Now()), droneID, minBattery)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// CompareAndSetStatus moves the drone from one status to another, keeping its order.
func (r *DroneRepository) CompareAndSetStatus(ctx context.Context, droneID int64, from, to models.DroneStatus) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE drones SET status = ?, updated_at = ? WHERE id = ? AND status = ? AND active = 1`,
		string(to), formatTime(time.Now()), droneID, string(from))
	if err != nil {
		return false, err
	}
	return affected(res)
}

// CompleteReturn moves a RETURNING drone to IDLE, clears its order and counts the delivery.
func (r *DroneRepository) CompleteReturn(ctx context.Context, droneID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE drones SET status = 'IDLE', assigned_order_id = NULL,
total_deliveries = total_deliveries + 1, current_lat = home_lat, current_lng = home_lng, updated_at = ?
WHERE id = ? AND status = 'RETURNING'`, formatTime(time.Now()), droneID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// Deactivate retires an IDLE drone.
func (r *DroneRepository) Deactivate(ctx context.Context, droneID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE drones SET active = 0, updated_at = ? WHERE id = ? AND status = 'IDLE' AND active = 1`,
		formatTime(time.Now()), droneID)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// UpdatePosition writes position and battery in one statement so readers never see
// a half-applied tick. Battery is clamped to [0,100].
func (r *DroneRepository) UpdatePosition(ctx context.Context, droneID int64, pos models.Coordinates, battery float64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE drones SET current_lat = ?, current_lng = ?,
battery_percent = MIN(100.0, MAX(0.0, ?)), updated_at = ? WHERE id = ?`,
		pos.Lat, pos.Lng, battery, formatTime(time.Now()), droneID)
	return err
}

// SetBattery overwrites the battery level, e.g. after a recharge at base.
func (r *DroneRepository) SetBattery(ctx context.Context, droneID int64, battery float64) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE drones SET battery_percent = MIN(100.0, MAX(0.0, ?)), updated_at = ? WHERE id = ?`,
		battery, formatTime(time.Now()), droneID)
	return err
}

func scanDroneRows(rows *sql.Rows) ([]models.Drone, error) {
	var out []models.Drone
	for rows.Next() {
		d, err := scanDrone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
