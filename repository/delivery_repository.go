package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"droneDeliveryCoordinator/models"
)

// DeliveryRepository persists the delivery log: one row per shipped order plus its flown route.
type DeliveryRepository struct {
	db querier
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

const deliveryColumns = `id, order_id, drone_id, restaurant_id, customer_id, origin_lat, origin_lng, dest_lat, dest_lng,
destination_address, estimated_distance_km, estimated_duration_min, phase, actual_distance_km, battery_start, battery_end,
pending_order_status, started_at, arrived_at, confirmed_at, ended_at, escalated_at`

func scanDelivery(row rowScanner) (*models.Delivery, error) {
	var d models.Delivery
	var phase, pending, startedAt string
	var batteryEnd sql.NullFloat64
	var arrivedAt, confirmedAt, endedAt, escalatedAt sql.NullString
	err := row.Scan(&d.ID, &d.OrderID, &d.DroneID, &d.RestaurantID, &d.CustomerID, &d.Origin.Lat, &d.Origin.Lng,
		&d.Destination.Lat, &d.Destination.Lng, &d.DestinationAddress, &d.EstimatedDistanceKm, &d.EstimatedDurationMin,
		&phase, &d.ActualDistanceKm, &d.BatteryStart, &batteryEnd, &pending, &startedAt, &arrivedAt, &confirmedAt,
		&endedAt, &escalatedAt)
	if err != nil {
		return nil, err
	}
	d.Phase = models.DeliveryPhase(phase)
	d.PendingOrderStatus = models.OrderStatus(pending)
	if batteryEnd.Valid {
		v := batteryEnd.Float64
		d.BatteryEnd = &v
	}
	d.StartedAt = parseTime(startedAt)
	d.ArrivedAt = parseTimePtr(arrivedAt)
	d.ConfirmedAt = parseTimePtr(confirmedAt)
	d.EndedAt = parseTimePtr(endedAt)
	d.EscalatedAt = parseTimePtr(escalatedAt)
	return &d, nil
}

// Create opens a delivery in the OUTBOUND phase.
func (r *DeliveryRepository) Create(ctx context.Context, d *models.Delivery) (*models.Delivery, error) {
	if d == nil {
		return nil, errors.New("delivery is nil")
	}
	if d.Phase == "" {
		d.Phase = models.DeliveryPhaseOutbound
	}
	if d.StartedAt.IsZero() {
		d.StartedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `INSERT INTO deliveries (order_id, drone_id, restaurant_id, customer_id, origin_lat, origin_lng,
dest_lat, dest_lng, destination_address, estimated_distance_km, estimated_duration_min, phase, battery_start,
pending_order_status, started_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.OrderID, d.DroneID, d.RestaurantID, d.CustomerID, d.Origin.Lat, d.Origin.Lng, d.Destination.Lat, d.Destination.Lng,
		d.DestinationAddress, d.EstimatedDistanceKm, d.EstimatedDurationMin, string(d.Phase), d.BatteryStart,
		string(d.PendingOrderStatus), formatTime(d.StartedAt))
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

func (r *DeliveryRepository) getOne(ctx context.Context, where string, args ...any) (*models.Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	d, err := scanDelivery(r.db.QueryRowContext(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// GetByID returns the delivery or nil.
func (r *DeliveryRepository) GetByID(ctx context.Context, id int64) (*models.Delivery, error) {
	return r.getOne(ctx, `id = ?`, id)
}

// GetOpenByDrone returns the drone's unfinished delivery, if any.
func (r *DeliveryRepository) GetOpenByDrone(ctx context.Context, droneID int64) (*models.Delivery, error) {
	return r.getOne(ctx, `drone_id = ? AND phase <> 'COMPLETED'`, droneID)
}

// GetOpenByOrder returns the order's unfinished delivery, if any.
func (r *DeliveryRepository) GetOpenByOrder(ctx context.Context, orderID int64) (*models.Delivery, error) {
	return r.getOne(ctx, `order_id = ? AND phase <> 'COMPLETED'`, orderID)
}

// GetLatestByOrder returns the most recent delivery of an order in any phase.
func (r *DeliveryRepository) GetLatestByOrder(ctx context.Context, orderID int64) (*models.Delivery, error) {
	return r.getOne(ctx, `order_id = ? ORDER BY id DESC LIMIT 1`, orderID)
}

func (r *DeliveryRepository) list(ctx context.Context, where string, args ...any) ([]models.Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
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

// ListOpen returns every unfinished delivery.
func (r *DeliveryRepository) ListOpen(ctx context.Context) ([]models.Delivery, error) {
	return r.list(ctx, `phase <> 'COMPLETED'`)
}

// ListAwaitingSince returns deliveries waiting for confirmation since at or before cutoff.
func (r *DeliveryRepository) ListAwaitingSince(ctx context.Context, cutoff time.Time) ([]models.Delivery, error) {
	return r.list(ctx, `phase = 'AWAITING_CONFIRMATION' AND arrived_at <= ?`, formatTime(cutoff))
}

// ListPendingOrderStatus returns deliveries whose last order status update did not reach the order service.
func (r *DeliveryRepository) ListPendingOrderStatus(ctx context.Context) ([]models.Delivery, error) {
	return r.list(ctx, `pending_order_status <> ''`)
}

func (r *DeliveryRepository) exec(ctx context.Context, query string, args ...any) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// MarkArrived moves an OUTBOUND delivery to AWAITING_CONFIRMATION.
func (r *DeliveryRepository) MarkArrived(ctx context.Context, id int64, at time.Time) (bool, error) {
	return r.exec(ctx, `UPDATE deliveries SET phase = 'AWAITING_CONFIRMATION', arrived_at = ? WHERE id = ? AND phase = 'OUTBOUND'`,
		formatTime(at), id)
}

// MarkReturning moves a confirmed delivery to RETURNING.
func (r *DeliveryRepository) MarkReturning(ctx context.Context, id int64, at time.Time) (bool, error) {
	return r.exec(ctx, `UPDATE deliveries SET phase = 'RETURNING', confirmed_at = ? WHERE id = ? AND phase = 'AWAITING_CONFIRMATION'`,
		formatTime(at), id)
}

// Close completes a RETURNING delivery with its flown distance and final battery.
func (r *DeliveryRepository) Close(ctx context.Context, id int64, at time.Time, actualKm, batteryEnd float64) (bool, error) {
	return r.exec(ctx, `UPDATE deliveries SET phase = 'COMPLETED', ended_at = ?, actual_distance_km = ?, battery_end = ?
WHERE id = ? AND phase = 'RETURNING'`, formatTime(at), actualKm, batteryEnd, id)
}

// MarkEscalated flags a delivery left unconfirmed too long. It reports false when already flagged.
func (r *DeliveryRepository) MarkEscalated(ctx context.Context, id int64, at time.Time) (bool, error) {
	return r.exec(ctx, `UPDATE deliveries SET escalated_at = ? WHERE id = ? AND escalated_at IS NULL`, formatTime(at), id)
}

// SetPendingOrderStatus records (or clears with "") an order status still owed to the order service.
func (r *DeliveryRepository) SetPendingOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	_, err := r.exec(ctx, `UPDATE deliveries SET pending_order_status = ? WHERE id = ?`, string(status), id)
	return err
}

// AppendRoutePoint adds the next point of the flown path.
func (r *DeliveryRepository) AppendRoutePoint(ctx context.Context, deliveryID int64, p models.RoutePoint) error {
	if p.RecordedAt.IsZero() {
		p.RecordedAt = time.Now()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `INSERT INTO delivery_route_points (delivery_id, seq, leg, lat, lng, battery_percent, speed_kmh, recorded_at)
SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ?, ? FROM delivery_route_points WHERE delivery_id = ?`,
		deliveryID, string(p.Leg), p.Lat, p.Lng, p.BatteryPercent, p.SpeedKmh, formatTime(p.RecordedAt), deliveryID)
	return err
}

// Route returns the recorded path in flight order.
func (r *DeliveryRepository) Route(ctx context.Context, deliveryID int64) ([]models.RoutePoint, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT seq, leg, lat, lng, battery_percent, speed_kmh, recorded_at
FROM delivery_route_points WHERE delivery_id = ? ORDER BY seq`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.RoutePoint
	for rows.Next() {
		var p models.RoutePoint
		var leg, at string
		if err := rows.Scan(&p.Seq, &leg, &p.Lat, &p.Lng, &p.BatteryPercent, &p.SpeedKmh, &at); err != nil {
			return nil, err
		}
		p.Leg = models.LegKind(leg)
		p.RecordedAt = parseTime(at)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
