package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store groups the repositories over one handle, either the pool or a transaction.
type Store struct {
	db *sql.DB
	tx *sql.Tx

	Users       *UserRepository
	Restaurants *RestaurantRepository
	Drones      *DroneRepository
	Requests    *RequestRepository
	Orders      *OrderRepository
	Deliveries  *DeliveryRepository
}

func NewStore(db *sql.DB) *Store {
	return newStore(db, nil, db)
}

func newStore(db *sql.DB, tx *sql.Tx, q querier) *Store {
	return &Store{
		db:          db,
		tx:          tx,
		Users:       &UserRepository{db: q},
		Restaurants: &RestaurantRepository{db: q},
		Drones:      &DroneRepository{db: q},
		Requests:    &RequestRepository{db: q},
		Orders:      &OrderRepository{db: q},
		Deliveries:  &DeliveryRepository{db: q},
	}
}

// InTx runs fn with repositories bound to a single transaction. It commits when fn
// returns nil and rolls back otherwise. Nested calls reuse the outer transaction.
// Inside fn only the given store may be used: the pool holds a single connection.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(newStore(s.db, tx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// Rows written by SQLite defaults use CURRENT_TIMESTAMP.
		t, _ = time.Parse("2006-01-02 15:04:05", s)
	}
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullInt64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func int64PtrArg(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func clampPageSize(n int) int {
	if n <= 0 {
		return 20
	}
	if n > 100 {
		return 100
	}
	return n
}

// affected reports whether a conditional statement matched a row.
func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
