package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"droneDeliveryCoordinator/models"
)

func openDelivery(t *testing.T, store *Store, droneID, orderID int64) *models.Delivery {
	t.Helper()
	d, err := store.Deliveries.Create(context.Background(), &models.Delivery{
		OrderID: orderID, DroneID: droneID, RestaurantID: "r1", CustomerID: "carol",
		Origin: testHome, Destination: models.Coordinates{Lat: 10.79, Lng: 106.71},
		EstimatedDistanceKm: 1.7, EstimatedDurationMin: 4, BatteryStart: 100,
		PendingOrderStatus: models.OrderStatusShipped,
	})
	if err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	return d
}

func TestDeliveryRepository_PhasesAndRoute(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()
	dr := createDrone(t, store.Drones, "r1", "alpha", 100)
	d := openDelivery(t, store, dr.ID, 7)

	open, err := store.Deliveries.GetOpenByDrone(ctx, dr.ID)
	if err != nil || open == nil || open.ID != d.ID || open.Phase != models.DeliveryPhaseOutbound {
		t.Fatalf("open by drone: %+v err=%v", open, err)
	}
	if _, err := store.Deliveries.Create(ctx, &models.Delivery{OrderID: 7, DroneID: dr.ID, RestaurantID: "r1", BatteryStart: 100}); err == nil {
		t.Fatalf("second open delivery for the same order must be rejected")
	}

	pending, err := store.Deliveries.ListPendingOrderStatus(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending order status: %v len=%d", err, len(pending))
	}
	if err := store.Deliveries.SetPendingOrderStatus(ctx, d.ID, ""); err != nil {
		t.Fatalf("clear pending: %v", err)
	}
	if pending, _ = store.Deliveries.ListPendingOrderStatus(ctx); len(pending) != 0 {
		t.Fatalf("pending marker not cleared")
	}

	for i, lat := range []float64{10.780, 10.785, 10.790} {
		p := models.RoutePoint{Leg: models.LegOutbound, Lat: lat, Lng: 106.705, BatteryPercent: 99 - float64(i)}
		if err := store.Deliveries.AppendRoutePoint(ctx, d.ID, p); err != nil {
			t.Fatalf("append point: %v", err)
		}
	}
	route, err := store.Deliveries.Route(ctx, d.ID)
	if err != nil || len(route) != 3 {
		t.Fatalf("route: %v len=%d", err, len(route))
	}
	if route[0].Seq != 1 || route[2].Seq != 3 || route[2].Lat != 10.790 || route[1].Leg != models.LegOutbound {
		t.Fatalf("unexpected route: %+v", route)
	}

	arrivedAt := time.Now().Add(-10 * time.Minute)
	if ok, err := store.Deliveries.MarkReturning(ctx, d.ID, time.Now()); err != nil || ok {
		t.Fatalf("OUTBOUND must not jump to RETURNING: ok=%v err=%v", ok, err)
	}
	if ok, err := store.Deliveries.MarkArrived(ctx, d.ID, arrivedAt); err != nil || !ok {
		t.Fatalf("mark arrived: ok=%v err=%v", ok, err)
	}
	if ok, _ := store.Deliveries.MarkArrived(ctx, d.ID, time.Now()); ok {
		t.Fatalf("mark arrived twice applied")
	}

	stale, err := store.Deliveries.ListAwaitingSince(ctx, time.Now().Add(-5*time.Minute))
	if err != nil || len(stale) != 1 {
		t.Fatalf("awaiting since: %v len=%d", err, len(stale))
	}
	fresh, _ := store.Deliveries.ListAwaitingSince(ctx, time.Now().Add(-time.Hour))
	if len(fresh) != 0 {
		t.Fatalf("cutoff before arrival must not match")
	}
	if ok, _ := store.Deliveries.MarkEscalated(ctx, d.ID, time.Now()); !ok {
		t.Fatalf("first escalation not applied")
	}
	if ok, _ := store.Deliveries.MarkEscalated(ctx, d.ID, time.Now()); ok {
		t.Fatalf("escalation applied twice")
	}

	if ok, err := store.Deliveries.MarkReturning(ctx, d.ID, time.Now()); err != nil || !ok {
		t.Fatalf("mark returning: ok=%v err=%v", ok, err)
	}
	if ok, err := store.Deliveries.Close(ctx, d.ID, time.Now(), 3.4, 91); err != nil || !ok {
		t.Fatalf("close: ok=%v err=%v", ok, err)
	}
	closed, err := store.Deliveries.GetLatestByOrder(ctx, 7)
	if err != nil || closed == nil {
		t.Fatalf("latest by order: %+v err=%v", closed, err)
	}
	if closed.Phase != models.DeliveryPhaseCompleted || closed.ActualDistanceKm != 3.4 || closed.BatteryConsumed() != 9 {
		t.Fatalf("unexpected closed delivery: %+v", closed)
	}
	if closed.ArrivedAt == nil || closed.ConfirmedAt == nil || closed.EndedAt == nil || closed.EscalatedAt == nil {
		t.Fatalf("timestamps not recorded: %+v", closed)
	}
	if open, _ := store.Deliveries.GetOpenByOrder(ctx, 7); open != nil {
		t.Fatalf("completed delivery reported open")
	}

	// the order may be flown again once the previous delivery closed
	again := openDelivery(t, store, dr.ID, 7)
	latest, _ := store.Deliveries.GetLatestByOrder(ctx, 7)
	if latest.ID != again.ID {
		t.Fatalf("latest delivery id=%d want %d", latest.ID, again.ID)
	}
	all, err := store.Deliveries.ListOpen(ctx)
	if err != nil || len(all) != 1 || all[0].ID != again.ID {
		t.Fatalf("list open: %v %+v", err, all)
	}
}

func TestStore_InTxRollsBack(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()
	dr := createDrone(t, store.Drones, "r1", "alpha", 100)

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx *Store) error {
		if ok, err := tx.Drones.Assign(ctx, dr.ID, 9, 20); err != nil || !ok {
			t.Fatalf("assign in tx: ok=%v err=%v", ok, err)
		}
		openDelivery(t, tx, dr.ID, 9)
		// nested calls join the outer transaction
		return tx.InTx(ctx, func(inner *Store) error { return boom })
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := store.Drones.GetByID(ctx, dr.ID)
	if got.Status != models.DroneStatusIdle || got.AssignedOrderID != nil {
		t.Fatalf("assignment survived rollback: %+v", got)
	}
	if d, _ := store.Deliveries.GetOpenByDrone(ctx, dr.ID); d != nil {
		t.Fatalf("delivery survived rollback: %+v", d)
	}

	err = store.InTx(ctx, func(tx *Store) error {
		_, err := tx.Drones.Assign(ctx, dr.ID, 9, 20)
		return err
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, _ = store.Drones.GetByID(ctx, dr.ID)
	if got.Status != models.DroneStatusDelivering {
		t.Fatalf("committed assignment missing: %+v", got)
	}
}
