package repository

import (
	"context"
	"testing"

	"droneDeliveryCoordinator/models"
)

var testHome = models.Coordinates{Lat: 10.7769, Lng: 106.7009}

func createDrone(t *testing.T, drones *DroneRepository, restaurantID, name string, battery float64) *models.Drone {
	t.Helper()
	d, err := drones.Create(context.Background(), &models.Drone{
		RestaurantID: restaurantID, Name: name, Model: "DJI-X", BatteryPercent: battery, Home: testHome, Active: true,
	})
	if err != nil {
		t.Fatalf("create drone %s: %v", name, err)
	}
	return d
}

func TestDroneRepository_CRUD_Status_Assignments(t *testing.T) {
	drones := NewDroneRepository(openTestDB(t))
	ctx := context.Background()

	dr := createDrone(t, drones, "r1", "alpha", 100)
	if dr.ID == 0 {
		t.Fatalf("expected id assigned")
	}
	got, err := drones.GetByID(ctx, dr.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v %+v", err, got)
	}
	if got.Status != models.DroneStatusIdle || got.MaxPayloadKg != models.DefaultMaxPayloadKg || got.Current == nil || *got.Current != testHome {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	if none, err := drones.GetByID(ctx, 999); err != nil || none != nil {
		t.Fatalf("expected nil for unknown drone, got %+v err=%v", none, err)
	}

	// Assign is a compare-and-set on IDLE
	ok, err := drones.Assign(ctx, dr.ID, 11, 20)
	if err != nil || !ok {
		t.Fatalf("assign: ok=%v err=%v", ok, err)
	}
	ok, err = drones.Assign(ctx, dr.ID, 12, 20)
	if err != nil || ok {
		t.Fatalf("second assign must not match: ok=%v err=%v", ok, err)
	}
	byOrder, err := drones.GetByOrderID(ctx, 11)
	if err != nil || byOrder == nil || byOrder.ID != dr.ID || byOrder.Status != models.DroneStatusDelivering {
		t.Fatalf("get by order: %+v err=%v", byOrder, err)
	}

	// DELIVERING -> ARRIVED -> RETURNING, wrong source status never matches
	if ok, _ := drones.CompareAndSetStatus(ctx, dr.ID, models.DroneStatusArrived, models.DroneStatusReturning); ok {
		t.Fatalf("transition from wrong status applied")
	}
	for _, step := range [][2]models.DroneStatus{
		{models.DroneStatusDelivering, models.DroneStatusArrived},
		{models.DroneStatusArrived, models.DroneStatusReturning},
	} {
		if ok, err := drones.CompareAndSetStatus(ctx, dr.ID, step[0], step[1]); err != nil || !ok {
			t.Fatalf("%s -> %s: ok=%v err=%v", step[0], step[1], ok, err)
		}
	}

	away := models.Coordinates{Lat: 10.79, Lng: 106.71}
	if err := drones.UpdatePosition(ctx, dr.ID, away, -5); err != nil {
		t.Fatalf("update position: %v", err)
	}
	got, _ = drones.GetByID(ctx, dr.ID)
	if *got.Current != away || got.BatteryPercent != 0 {
		t.Fatalf("position/battery not applied or not clamped: %+v", got)
	}

	ok, err = drones.CompleteReturn(ctx, dr.ID)
	if err != nil || !ok {
		t.Fatalf("complete return: ok=%v err=%v", ok, err)
	}
	got, _ = drones.GetByID(ctx, dr.ID)
	if got.Status != models.DroneStatusIdle || got.AssignedOrderID != nil || got.TotalDeliveries != 1 || *got.Current != testHome {
		t.Fatalf("unexpected drone after return: %+v", got)
	}
	if ok, _ := drones.CompleteReturn(ctx, dr.ID); ok {
		t.Fatalf("complete return on IDLE drone applied")
	}

	if err := drones.SetBattery(ctx, dr.ID, 150); err != nil {
		t.Fatalf("set battery: %v", err)
	}
	got, _ = drones.GetByID(ctx, dr.ID)
	if got.BatteryPercent != 100 {
		t.Fatalf("battery not clamped: %v", got.BatteryPercent)
	}
}

func TestDroneRepository_AssignRespectsBatteryAndActive(t *testing.T) {
	drones := NewDroneRepository(openTestDB(t))
	ctx := context.Background()

	low := createDrone(t, drones, "r1", "low", 15)
	if ok, _ := drones.Assign(ctx, low.ID, 1, 20); ok {
		t.Fatalf("low battery drone assigned")
	}

	retired := createDrone(t, drones, "r1", "retired", 100)
	if ok, err := drones.Deactivate(ctx, retired.ID); err != nil || !ok {
		t.Fatalf("deactivate: ok=%v err=%v", ok, err)
	}
	if ok, _ := drones.Assign(ctx, retired.ID, 2, 20); ok {
		t.Fatalf("inactive drone assigned")
	}

	busy := createDrone(t, drones, "r1", "busy", 100)
	if ok, _ := drones.Assign(ctx, busy.ID, 3, 20); !ok {
		t.Fatalf("assign busy")
	}
	if ok, _ := drones.Deactivate(ctx, busy.ID); ok {
		t.Fatalf("drone with an order deactivated")
	}
}

func TestDroneRepository_Listings(t *testing.T) {
	drones := NewDroneRepository(openTestDB(t))
	ctx := context.Background()

	a := createDrone(t, drones, "r1", "a", 60)
	b := createDrone(t, drones, "r1", "b", 90)
	c := createDrone(t, drones, "r1", "c", 10)
	other := createDrone(t, drones, "r2", "other", 100)
	if _, err := drones.Deactivate(ctx, other.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	avail, err := drones.ListAvailable(ctx, "r1", 20)
	if err != nil {
		t.Fatalf("list available: %v", err)
	}
	if len(avail) != 2 || avail[0].ID != b.ID || avail[1].ID != a.ID {
		t.Fatalf("expected b then a (best charged first), got %+v", avail)
	}

	mine, err := drones.ListByRestaurant(ctx, "r1")
	if err != nil || len(mine) != 3 || mine[2].ID != c.ID {
		t.Fatalf("list by restaurant: %v %+v", err, mine)
	}

	page, err := drones.ListAdmin(ctx, ListDronesAdminParams{PageSize: 2})
	if err != nil || len(page) != 2 {
		t.Fatalf("admin page 1: %v len=%d", err, len(page))
	}
	rest, err := drones.ListAdmin(ctx, ListDronesAdminParams{PageSize: 2, AfterID: page[1].ID})
	if err != nil || len(rest) != 1 || rest[0].ID != c.ID {
		t.Fatalf("admin page 2: %v %+v", err, rest)
	}
	all, err := drones.ListAdmin(ctx, ListDronesAdminParams{IncludeInactive: true, RestaurantID: "r2"})
	if err != nil || len(all) != 1 || all[0].ID != other.ID {
		t.Fatalf("admin inactive filter: %v %+v", err, all)
	}
	if _, err := drones.Assign(ctx, a.ID, 5, 20); err != nil {
		t.Fatalf("assign: %v", err)
	}
	delivering, err := drones.ListAdmin(ctx, ListDronesAdminParams{Statuses: []models.DroneStatus{models.DroneStatusDelivering}})
	if err != nil || len(delivering) != 1 || delivering[0].ID != a.ID {
		t.Fatalf("admin status filter: %v %+v", err, delivering)
	}
}
