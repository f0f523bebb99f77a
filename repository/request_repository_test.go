package repository

import (
	"context"
	"testing"

	"droneDeliveryCoordinator/models"
)

func TestRequestRepository_Lifecycle(t *testing.T) {
	repo := NewRequestRepository(openTestDB(t))
	ctx := context.Background()

	home := models.Coordinates{Lat: 10.7769, Lng: 106.7009}
	reg, err := repo.Create(ctx, &models.RegistrationRequest{
		RestaurantID: "r1", RestaurantName: "Pho 24", Type: models.RequestTypeRegisterNew,
		DroneName: "alpha", DroneModel: "DJI-X", MaxPayloadKg: 2, MaxSpeedKmh: 40, Home: &home,
	})
	if err != nil {
		t.Fatalf("create registration: %v", err)
	}
	if reg.ID == 0 || reg.Status != models.RequestStatusPending {
		t.Fatalf("unexpected created request: %+v", reg)
	}

	droneID := int64(5)
	del, err := repo.Create(ctx, &models.RegistrationRequest{
		RestaurantID: "r1", Type: models.RequestTypeDeleteDrone, DroneID: &droneID, Reason: "retired",
	})
	if err != nil {
		t.Fatalf("create deletion: %v", err)
	}
	if _, err := repo.Create(ctx, &models.RegistrationRequest{RestaurantID: "r2", Type: models.RequestTypeRegisterNew, DroneName: "beta"}); err != nil {
		t.Fatalf("create other: %v", err)
	}

	got, err := repo.GetByID(ctx, reg.ID)
	if err != nil || got == nil || got.Home == nil || *got.Home != home || got.DroneID != nil {
		t.Fatalf("get: %+v err=%v", got, err)
	}
	if none, err := repo.GetByID(ctx, 999); err != nil || none != nil {
		t.Fatalf("expected nil for unknown request, got %+v err=%v", none, err)
	}

	pending, err := repo.HasPendingDeletion(ctx, droneID)
	if err != nil || !pending {
		t.Fatalf("expected pending deletion: %v err=%v", pending, err)
	}

	// approval links the created drone; a second resolution never applies
	newDrone := int64(9)
	if ok, err := repo.Resolve(ctx, reg.ID, models.RequestStatusApproved, "root", "ok", &newDrone); err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if ok, _ := repo.Resolve(ctx, reg.ID, models.RequestStatusRejected, "root", "changed mind", nil); ok {
		t.Fatalf("terminal request resolved twice")
	}
	got, _ = repo.GetByID(ctx, reg.ID)
	if got.Status != models.RequestStatusApproved || got.AdminID != "root" || got.DroneID == nil || *got.DroneID != 9 || got.ResolvedAt == nil {
		t.Fatalf("unexpected resolved request: %+v", got)
	}

	if ok, _ := repo.Resolve(ctx, del.ID, models.RequestStatusRejected, "root", "still needed", nil); !ok {
		t.Fatalf("reject deletion")
	}
	if pending, _ := repo.HasPendingDeletion(ctx, droneID); pending {
		t.Fatalf("rejected deletion still pending")
	}
	got, _ = repo.GetByID(ctx, del.ID)
	if got.DroneID == nil || *got.DroneID != droneID {
		t.Fatalf("rejection must keep the target drone: %+v", got)
	}

	mine, err := repo.ListByRestaurant(ctx, "r1")
	if err != nil || len(mine) != 2 {
		t.Fatalf("list by restaurant: %v len=%d", err, len(mine))
	}
	open, err := repo.List(ctx, models.RequestStatusPending)
	if err != nil || len(open) != 1 || open[0].RestaurantID != "r2" {
		t.Fatalf("list pending: %v %+v", err, open)
	}
	all, _ := repo.List(ctx, "")
	if len(all) != 3 || all[0].Status != models.RequestStatusPending {
		t.Fatalf("expected pending first, got %+v", all)
	}
}
