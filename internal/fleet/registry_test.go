package fleet

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droneDeliveryCoordinator/internal/testutil"
	"droneDeliveryCoordinator/models"
	"droneDeliveryCoordinator/repository"
)

var home = models.Coordinates{Lat: 10.7769, Lng: 106.7009}

func newRegistry(t *testing.T) (*Registry, *repository.Store) {
	t.Helper()
	store := testutil.NewStore(t)
	return NewRegistry(store, testutil.Logger()), store
}

func TestRegister_CreatesIdleFullyChargedDrone(t *testing.T) {
	reg, _ := newRegistry(t)
	d, err := reg.Register(context.Background(), NewDrone{RestaurantID: "r1", Name: "falcon", Model: "DJI", Home: home})
	require.NoError(t, err)
	assert.Equal(t, models.DroneStatusIdle, d.Status)
	assert.Equal(t, 100.0, d.BatteryPercent)
	assert.True(t, d.Active)
	assert.Nil(t, d.AssignedOrderID)
	assert.Equal(t, models.DefaultMaxPayloadKg, d.MaxPayloadKg)
	assert.Equal(t, models.DefaultMaxSpeedKmh, d.MaxSpeedKmh)
	require.NotNil(t, d.Current)
	assert.Equal(t, home, *d.Current)

	_, err = reg.Register(context.Background(), NewDrone{RestaurantID: "r1", Home: home})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestGet_NotFound(t *testing.T) {
	reg, _ := newRegistry(t)
	_, err := reg.Get(context.Background(), 404)
	assert.ErrorIs(t, err, models.ErrDroneNotFound)
}

func TestGetFor_DroneTokensMatchByIDOnly(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()
	mine, err := reg.Register(ctx, NewDrone{RestaurantID: "r1", Name: "falcon", Model: "DJI", Home: home})
	require.NoError(t, err)
	theirs, err := reg.Register(ctx, NewDrone{RestaurantID: "r2", Name: "falcon", Model: "DJI", Home: home})
	require.NoError(t, err)

	_, err = reg.GetFor(ctx, models.DroneActor(mine.ID), mine.ID)
	assert.NoError(t, err)
	_, err = reg.GetFor(ctx, models.DroneActor(mine.ID), theirs.ID)
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	byName := models.Actor{Role: models.RoleDrone, Subject: "falcon"}
	for _, d := range []*models.Drone{mine, theirs} {
		_, err = reg.GetFor(ctx, byName, d.ID)
		assert.ErrorIs(t, err, models.ErrPermissionDenied, "drone %d", d.ID)
	}
}

func TestLifecycle_FullCycle(t *testing.T) {
	reg, store := newRegistry(t)
	ctx := context.Background()
	d := testutil.SeedDrone(t, store, "r1", home)

	require.NoError(t, reg.Assign(ctx, d.ID, 77, DefaultMinBattery))
	got, _ := reg.Get(ctx, d.ID)
	assert.Equal(t, models.DroneStatusDelivering, got.Status)
	require.NotNil(t, got.AssignedOrderID)
	assert.Equal(t, int64(77), *got.AssignedOrderID)

	changed, err := reg.MarkArrived(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = reg.MarkArrived(ctx, d.ID)
	require.NoError(t, err, "arrival is idempotent")
	assert.False(t, changed)

	require.NoError(t, reg.StartReturn(ctx, d.ID))
	assert.ErrorIs(t, reg.StartReturn(ctx, d.ID), models.ErrInvalidTransition)

	changed, err = reg.MarkReturned(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = reg.MarkReturned(ctx, d.ID)
	require.NoError(t, err, "return is idempotent")
	assert.False(t, changed)

	got, _ = reg.Get(ctx, d.ID)
	assert.Equal(t, models.DroneStatusIdle, got.Status)
	assert.Nil(t, got.AssignedOrderID)
	assert.Equal(t, 1, got.TotalDeliveries)
}

func TestAssign_FailuresDoNotMutate(t *testing.T) {
	reg, store := newRegistry(t)
	ctx := context.Background()

	low := testutil.SeedDrone(t, store, "r1", home)
	require.NoError(t, store.Drones.SetBattery(ctx, low.ID, 15))
	err := reg.Assign(ctx, low.ID, 1, DefaultMinBattery)
	assert.ErrorIs(t, err, models.ErrDroneUnavailable)
	got, _ := reg.Get(ctx, low.ID)
	assert.Equal(t, models.DroneStatusIdle, got.Status)
	assert.Nil(t, got.AssignedOrderID)
	assert.Equal(t, 15.0, got.BatteryPercent)

	busy := testutil.SeedDrone(t, store, "r1", home)
	require.NoError(t, reg.Assign(ctx, busy.ID, 2, DefaultMinBattery))
	assert.ErrorIs(t, reg.Assign(ctx, busy.ID, 3, DefaultMinBattery), models.ErrDroneUnavailable)
	got, _ = reg.Get(ctx, busy.ID)
	assert.Equal(t, int64(2), *got.AssignedOrderID)

	assert.ErrorIs(t, reg.Assign(ctx, 9999, 4, DefaultMinBattery), models.ErrDroneNotFound)
}

func TestAssign_ConcurrentExactlyOneWins(t *testing.T) {
	reg, store := newRegistry(t)
	d := testutil.SeedDrone(t, store, "r1", home)

	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(order int64) {
			defer wg.Done()
			err := reg.Assign(context.Background(), d.ID, order, DefaultMinBattery)
			if err == nil {
				wins.Add(1)
			} else if assert.ErrorIs(t, err, models.ErrDroneUnavailable) {
				losses.Add(1)
			}
		}(int64(100 + i))
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(7), losses.Load())
}

func TestInvalidTransitions(t *testing.T) {
	reg, store := newRegistry(t)
	ctx := context.Background()
	d := testutil.SeedDrone(t, store, "r1", home)

	_, err := reg.MarkArrived(ctx, d.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "IDLE cannot arrive")
	assert.ErrorIs(t, reg.StartReturn(ctx, d.ID), models.ErrInvalidTransition)

	require.NoError(t, reg.Assign(ctx, d.ID, 5, DefaultMinBattery))
	_, err = reg.MarkReturned(ctx, d.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "DELIVERING cannot return")
	_, err = reg.SetMaintenance(ctx, models.SystemActor, d.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestMaintenance(t *testing.T) {
	reg, store := newRegistry(t)
	ctx := context.Background()
	d := testutil.SeedDrone(t, store, "r1", home)
	owner := models.Actor{Role: models.RoleRestaurant, Subject: "alice", RestaurantID: "r1"}
	stranger := models.Actor{Role: models.RoleRestaurant, Subject: "bob", RestaurantID: "r2"}

	_, err := reg.SetMaintenance(ctx, stranger, d.ID)
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	got, err := reg.SetMaintenance(ctx, owner, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DroneStatusMaintenance, got.Status)
	assert.ErrorIs(t, reg.Assign(ctx, d.ID, 1, DefaultMinBattery), models.ErrDroneUnavailable)

	got, err = reg.ClearMaintenance(ctx, owner, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DroneStatusIdle, got.Status)
}

func TestDeactivate_OnlyFromIdle(t *testing.T) {
	reg, store := newRegistry(t)
	ctx := context.Background()
	d := testutil.SeedDrone(t, store, "r1", home)

	require.NoError(t, reg.Assign(ctx, d.ID, 1, DefaultMinBattery))
	assert.ErrorIs(t, reg.Deactivate(ctx, d.ID), models.ErrDroneBusy)

	idle := testutil.SeedDrone(t, store, "r1", home)
	require.NoError(t, reg.Deactivate(ctx, idle.ID))
	require.NoError(t, reg.Deactivate(ctx, idle.ID))
	got, _ := reg.Get(ctx, idle.ID)
	assert.False(t, got.Active)
	assert.ErrorIs(t, reg.Assign(ctx, idle.ID, 2, DefaultMinBattery), models.ErrDroneUnavailable)

	list, err := reg.ListByRestaurant(ctx, models.SystemActor, "r1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, d.ID, list[0].ID)
}

func TestRecordPosition_ClampsBattery(t *testing.T) {
	reg, store := newRegistry(t)
	ctx := context.Background()
	d := testutil.SeedDrone(t, store, "r1", home)
	pos := models.Coordinates{Lat: 10.8, Lng: 106.65}

	require.NoError(t, reg.RecordPosition(ctx, d.ID, pos, -5))
	got, _ := reg.Get(ctx, d.ID)
	assert.Equal(t, 0.0, got.BatteryPercent)
	assert.Equal(t, pos, *got.Current)

	require.NoError(t, reg.RecordPosition(ctx, d.ID, pos, 140))
	got, _ = reg.Get(ctx, d.ID)
	assert.Equal(t, 100.0, got.BatteryPercent)
}

func TestListAvailable_FiltersByBatteryAndStatus(t *testing.T) {
	reg, store := newRegistry(t)
	ctx := context.Background()
	a := testutil.SeedDrone(t, store, "r1", home)
	b := testutil.SeedDrone(t, store, "r1", home)
	c := testutil.SeedDrone(t, store, "r1", home)
	testutil.SeedDrone(t, store, "r2", home)
	require.NoError(t, store.Drones.SetBattery(ctx, b.ID, 10))
	require.NoError(t, reg.Assign(ctx, c.ID, 1, DefaultMinBattery))

	owner := models.Actor{Role: models.RoleRestaurant, RestaurantID: "r1"}
	got, err := reg.ListAvailable(ctx, owner, "r1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)

	_, err = reg.ListAvailable(ctx, owner, "r2", 0)
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	_, err = reg.ListAll(ctx, owner, repository.ListDronesAdminParams{})
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
	all, err := reg.ListAll(ctx, models.Actor{Role: models.RoleAdmin}, repository.ListDronesAdminParams{PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
