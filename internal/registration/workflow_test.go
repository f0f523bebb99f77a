package registration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droneDeliveryCoordinator/internal/fleet"
	"droneDeliveryCoordinator/internal/testutil"
	"droneDeliveryCoordinator/models"
	"droneDeliveryCoordinator/repository"
)

var (
	restaurantHome = models.Coordinates{Lat: 10.7769, Lng: 106.7009}
	owner          = models.Actor{Role: models.RoleRestaurant, Subject: "alice", RestaurantID: "r1"}
	admin          = models.Actor{Role: models.RoleAdmin, Subject: "root"}
)

type fixture struct {
	store    *repository.Store
	registry *fleet.Registry
	wf       *Workflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewStore(t)
	require.NoError(t, store.Restaurants.Upsert(context.Background(), &models.Restaurant{
		ID: "r1", Name: "Pho 24", Owner: "alice", Location: restaurantHome,
	}))
	reg := fleet.NewRegistry(store, testutil.Logger())
	return &fixture{store: store, registry: reg, wf: New(store, reg, store.Restaurants, testutil.Logger())}
}

func validInput() RegistrationInput {
	return RegistrationInput{Name: "falcon", Model: "DJI-M300", MaxPayloadKg: 2.5, MaxSpeedKmh: 40}
}

func TestApproveRegistration_CreatesIdleDrone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.wf.SubmitRegistration(ctx, owner, validInput())
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, req.Status)
	assert.Equal(t, "Pho 24", req.RestaurantName)
	require.NotNil(t, req.Home)
	assert.Equal(t, restaurantHome, *req.Home, "home defaults to the restaurant location")

	got, err := f.wf.Approve(ctx, admin, req.ID, "looks good")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, got.Status)
	assert.Equal(t, "root", got.AdminID)
	require.NotNil(t, got.ResolvedAt)
	require.NotNil(t, got.DroneID)

	d, err := f.registry.Get(ctx, *got.DroneID)
	require.NoError(t, err)
	assert.Equal(t, models.DroneStatusIdle, d.Status)
	assert.Equal(t, 100.0, d.BatteryPercent)
	assert.Equal(t, "r1", d.RestaurantID)
	assert.Equal(t, 2.5, d.MaxPayloadKg)
	assert.Equal(t, 40.0, d.MaxSpeedKmh)

	_, err = f.wf.Approve(ctx, admin, req.ID, "again")
	assert.ErrorIs(t, err, models.ErrRequestAlreadyResolved)
	_, err = f.wf.Reject(ctx, admin, req.ID, "too late")
	assert.ErrorIs(t, err, models.ErrRequestAlreadyResolved)
}

func TestSubmitRegistration_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := validInput()
	bad.MaxPayloadKg = 0
	_, err := f.wf.SubmitRegistration(ctx, owner, bad)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	bad = validInput()
	bad.Name = "  "
	_, err = f.wf.SubmitRegistration(ctx, owner, bad)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	bad = validInput()
	bad.Home = &models.Coordinates{Lat: 91, Lng: 0}
	_, err = f.wf.SubmitRegistration(ctx, owner, bad)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = f.wf.SubmitRegistration(ctx, admin, validInput())
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	unknown := models.Actor{Role: models.RoleRestaurant, RestaurantID: "ghost"}
	_, err = f.wf.SubmitRegistration(ctx, unknown, validInput())
	assert.ErrorIs(t, err, models.ErrInvalidArgument, "no home and no restaurant location")
}

func TestReject_RequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.wf.SubmitRegistration(ctx, owner, validInput())
	require.NoError(t, err)

	_, err = f.wf.Reject(ctx, admin, req.ID, "   ")
	assert.ErrorIs(t, err, models.ErrReasonRequired)
	still, err := f.wf.Get(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, still.Status)

	got, err := f.wf.Reject(ctx, admin, req.ID, "unknown model")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusRejected, got.Status)
	assert.Equal(t, "unknown model", got.AdminNote)
	assert.Nil(t, got.DroneID)

	_, err = f.wf.Approve(ctx, admin, req.ID, "")
	assert.ErrorIs(t, err, models.ErrRequestAlreadyResolved)
}

func TestApproveDeletion_BusyDroneStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := testutil.SeedDrone(t, f.store, "r1", restaurantHome)

	req, err := f.wf.SubmitDeletion(ctx, owner, d.ID, "crashed once")
	require.NoError(t, err)
	assert.Equal(t, models.RequestTypeDeleteDrone, req.Type)

	_, err = f.wf.SubmitDeletion(ctx, owner, d.ID, "again")
	assert.ErrorIs(t, err, models.ErrInvalidArgument, "one pending deletion per drone")

	require.NoError(t, f.registry.Assign(ctx, d.ID, 55, fleet.DefaultMinBattery))
	_, err = f.wf.Approve(ctx, admin, req.ID, "ok")
	assert.ErrorIs(t, err, models.ErrDroneBusy)

	still, err := f.wf.Get(ctx, owner, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, still.Status)
	got, _ := f.registry.Get(ctx, d.ID)
	assert.True(t, got.Active)
	assert.Equal(t, models.DroneStatusDelivering, got.Status)
}

func TestApproveDeletion_RetiresIdleDrone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := testutil.SeedDrone(t, f.store, "r1", restaurantHome)

	req, err := f.wf.SubmitDeletion(ctx, owner, d.ID, "")
	require.NoError(t, err)
	got, err := f.wf.Approve(ctx, admin, req.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, got.Status)

	dr, _ := f.registry.Get(ctx, d.ID)
	assert.False(t, dr.Active)
}

func TestSubmitDeletion_ForeignDroneDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := testutil.SeedDrone(t, f.store, "r2", restaurantHome)
	_, err := f.wf.SubmitDeletion(ctx, owner, d.ID, "")
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
	_, err = f.wf.SubmitDeletion(ctx, owner, 4040, "")
	assert.ErrorIs(t, err, models.ErrDroneNotFound)
}

func TestListings_PendingFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.wf.SubmitRegistration(ctx, owner, validInput())
	require.NoError(t, err)
	second, err := f.wf.SubmitRegistration(ctx, owner, validInput())
	require.NoError(t, err)
	_, err = f.wf.Approve(ctx, admin, second.ID, "")
	require.NoError(t, err)
	third, err := f.wf.SubmitRegistration(ctx, owner, validInput())
	require.NoError(t, err)

	all, err := f.wf.List(ctx, admin, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{third.ID, first.ID, second.ID}, []int64{all[0].ID, all[1].ID, all[2].ID})

	pending, err := f.wf.List(ctx, admin, models.RequestStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	mine, err := f.wf.ListMine(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, mine, 3)
	assert.Equal(t, models.RequestStatusPending, mine[0].Status)

	_, err = f.wf.List(ctx, owner, "")
	assert.ErrorIs(t, err, models.ErrPermissionDenied)
}
