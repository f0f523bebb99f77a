package testutil

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"google.golang.org/grpc/metadata"

	"droneDeliveryCoordinator/internal/db"
	"droneDeliveryCoordinator/models"
	"droneDeliveryCoordinator/repository"
)

var dbSeq atomic.Int64

// OpenInMemoryDB opens a private in-memory SQLite database and applies migrations.
// The name is derived from the test so parallel packages never share state.
func OpenInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := "file:" + name + "_" + strconv.FormatInt(dbSeq.Add(1), 10) + "?mode=memory&cache=shared"
	d, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// NewStore opens a fresh database and wraps it in a repository.Store.
func NewStore(t *testing.T) *repository.Store {
	t.Helper()
	return repository.NewStore(OpenInMemoryDB(t))
}

// Logger returns a logrus entry that discards output.
func Logger() *logrus.Entry {
	logger, _ := logtest.NewNullLogger()
	return logrus.NewEntry(logger)
}

// SeedDrone inserts an IDLE, active drone directly, bypassing the approval workflow.
func SeedDrone(t *testing.T, store *repository.Store, restaurantID string, home models.Coordinates) *models.Drone {
	t.Helper()
	d, err := store.Drones.Create(context.Background(), &models.Drone{
		RestaurantID:   restaurantID,
		Name:           "drone-" + restaurantID,
		Model:          "DJI-X",
		BatteryPercent: models.FullBattery,
		Home:           home,
		Active:         true,
	})
	if err != nil {
		t.Fatalf("seed drone: %v", err)
	}
	return d
}

// GenerateJWTHS256 returns a signed JWT string with the claims used by the app.
func GenerateJWTHS256(t *testing.T, secret, name, kind string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"name": name,
		"kind": kind,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// CtxWithBearer returns a context containing gRPC metadata Authorization header with the given token.
func CtxWithBearer(ctx context.Context, token string) context.Context {
	md := metadata.Pairs("authorization", "Bearer "+token)
	return metadata.NewIncomingContext(ctx, md)
}
