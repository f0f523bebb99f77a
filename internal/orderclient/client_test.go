package orderclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droneDeliveryCoordinator/internal/testutil"
	"droneDeliveryCoordinator/models"
)

func TestClient_GetAndSetStatus(t *testing.T) {
	var gotStatus models.OrderStatus
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/orders/7":
			_ = json.NewEncoder(w).Encode(models.Order{ID: 7, RestaurantID: "r1", Status: models.OrderStatusProcessing,
				Destination: models.Coordinates{Lat: 10.79, Lng: 106.71}, PayloadKg: 1.5})
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/orders/7/status":
			var body statusRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			gotStatus = body.Status
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", testutil.Logger(), WithToken("svc-token"))
	o, err := c.GetOrder(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, o.Status)
	assert.Equal(t, 1.5, o.PayloadKg)
	assert.Equal(t, "Bearer svc-token", gotAuth)

	require.NoError(t, c.SetStatus(context.Background(), 7, models.OrderStatusShipped))
	assert.Equal(t, models.OrderStatusShipped, gotStatus)

	_, err = c.GetOrder(context.Background(), 8)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestClient_ServerErrorCarriesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"order already cancelled"}`))
	}))
	defer srv.Close()

	err := New(srv.URL, testutil.Logger()).SetStatus(context.Background(), 1, models.OrderStatusShipped)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "order already cancelled")
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, testutil.Logger()).GetOrder(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrOrderNotFound)
}
