// Package httpapi is the REST and WebSocket gateway for drones and watchers that cannot speak gRPC.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"droneDeliveryCoordinator/internal/auth"
	"droneDeliveryCoordinator/internal/config"
	"droneDeliveryCoordinator/internal/dispatch"
	"droneDeliveryCoordinator/internal/telemetry"
	"droneDeliveryCoordinator/models"
)

// LatestStore is a fallback source for a drone's most recent sample, e.g. the Redis sink.
type LatestStore interface {
	Latest(ctx context.Context, droneID int64) (*models.TelemetrySample, error)
}

// Deps are the services the gateway exposes.
type Deps struct {
	Users       auth.UserLookup
	Correlator  *dispatch.Correlator
	Broadcaster *telemetry.Broadcaster
	Latest      LatestStore // optional
	Log         *logrus.Entry
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server holds the HTTP handlers.
type Server struct {
	deps Deps
}

// New returns an echo instance with every route registered behind JWT authentication.
func New(secret string, deps Deps) *echo.Echo {
	s := &Server{deps: deps}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(auth.EchoMiddleware(secret, "/health"))

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "Healthy")
	})
	e.GET("/ws/drones/:id", s.WatchDrone)
	e.GET("/ws/orders/:id", s.WatchOrder)

	api := e.Group("/api/v1")
	api.POST("/drones/:id/arrived", s.NotifyArrived)
	api.POST("/drones/:id/returned-to-base", s.NotifyReturned)
	api.POST("/drones/:id/telemetry", s.ReportTelemetry)
	api.GET("/drones/:id/telemetry/latest", s.LatestTelemetry)
	api.POST("/orders/:orderId/confirm-delivery", s.ConfirmDelivery)
	api.GET("/delivery-logs/order/:orderId", s.GetDeliveryLog)
	api.GET("/delivery-logs/order/:orderId/route", s.GetRoute)
	return e
}

// Start serves on the configured address and returns a shutdown function.
func Start(cfg *config.Config, deps Deps) (func(context.Context) error, error) {
	addr := cfg.HTTP.Address
	if addr == "" {
		addr = ":8080"
	}
	e := New(cfg.Auth.JWTSecret, deps)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Log.WithError(err).Error("http server stopped")
		}
	}()
	return e.Shutdown, nil
}

func (s *Server) actor(c echo.Context) (models.Actor, error) {
	return auth.ActorFromContext(c.Request().Context(), s.deps.Users)
}

func idParam(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", models.ErrInvalidArgument, name, c.Param(name))
	}
	return id, nil
}

// fail writes err as a JSON error response.
func (s *Server) fail(c echo.Context, err error) error {
	code := httpStatus(err)
	if code >= http.StatusInternalServerError {
		s.deps.Log.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	return c.JSON(code, ErrorResponse{Code: code, Message: err.Error()})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, models.ErrDroneNotFound),
		errors.Is(err, models.ErrOrderNotFound),
		errors.Is(err, models.ErrDeliveryNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDroneUnavailable),
		errors.Is(err, models.ErrDroneBusy),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrOrderNotProcessing),
		errors.Is(err, models.ErrCapacityExceeded):
		return http.StatusConflict
	case errors.Is(err, models.ErrOrderService):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// NotifyArrived handles POST /api/v1/drones/:id/arrived.
func (s *Server) NotifyArrived(c echo.Context) error {
	a, err := s.actor(c)
	if err != nil {
		return s.fail(c, err)
	}
	id, err := idParam(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	d, err := s.deps.Correlator.NotifyArrived(c.Request().Context(), a, id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// NotifyReturned handles POST /api/v1/drones/:id/returned-to-base.
func (s *Server) NotifyReturned(c echo.Context) error {
	a, err := s.actor(c)
	if err != nil {
		return s.fail(c, err)
	}
	id, err := idParam(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	d, err := s.deps.Correlator.NotifyReturned(c.Request().Context(), a, id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// ReportTelemetry handles POST /api/v1/drones/:id/telemetry. The path id wins over the body.
func (s *Server) ReportTelemetry(c echo.Context) error {
	a, err := s.actor(c)
	if err != nil {
		return s.fail(c, err)
	}
	id, err := idParam(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	var sample models.TelemetrySample
	if err := c.Bind(&sample); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: http.StatusBadRequest, Message: "invalid request body"})
	}
	sample.DroneID = id
	if err := s.deps.Correlator.IngestTelemetry(c.Request().Context(), a, sample); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

// LatestTelemetry handles GET /api/v1/drones/:id/telemetry/latest.
func (s *Server) LatestTelemetry(c echo.Context) error {
	a, err := s.actor(c)
	if err != nil {
		return s.fail(c, err)
	}
	id, err := idParam(c, "id")
	if err != nil {
		return s.fail(c, err)
	}
	ctx := c.Request().Context()
	if err := s.deps.Correlator.CanWatchDrone(ctx, a, id); err != nil {
		return s.fail(c, err)
	}
	if sample, ok := s.deps.Broadcaster.Latest(id); ok {
		return c.JSON(http.StatusOK, sample)
	}
	if s.deps.Latest != nil {
		sample, err := s.deps.Latest.Latest(ctx, id)
		if err != nil {
			return s.fail(c, err)
		}
		if sample != nil {
			return c.JSON(http.StatusOK, sample)
		}
	}
	return c.JSON(http.StatusNotFound, ErrorResponse{Code: http.StatusNotFound, Message: "no telemetry yet"})
}

// ConfirmDelivery handles POST /api/v1/orders/:orderId/confirm-delivery.
func (s *Server) ConfirmDelivery(c echo.Context) error {
	a, err := s.actor(c)
	if err != nil {
		return s.fail(c, err)
	}
	id, err := idParam(c, "orderId")
	if err != nil {
		return s.fail(c, err)
	}
	d, err := s.deps.Correlator.ConfirmDelivery(c.Request().Context(), a, id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

type deliveryLogResponse struct {
	Delivery *models.Delivery    `json:"delivery"`
	Route    []models.RoutePoint `json:"route"`
}

// GetDeliveryLog handles GET /api/v1/delivery-logs/order/:orderId.
func (s *Server) GetDeliveryLog(c echo.Context) error {
	a, err := s.actor(c)
	if err != nil {
		return s.fail(c, err)
	}
	id, err := idParam(c, "orderId")
	if err != nil {
		return s.fail(c, err)
	}
	l, err := s.deps.Correlator.GetDelivery(c.Request().Context(), a, id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, deliveryLogResponse{Delivery: l.Delivery, Route: l.Route})
}

// GetRoute handles GET /api/v1/delivery-logs/order/:orderId/route.
func (s *Server) GetRoute(c echo.Context) error {
	a, err := s.actor(c)
	if err != nil {
		return s.fail(c, err)
	}
	id, err := idParam(c, "orderId")
	if err != nil {
		return s.fail(c, err)
	}
	route, err := s.deps.Correlator.GetRoute(c.Request().Context(), a, id)
	if err != nil {
		return s.fail(c, err)
	}
	if route == nil {
		route = []models.RoutePoint{}
	}
	return c.JSON(http.StatusOK, route)
}
