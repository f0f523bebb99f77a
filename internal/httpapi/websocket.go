package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"droneDeliveryCoordinator/internal/telemetry"
	"droneDeliveryCoordinator/models"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WatchDrone handles GET /ws/drones/:id.
func (s *Server) WatchDrone(c echo.Context) error {
	return s.watch(c, "id", s.deps.Correlator.CanWatchDrone, telemetry.DroneTopic)
}

// WatchOrder handles GET /ws/orders/:id.
func (s *Server) WatchOrder(c echo.Context) error {
	return s.watch(c, "id", s.deps.Correlator.CanWatchOrder, telemetry.OrderTopic)
}

// watch authorizes before upgrading, then streams the topic as JSON text frames until
// either side goes away or the topic is closed.
func (s *Server) watch(c echo.Context, param string,
	allowed func(context.Context, models.Actor, int64) error, topicOf func(int64) telemetry.Topic) error {
	a, err := s.actor(c)
	if err != nil {
		return s.fail(c, err)
	}
	id, err := idParam(c, param)
	if err != nil {
		return s.fail(c, err)
	}
	if err := allowed(c.Request().Context(), a, id); err != nil {
		return s.fail(c, err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		s.deps.Log.WithError(err).Warn("websocket upgrade failed")
		return nil
	}
	defer conn.Close()

	topic := topicOf(id)
	sub := s.deps.Broadcaster.Subscribe(topic)
	defer s.deps.Broadcaster.Unsubscribe(sub)
	log := s.deps.Log.WithFields(logrus.Fields{"topic": topic, "subscriber": a.Subject})
	log.Debug("websocket subscribed")

	// Reads only serve control frames; a read error means the client left.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return nil
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		case msg, ok := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"))
				return nil
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("websocket write failed")
				return nil
			}
		}
	}
}
