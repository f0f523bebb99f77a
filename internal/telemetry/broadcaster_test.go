package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droneDeliveryCoordinator/models"
)

func newTestBroadcaster(t *testing.T, opts ...Option) *Broadcaster {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	b := NewBroadcaster(logger.WithField("component", "telemetry"), opts...)
	t.Cleanup(b.Close)
	return b
}

func sample(drone, order int64, lat float64) models.TelemetrySample {
	return models.TelemetrySample{DroneID: drone, OrderID: order, Lat: lat, Lng: 106.7, BatteryPercent: 90,
		SpeedKmh: 45, Leg: models.LegOutbound, Timestamp: time.Now()}
}

func receive(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case m, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return m
	case <-time.After(time.Second):
		t.Fatalf("no message on %s", sub.Topic)
	}
	return Message{}
}

func TestBroadcaster_PositionReachesDroneAndOrderTopics(t *testing.T) {
	b := newTestBroadcaster(t)
	byDrone := b.Subscribe(DroneTopic(1))
	byOrder := b.Subscribe(OrderTopic(42))
	other := b.Subscribe(DroneTopic(2))

	b.PublishSample(sample(1, 42, 10.0))

	m1 := receive(t, byDrone)
	m2 := receive(t, byOrder)
	assert.Equal(t, MessagePosition, m1.Type)
	assert.Equal(t, m1.ID, m2.ID)
	require.NotNil(t, m1.Sample)
	assert.Equal(t, 10.0, m1.Sample.Lat)
	assert.Empty(t, other.C())

	latest, ok := b.Latest(1)
	require.True(t, ok)
	assert.Equal(t, 10.0, latest.Lat)
}

func TestBroadcaster_PhaseIsDistinctMessageType(t *testing.T) {
	b := newTestBroadcaster(t)
	sub := b.Subscribe(OrderTopic(42))
	b.PublishPhase(1, 42, PhaseArrived, models.DroneStatusArrived)
	m := receive(t, sub)
	assert.Equal(t, MessagePhase, m.Type)
	assert.Equal(t, PhaseArrived, m.Phase)
	assert.Nil(t, m.Sample)
}

func TestBroadcaster_SlowSubscriberDropsOldestKeepsOrder(t *testing.T) {
	b := newTestBroadcaster(t, WithBuffer(4))
	sub := b.Subscribe(DroneTopic(1))
	for i := 0; i < 10; i++ {
		b.PublishSample(sample(1, 42, float64(i)))
	}
	assert.Equal(t, uint64(6), sub.Dropped())

	var got []float64
	for i := 0; i < 4; i++ {
		got = append(got, receive(t, sub).Sample.Lat)
	}
	assert.Equal(t, []float64{6, 7, 8, 9}, got)
}

func TestBroadcaster_PublishDoesNotBlockWithoutReaders(t *testing.T) {
	b := newTestBroadcaster(t, WithBuffer(1))
	b.Subscribe(DroneTopic(1))
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.PublishSample(sample(1, 42, float64(i)))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
}

func TestBroadcaster_UnsubscribeAndCloseTopic(t *testing.T) {
	b := newTestBroadcaster(t)
	s1 := b.Subscribe(OrderTopic(42))
	s2 := b.Subscribe(OrderTopic(42))
	assert.Equal(t, 2, b.Subscribers(OrderTopic(42)))

	b.Unsubscribe(s1)
	b.Unsubscribe(s1)
	_, ok := <-s1.C()
	assert.False(t, ok)
	assert.Equal(t, 1, b.Subscribers(OrderTopic(42)))

	b.CloseTopic(OrderTopic(42))
	_, ok = <-s2.C()
	assert.False(t, ok)
	assert.Zero(t, b.Subscribers(OrderTopic(42)))

	// Publishing after close is harmless.
	b.PublishSample(sample(1, 42, 1))
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []Message
	fail bool
}

func (s *recordingSink) Deliver(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
	if s.fail {
		return errors.New("boom")
	}
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func TestBroadcaster_SinkFailuresAreNonFatal(t *testing.T) {
	failing := &recordingSink{fail: true}
	ok := &recordingSink{}
	b := newTestBroadcaster(t, WithSink(failing), WithSink(ok))
	sub := b.Subscribe(DroneTopic(1))

	b.PublishSample(sample(1, 42, 1))
	b.PublishPhase(1, 42, PhaseIdle, models.DroneStatusIdle)

	receive(t, sub)
	receive(t, sub)
	require.Eventually(t, func() bool { return ok.count() == 2 && failing.count() == 2 }, time.Second, 5*time.Millisecond)
}
