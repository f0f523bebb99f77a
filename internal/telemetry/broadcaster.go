// Package telemetry fans drone telemetry out to subscribers addressed by drone or order.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"droneDeliveryCoordinator/models"
)

const (
	defaultBuffer    = 64
	defaultSinkQueue = 1024
	sinkTimeout      = 2 * time.Second
)

// Sink receives every published message for delivery outside the process.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

// Subscription is one subscriber's bounded mailbox. When the subscriber falls behind,
// the oldest buffered message is dropped in favour of the newest; order is never changed.
type Subscription struct {
	ID    string
	Topic Topic

	mu      sync.Mutex
	ch      chan Message
	closed  bool
	dropped uint64
}

// C is closed when the subscription ends.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Dropped returns how many messages were discarded for this subscriber.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) offer(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- m:
		return
	default:
	}
	select {
	case <-s.ch:
		s.dropped++
	default:
	}
	select {
	case s.ch <- m:
	default:
		s.dropped++
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithBuffer sets the per-subscriber mailbox size.
func WithBuffer(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithSink adds an out-of-process sink.
func WithSink(s Sink) Option {
	return func(b *Broadcaster) {
		if s != nil {
			b.sinks = append(b.sinks, s)
		}
	}
}

// Broadcaster is an in-process pub/sub hub. Publishing never blocks on subscribers or sinks.
type Broadcaster struct {
	log    *logrus.Entry
	buffer int
	sinks  []Sink

	mu     sync.RWMutex
	topics map[Topic]map[string]*Subscription
	latest map[int64]models.TelemetrySample

	sinkQueue chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewBroadcaster(log *logrus.Entry, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		log:       log,
		buffer:    defaultBuffer,
		topics:    make(map[Topic]map[string]*Subscription),
		latest:    make(map[int64]models.TelemetrySample),
		sinkQueue: make(chan Message, defaultSinkQueue),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.sinks) > 0 {
		b.wg.Add(1)
		go b.runSinks()
	}
	return b
}

// Subscribe opens a mailbox on topic.
func (b *Broadcaster) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{ID: uuid.NewString(), Topic: topic, ch: make(chan Message, b.buffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[string]*Subscription)
		b.topics[topic] = subs
	}
	subs[sub.ID] = sub
	b.log.WithFields(logrus.Fields{"topic": topic, "subscription": sub.ID}).Debug("subscribed")
	return sub
}

// Unsubscribe removes and closes a subscription. Safe to call more than once.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if subs, ok := b.topics[sub.Topic]; ok {
		delete(subs, sub.ID)
		if len(subs) == 0 {
			delete(b.topics, sub.Topic)
		}
	}
	b.mu.Unlock()
	sub.close()
}

// CloseTopic ends every subscription on topic, e.g. when a delivery finishes.
func (b *Broadcaster) CloseTopic(topic Topic) {
	b.mu.Lock()
	subs := b.topics[topic]
	delete(b.topics, topic)
	b.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Broadcaster) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// PublishSample sends one POSITION message to both the drone and the order topic.
func (b *Broadcaster) PublishSample(s models.TelemetrySample) {
	b.mu.Lock()
	b.latest[s.DroneID] = s
	b.mu.Unlock()
	b.publish(newPositionMessage(s))
}

// PublishPhase announces a delivery phase change.
func (b *Broadcaster) PublishPhase(droneID, orderID int64, phase Phase, status models.DroneStatus) {
	b.publish(newPhaseMessage(droneID, orderID, phase, status))
}

// Latest returns the most recent sample for a drone.
func (b *Broadcaster) Latest(droneID int64) (models.TelemetrySample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.latest[droneID]
	return s, ok
}

func (b *Broadcaster) publish(m Message) {
	b.mu.RLock()
	var targets []*Subscription
	for _, topic := range []Topic{DroneTopic(m.DroneID), OrderTopic(m.OrderID)} {
		for _, s := range b.topics[topic] {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()
	for _, s := range targets {
		s.offer(m)
	}

	if len(b.sinks) == 0 {
		return
	}
	select {
	case <-b.done:
	case b.sinkQueue <- m:
	default:
		b.log.WithField("message_type", m.Type).Warn("sink queue full, message dropped")
	}
}

func (b *Broadcaster) runSinks() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case m := <-b.sinkQueue:
			for _, sink := range b.sinks {
				ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
				if err := sink.Deliver(ctx, m); err != nil {
					b.log.WithError(err).WithFields(logrus.Fields{"drone_id": m.DroneID, "order_id": m.OrderID}).
						Warn("sink delivery failed")
				}
				cancel()
			}
		}
	}
}

// Close stops sink delivery and ends all subscriptions.
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
		b.mu.Lock()
		topics := b.topics
		b.topics = make(map[Topic]map[string]*Subscription)
		b.mu.Unlock()
		for _, subs := range topics {
			for _, s := range subs {
				s.close()
			}
		}
	})
}
