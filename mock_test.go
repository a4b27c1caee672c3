package msgq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

type mockMessage struct {
	body   string
	ackErr error

	acked     int64
	ackCtxErr error
}

func (m *mockMessage) Body() []byte { return []byte(m.body) }

func (m *mockMessage) Ack(ctx context.Context) error {
	m.ackCtxErr = ctx.Err()
	if m.ackErr != nil {
		return m.ackErr
	}
	atomic.AddInt64(&m.acked, 1)
	return nil
}

func (m *mockMessage) Acked() int64 { return atomic.LoadInt64(&m.acked) }

type mockSubscription struct {
	queue    string
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
	released int64
}

func (s *mockSubscription) Queue() string         { return s.queue }
func (s *mockSubscription) Done() <-chan struct{} { return s.done }
func (s *mockSubscription) Err() error            { return s.err }
func (s *mockSubscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *mockSubscription) Released() int64 { return atomic.LoadInt64(&s.released) }

type mockDelivery struct {
	model      DeliveryModel
	subscribe  func(ctx context.Context, queue string, dispatch DispatchFunc) (Subscription, error)
	subscribed int64

	mu   sync.Mutex
	subs map[string]*mockSubscription
}

func (d *mockDelivery) Model() DeliveryModel { return d.model }

func (d *mockDelivery) Subscribe(ctx context.Context, queue string, dispatch DispatchFunc) (Subscription, error) {
	atomic.AddInt64(&d.subscribed, 1)
	return d.subscribe(ctx, queue, dispatch)
}

func (d *mockDelivery) Subscribed() int64 { return atomic.LoadInt64(&d.subscribed) }

func (d *mockDelivery) sub(queue string) *mockSubscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subs[queue]
}

// newFeedDelivery generates a delivery which dispatches the supplied messages per queue in order
// and then idles until the subscription is cancelled.
func newFeedDelivery(model DeliveryModel, feed map[string][]*mockMessage) *mockDelivery {
	d := &mockDelivery{model: model, subs: make(map[string]*mockSubscription)}
	d.subscribe = func(ctx context.Context, queue string, dispatch DispatchFunc) (Subscription, error) {
		ctx, cancel := context.WithCancel(ctx)
		s := &mockSubscription{queue: queue, cancel: cancel, done: make(chan struct{})}
		d.mu.Lock()
		d.subs[queue] = s
		d.mu.Unlock()

		go func() {
			defer close(s.done)
			for _, m := range feed[queue] {
				if ctx.Err() != nil {
					break
				}
				dispatch(ctx, m)
			}
			<-ctx.Done()
			atomic.AddInt64(&s.released, 1)
		}()
		return s, nil
	}
	return d
}

// newFailingDelivery generates a delivery where subscribing always fails.
func newFailingDelivery(model DeliveryModel) *mockDelivery {
	d := &mockDelivery{model: model}
	d.subscribe = func(_ context.Context, _ string, _ DispatchFunc) (Subscription, error) {
		return nil, errors.New("could not declare queue")
	}
	return d
}

// eventRecorder collects observed events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) Kinds(queue string) []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []EventKind
	for _, e := range r.events {
		if e.Queue == queue {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

func (r *eventRecorder) Find(kind EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Kind == kind {
			return e, true
		}
	}
	return Event{}, false
}
