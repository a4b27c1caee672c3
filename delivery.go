package msgq

import "context"

// DeliveryModel describes how a backend delivers messages, it also defines
// when Consumer.Receive returns.
type DeliveryModel int

const (
	// Poll the consumer requests batches with a bounded wait.
	// Receive blocks until the subscription has been torn down.
	Poll DeliveryModel = iota
	// Push the backend delivers to a registered consumer.
	// Receive returns as soon as the subscription is active, teardown runs
	// asynchronously once the context is cancelled; use Consumer.Wait to wait for it.
	Push
)

// String implements fmt.Stringer.
func (m DeliveryModel) String() string {
	switch m {
	case Poll:
		return "poll"
	case Push:
		return "push"
	default:
		return "unknown"
	}
}

// Message is a single delivered message, the delivery token used to acknowledge it is
// kept internal to the implementation.
type Message interface {
	// Body returns the raw payload.
	Body() []byte
	// Ack acknowledges the message (delete for poll backends, basic.ack for push backends).
	Ack(ctx context.Context) error
}

// DispatchFunc is invoked by a Delivery for every message in backend delivery order.
// It never returns an error, failures are contained by the consumer.
type DispatchFunc func(ctx context.Context, m Message)

// Subscription is the live binding between a queue name and a backend delivery stream.
type Subscription interface {
	// Queue returns the queue name this subscription was created for.
	Queue() string
	// Done is closed once teardown has completed and the backend resources have been released.
	Done() <-chan struct{}
	// Err returns the reason the subscription stopped for anything other than cancellation.
	// It is only valid after Done is closed.
	Err() error
	// Close triggers teardown and waits for it, it is safe to call multiple times and concurrently.
	Close() error
}

// Delivery is a backend delivery strategy.
type Delivery interface {
	// Model returns the delivery model of the backend.
	Model() DeliveryModel
	// Subscribe ensures the queue exists and starts delivering messages to dispatch until ctx is
	// cancelled or the subscription is closed. It returns once the subscription is active.
	Subscribe(ctx context.Context, queue string, dispatch DispatchFunc) (Subscription, error)
}
