package msgq

// EventKind identifies what happened on a subscription.
type EventKind string

const (
	// EventSubscribed a subscription became active.
	EventSubscribed EventKind = "subscribed"
	// EventAcked a message was handled and acknowledged.
	EventAcked EventKind = "acked"
	// EventHandlerFailed the handler returned an error (or panicked), the message was not acknowledged.
	EventHandlerFailed EventKind = "handler_failed"
	// EventAckFailed the handler succeeded but the acknowledgement could not be sent.
	EventAckFailed EventKind = "ack_failed"
	// EventFetchFailed a poll request to the backend failed.
	EventFetchFailed EventKind = "fetch_failed"
	// EventStopped a subscription was torn down.
	EventStopped EventKind = "stopped"
)

// Event is passed to an Observer.
type Event struct {
	Queue string
	Kind  EventKind
	Err   error // the cause for failure kinds, optionally for EventStopped.
}

// Observer receives consumer events, it is how hosting code can implement retry or dead-lettering
// policies externally. It is invoked synchronously from the delivery goroutine so it must not block.
type Observer func(e Event)

// observers fans an event out to multiple observers.
func observers(obs ...Observer) Observer {
	return func(e Event) {
		for _, o := range obs {
			if o != nil {
				o(e)
			}
		}
	}
}
