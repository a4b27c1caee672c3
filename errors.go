package msgq

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument is returned synchronously, before any I/O, when a queue name is empty or a handler is nil.
	ErrInvalidArgument = errors.New("msgq: invalid argument")
	// ErrAlreadySubscribed is returned when Receive is called for a queue name which already has an active
	// subscription on the same consumer.
	ErrAlreadySubscribed = errors.New("msgq: queue already subscribed")
	// ErrConsumerClosed is returned from Receive once the consumer has been closed.
	ErrConsumerClosed = errors.New("msgq: consumer closed")
	// ErrHandlerPanic wraps the recovered value of a panicking handler.
	ErrHandlerPanic = errors.New("msgq: handler panicked")
)

// ValidateQueueName checks that a queue name is usable, blank names are rejected.
func ValidateQueueName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: queue name cannot be empty", ErrInvalidArgument)
	}
	return nil
}
