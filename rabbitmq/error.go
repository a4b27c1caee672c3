package rabbitmq

import (
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

var (
	// ErrChannelClosed is returned for operations on a channel which has been closed.
	ErrChannelClosed = errors.New("rabbitmq: channel closed")
	// ErrDeliveriesClosed is the reason a subscription stops when the broker ends the delivery stream.
	ErrDeliveriesClosed = errors.New("rabbitmq: delivery stream closed by broker")
)

// Error represents an error from the broker.
type Error interface {
	error
	// Code returns the AMQP reply code
	Code() int
	// Reason returns the description of the error
	Reason() string
	// Recover returns true when this error can be recovered by retrying later or with different parameters
	Recover() bool
	// FromServer returns true when initiated from the server, false when from this library
	FromServer() bool
}

// ErrorNotificationFunc the callback function type which receives
// errors from the server.
type ErrorNotificationFunc = func(e Error)

// notifier helper interface which wraps notification methods
// which are usually shared by different types.
type notifier interface {
	// NotifyClose the internal amqp091 function defined on both
	// channels and connections which set up notifications for errors.
	NotifyClose(rcv chan *amqp091.Error) chan *amqp091.Error
}

// amqpError represents a wrapped amqp091.Error
type amqpError struct {
	err *amqp091.Error
}

// Error implements the error interface.
func (a *amqpError) Error() string {
	return fmt.Sprintf("rabbitmq: %d %s", a.err.Code, a.err.Reason)
}

// Code returns the AMQP error code.
func (a *amqpError) Code() int {
	return a.err.Code
}

// Reason returns the error description
func (a *amqpError) Reason() string {
	return a.err.Reason
}

// Recover whether the error is recoverable.
func (a *amqpError) Recover() bool {
	return a.err.Recover
}

// FromServer whether the close originated from the client or server.
func (a *amqpError) FromServer() bool {
	return a.err.Server
}

// handleNotifyError helper function to handle notification of errors.
// done is triggered once the notifier stops sending, i.e. it has been closed.
func handleNotifyError(ch notifier, fn ErrorNotificationFunc, done func()) {
	rcv := make(chan *amqp091.Error, 1)
	ch.NotifyClose(rcv)

	go func() {
		for e := range rcv {
			if e != nil {
				fn(&amqpError{e})
			}
		}
		done()
	}()
}
