package rabbitmq

import (
	"context"
	"io"

	"github.com/rabbitmq/amqp091-go"
)

// narrow views of the amqp091 connection and channel, only what producers and
// push subscriptions use. tests substitute their own implementations.

var (
	dialConfig = amqp091.DialConfig
	dial       = amqp091.Dial
)

// amqp091Channel is satisfied by *amqp091.Channel.
type amqp091Channel interface {
	io.Closer
	IsClosed() bool
	Qos(count, size int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Cancel(consumer string, noWait bool) error
	Ack(tag uint64, multiple bool) error
	NotifyClose(rcv chan *amqp091.Error) chan *amqp091.Error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
}

var (
	_ amqp091Channel    = (*amqp091.Channel)(nil)
	_ amqp091Connection = (*amqp091.Connection)(nil)
)

// amqp091Connection is satisfied by *amqp091.Connection.
type amqp091Connection interface {
	io.Closer
	IsClosed() bool
	Channel() (*amqp091.Channel, error)
	NotifyClose(rcv chan *amqp091.Error) chan *amqp091.Error
}
