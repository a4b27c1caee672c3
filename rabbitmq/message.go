package rabbitmq

import (
	"context"

	"github.com/rabbitmq/amqp091-go"
)

// message implements msgq.Message for a broker delivery.
type message struct {
	ch Channel // the channel the delivery arrived on, delivery tags are scoped to it.
	amqp091.Delivery
}

// Body returns the delivery body.
func (m *message) Body() []byte {
	return m.Delivery.Body
}

// Ack acknowledges the delivery by its tag on the channel it arrived on.
func (m *message) Ack(ctx context.Context) error {
	return m.ch.Ack(ctx, m.Delivery.DeliveryTag)
}
