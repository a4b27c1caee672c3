// Package msgq defines a backend neutral contract for sending to and consuming from named message queues.
//
// Two delivery models are supported behind the same contract:
//   - Poll: the consumer itself requests batches of messages with a bounded wait (e.g. a cloud queue service).
//   - Push: the broker hands deliveries to a registered consumer (e.g. an AMQP broker).
//
// A Delivery implementation encapsulates the model and the backend specifics, the Consumer in this package owns
// everything else: argument validation, the per queue subscription registry, dispatching each message to the
// Handler, acknowledging only after the Handler succeeds and containing Handler failures.
//
// Handler failures are never acknowledged and never explicitly rejected, the message is left to the backends own
// redelivery behaviour which makes consumption at-least-once.
//
// The implementations provided at the time of writing are:
// - rabbitmq (github.com/jacklaaa89/msgq/rabbitmq), push model.
// - sqs (github.com/jacklaaa89/msgq/sqs), poll model.
package msgq
