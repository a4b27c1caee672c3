package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jacklaaa89/msgq"
	"github.com/jacklaaa89/msgq/config"
	"github.com/jacklaaa89/msgq/rabbitmq"
	"github.com/jacklaaa89/msgq/sqs"
)

// backend is a configured producer and delivery strategy sharing one connection.
type backend struct {
	producer msgq.Producer
	delivery msgq.Delivery
	close    func() error
}

func newBackend(ctx context.Context, cfg *config.Config, log *zap.Logger, obs msgq.Observer) (*backend, error) {
	switch cfg.Backend {
	case config.BackendRabbitMQ:
		return newRabbitMQBackend(ctx, cfg, log)
	case config.BackendSQS:
		return newSQSBackend(ctx, cfg, log, obs)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", msgq.ErrInvalidArgument, cfg.Backend)
	}
}

func newRabbitMQBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backend, error) {
	log = log.With(zap.String("backend", string(config.BackendRabbitMQ)))

	conn, err := rabbitmq.DialSettings(ctx, cfg.RabbitMQ.Settings(), rabbitmq.WithLogger(log))()
	if err != nil {
		return nil, fmt.Errorf("dial %s:%d: %w", cfg.RabbitMQ.Host, cfg.RabbitMQ.Port, err)
	}
	conn.NotifyReconnect(func() {
		log.Info("connection re-established")
	})
	conn.NotifyClose(func() {
		log.Info("connection closed")
	})

	opts := []rabbitmq.Option{
		rabbitmq.WithLogger(log),
		rabbitmq.WithQueueNames(cfg.Queues),
		rabbitmq.WithPrefetch(cfg.RabbitMQ.Prefetch),
	}
	return &backend{
		producer: rabbitmq.NewProducer(conn, opts...),
		delivery: rabbitmq.NewPushDelivery(conn, opts...),
		close:    conn.Close,
	}, nil
}

func newSQSBackend(ctx context.Context, cfg *config.Config, log *zap.Logger, obs msgq.Observer) (*backend, error) {
	log = log.With(zap.String("backend", string(config.BackendSQS)))

	c, err := sqs.New(ctx,
		sqs.WithLogger(log),
		sqs.WithQueueNames(cfg.Queues),
		sqs.WithRegion(cfg.SQS.Region),
		sqs.WithEndpoint(cfg.SQS.Endpoint),
		sqs.WithObserver(obs),
	)
	if err != nil {
		return nil, err
	}
	return &backend{
		producer: c,
		delivery: sqs.NewPollDelivery(c),
		close:    func() error { return nil },
	}, nil
}
