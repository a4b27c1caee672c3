package sqs

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/jacklaaa89/msgq"
)

const (
	maxMessages     = 10 // the SQS maximum for a single receive.
	waitTimeSeconds = 10 // long poll duration.
)

// newBackoff the pause policy between failed receives
// a variable in order to reduce the pauses in tests.
var newBackoff = defaultBackoff

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // never give up, a subscription only ends on cancellation.
	return b
}

// PollDelivery is the poll model delivery strategy, each subscription long polls its
// queue and dispatches the returned batch one message at a time.
type PollDelivery struct {
	c *Client
}

var _ msgq.Delivery = (*PollDelivery)(nil)

// NewPollDelivery creates a poll delivery on top of c.
func NewPollDelivery(c *Client) *PollDelivery {
	return &PollDelivery{c: c}
}

// Model implements msgq.Delivery.
func (d *PollDelivery) Model() msgq.DeliveryModel {
	return msgq.Poll
}

// Subscribe implements msgq.Delivery, the queue is created if it does not exist.
func (d *PollDelivery) Subscribe(ctx context.Context, queue string, dispatch msgq.DispatchFunc) (msgq.Subscription, error) {
	url, err := d.c.queueURL(ctx, queue)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &subscription{
		queue:  queue,
		url:    url,
		c:      d.c,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    d.c.opts.log.With(zap.String("queue", queue)),
	}

	s.log.Info("polling")
	go s.run(ctx, dispatch)
	return s, nil
}

type subscription struct {
	queue  string
	url    string
	c      *Client
	cancel context.CancelFunc
	log    *zap.Logger
	done   chan struct{}
}

// Queue implements msgq.Subscription.
func (s *subscription) Queue() string { return s.queue }

// Done implements msgq.Subscription.
func (s *subscription) Done() <-chan struct{} { return s.done }

// Err implements msgq.Subscription, a poll subscription only ends on cancellation.
func (s *subscription) Err() error { return nil }

// Close implements msgq.Subscription.
func (s *subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *subscription) run(ctx context.Context, dispatch msgq.DispatchFunc) {
	defer close(s.done)
	defer s.cancel()

	pause := newBackoff()
	for ctx.Err() == nil {
		out, err := s.c.api.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
			QueueUrl:            aws.String(s.url),
			MaxNumberOfMessages: maxMessages,
			WaitTimeSeconds:     waitTimeSeconds,
		})
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.log.Error("failed receiving messages", zap.Error(err))
			s.c.opts.notify(msgq.Event{Queue: s.queue, Kind: msgq.EventFetchFailed, Err: err})
			if !s.sleep(ctx, pause.NextBackOff()) {
				break
			}
			continue
		}
		pause.Reset()

		if out == nil {
			continue
		}
		for _, m := range out.Messages {
			// a batch is abandoned on cancellation, the remainder becomes visible again.
			if ctx.Err() != nil {
				break
			}
			dispatch(ctx, &message{api: s.c.api, url: s.url, Message: m})
		}
	}

	s.log.Info("stopped polling")
}

// sleep pauses for d, returning false if ctx was cancelled first.
func (s *subscription) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
