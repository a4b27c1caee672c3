package sqs

import (
	"go.uber.org/zap"

	"github.com/jacklaaa89/msgq"
)

// Option configures a Client.
type Option func(o *options)

type options struct {
	log      *zap.Logger
	queues   map[string]string
	region   string
	endpoint string
	observer msgq.Observer
}

func newOptions(opts ...Option) options {
	o := options{log: zap.L()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger, defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithQueueNames maps logical queue names to SQS queue names.
// names which are not mapped are used as is.
func WithQueueNames(names map[string]string) Option {
	return func(o *options) {
		o.queues = names
	}
}

// WithRegion overrides the region resolved from the environment.
func WithRegion(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithEndpoint sets a custom endpoint, e.g. a LocalStack instance.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithObserver receives the fetch failures of poll subscriptions, which happen
// outside of any message and so are never seen by a msgq.Consumer.
func WithObserver(obs msgq.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// resolve maps a logical queue name to the SQS queue name.
func (o options) resolve(queue string) string {
	if name, ok := o.queues[queue]; ok && name != "" {
		return name
	}
	return queue
}

func (o options) notify(e msgq.Event) {
	if o.observer != nil {
		o.observer(e)
	}
}
