package sqs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/jacklaaa89/msgq"
)

// Client is the SQS backend, it is both a msgq.Producer and the source of
// PollDelivery subscriptions. It is safe for concurrent use.
type Client struct {
	api  API
	opts options

	mu   sync.RWMutex
	urls map[string]string // SQS queue name -> queue URL.
}

var _ msgq.Producer = (*Client)(nil)

// New creates a client using the default AWS credential chain.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	o := newOptions(opts...)

	var load []func(*awsconfig.LoadOptions) error
	if o.region != "" {
		load = append(load, awsconfig.WithRegion(o.region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, load...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	api := awssqs.NewFromConfig(cfg, func(so *awssqs.Options) {
		if o.endpoint != "" {
			so.BaseEndpoint = aws.String(o.endpoint)
		}
	})
	return newClient(api, o), nil
}

// NewWithAPI creates a client on top of an existing API implementation.
func NewWithAPI(api API, opts ...Option) *Client {
	return newClient(api, newOptions(opts...))
}

func newClient(api API, o options) *Client {
	return &Client{api: api, opts: o, urls: make(map[string]string)}
}

// Send implements msgq.Producer, the queue is created if it does not exist.
func (c *Client) Send(ctx context.Context, queue, payload string) error {
	if err := msgq.ValidateQueueName(queue); err != nil {
		return err
	}

	url, err := c.queueURL(ctx, queue)
	if err != nil {
		return err
	}

	out, err := c.api.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(payload),
	})
	if err != nil {
		return fmt.Errorf("send to %q: %w", queue, err)
	}

	c.opts.log.Debug("message sent", zap.String("queue", queue), zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}

// queueURL resolves the URL of a logical queue, creating the queue when it does not exist.
func (c *Client) queueURL(ctx context.Context, queue string) (string, error) {
	name := c.opts.resolve(queue)

	c.mu.RLock()
	url, ok := c.urls[name]
	c.mu.RUnlock()
	if ok {
		return url, nil
	}

	url, err := c.declare(ctx, name)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.urls[name] = url
	c.mu.Unlock()
	return url, nil
}

func (c *Client) declare(ctx context.Context, name string) (string, error) {
	out, err := c.api.GetQueueUrl(ctx, &awssqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err == nil {
		return aws.ToString(out.QueueUrl), nil
	}

	var missing *types.QueueDoesNotExist
	if !errors.As(err, &missing) {
		return "", fmt.Errorf("get queue url %q: %w", name, err)
	}

	created, err := c.api.CreateQueue(ctx, &awssqs.CreateQueueInput{QueueName: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("create queue %q: %w", name, err)
	}

	c.opts.log.Info("queue created", zap.String("queue", name))
	return aws.ToString(created.QueueUrl), nil
}
