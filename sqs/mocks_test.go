package sqs

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var nopLogger = zap.NewNop()

func init() {
	newBackoff = func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	}
}

// mockAPI an in-memory API, every field is optional. Queue lookups fail with
// the context error once ctx is done, as the SDK does.
type mockAPI struct {
	GetQueueUrlFn    func(name string) (*awssqs.GetQueueUrlOutput, error)
	CreateQueueFn    func(name string) (*awssqs.CreateQueueOutput, error)
	SendMessageFn    func(in *awssqs.SendMessageInput) error
	ReceiveMessageFn func(ctx context.Context, in *awssqs.ReceiveMessageInput) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessageFn  func(in *awssqs.DeleteMessageInput) error

	mu      sync.Mutex
	lookups int
	created []string
	deleted []string
}

func (m *mockAPI) GetQueueUrl(ctx context.Context, in *awssqs.GetQueueUrlInput, _ ...func(*awssqs.Options)) (*awssqs.GetQueueUrlOutput, error) {
	m.mu.Lock()
	m.lookups++
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.GetQueueUrlFn != nil {
		return m.GetQueueUrlFn(aws.ToString(in.QueueName))
	}
	return &awssqs.GetQueueUrlOutput{QueueUrl: aws.String(queueURL(aws.ToString(in.QueueName)))}, nil
}

func (m *mockAPI) CreateQueue(_ context.Context, in *awssqs.CreateQueueInput, _ ...func(*awssqs.Options)) (*awssqs.CreateQueueOutput, error) {
	m.mu.Lock()
	m.created = append(m.created, aws.ToString(in.QueueName))
	m.mu.Unlock()
	if m.CreateQueueFn != nil {
		return m.CreateQueueFn(aws.ToString(in.QueueName))
	}
	return &awssqs.CreateQueueOutput{QueueUrl: aws.String(queueURL(aws.ToString(in.QueueName)))}, nil
}

func (m *mockAPI) SendMessage(_ context.Context, in *awssqs.SendMessageInput, _ ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error) {
	if m.SendMessageFn != nil {
		if err := m.SendMessageFn(in); err != nil {
			return nil, err
		}
	}
	return &awssqs.SendMessageOutput{MessageId: aws.String("id-1")}, nil
}

func (m *mockAPI) ReceiveMessage(ctx context.Context, in *awssqs.ReceiveMessageInput, _ ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error) {
	if m.ReceiveMessageFn != nil {
		return m.ReceiveMessageFn(ctx, in)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *mockAPI) DeleteMessage(_ context.Context, in *awssqs.DeleteMessageInput, _ ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error) {
	if m.DeleteMessageFn != nil {
		if err := m.DeleteMessageFn(in); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	m.deleted = append(m.deleted, aws.ToString(in.ReceiptHandle))
	m.mu.Unlock()
	return &awssqs.DeleteMessageOutput{}, nil
}

func (m *mockAPI) Lookups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups
}

func (m *mockAPI) Created() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.created...)
}

func (m *mockAPI) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

func queueURL(name string) string {
	return "https://sqs.eu-west-1.amazonaws.com/000000000000/" + name
}

// sqsMessage builds a received message, the receipt handle is derived from the body.
func sqsMessage(body string) types.Message {
	return types.Message{
		Body:          aws.String(body),
		ReceiptHandle: aws.String("rh-" + body),
		MessageId:     aws.String("id-" + body),
	}
}

// batches serves each batch once and then long polls until cancelled.
func batches(b ...[]types.Message) func(ctx context.Context, in *awssqs.ReceiveMessageInput) (*awssqs.ReceiveMessageOutput, error) {
	var mu sync.Mutex
	return func(ctx context.Context, _ *awssqs.ReceiveMessageInput) (*awssqs.ReceiveMessageOutput, error) {
		mu.Lock()
		if len(b) > 0 {
			next := b[0]
			b = b[1:]
			mu.Unlock()
			return &awssqs.ReceiveMessageOutput{Messages: next}, nil
		}
		mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
}
