package sqs

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// message wraps a received SQS message, acknowledging deletes it by receipt handle.
type message struct {
	api API
	url string
	types.Message
}

func (m *message) Body() []byte {
	return []byte(aws.ToString(m.Message.Body))
}

func (m *message) Ack(ctx context.Context) error {
	_, err := m.api.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(m.url),
		ReceiptHandle: m.ReceiptHandle,
	})
	return err
}
