package msgq

import "context"

// Producer publishes payloads to a named queue.
//
// Send ensures the queue exists (an idempotent declare) before publishing the payload durably, it returns
// once the backend has accepted the publish. Connection level errors are returned as is, retrying is left
// to the caller.
type Producer interface {
	Send(ctx context.Context, queue, payload string) error
}
