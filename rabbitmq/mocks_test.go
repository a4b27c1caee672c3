package rabbitmq

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rabbitmq/amqp091-go"
)

type errorFunc func() error

type mockAMQPChannelHandlers struct {
	Close        errorFunc
	Qos          func(count int) error
	QueueDeclare func(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	Publish      func(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Consume      func(queue, consumer string, autoAck, exclusive bool) (<-chan amqp091.Delivery, error)
	Cancel       func(consumer string) error
	Ack          func(tag uint64) error
}

// newDefaultAMQPChannelHandlers generates a default set of handlers.
func newDefaultAMQPChannelHandlers() mockAMQPChannelHandlers {
	return mockAMQPChannelHandlers{
		Close: func() error { return nil },
		Qos:   func(int) error { return nil },
		QueueDeclare: func(name string, _, _, _, _ bool, _ amqp091.Table) (amqp091.Queue, error) {
			return amqp091.Queue{Name: name}, nil
		},
		Publish: func(_, _ string, _, _ bool, _ amqp091.Publishing) error { return nil },
		Consume: func(_, _ string, _, _ bool) (<-chan amqp091.Delivery, error) {
			return make(chan amqp091.Delivery), nil
		},
		Cancel: func(string) error { return nil },
		Ack:    func(uint64) error { return nil },
	}
}

// mockAMQPChannel behaves like an amqp091.Channel in regard to closing: closing it
// (or the broker closing it) closes every registered notification channel.
type mockAMQPChannel struct {
	h mockAMQPChannelHandlers

	mu       sync.Mutex
	notifies []chan *amqp091.Error
	closed   int64
	closes   int64
}

func newMockAMQPChannel(h mockAMQPChannelHandlers) *mockAMQPChannel {
	return &mockAMQPChannel{h: h}
}

// brokerClose simulates the broker closing the channel with e.
func (m *mockAMQPChannel) brokerClose(e *amqp091.Error) {
	m.shutdown(e)
}

func (m *mockAMQPChannel) shutdown(e *amqp091.Error) {
	if !atomic.CompareAndSwapInt64(&m.closed, 0, 1) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifies {
		if e != nil {
			n <- e
		}
		close(n)
	}
	m.notifies = nil
}

func (m *mockAMQPChannel) Closes() int64 { return atomic.LoadInt64(&m.closes) }

func (m *mockAMQPChannel) Close() error {
	atomic.AddInt64(&m.closes, 1)
	m.shutdown(nil)
	return m.h.Close()
}
func (m *mockAMQPChannel) IsClosed() bool {
	return atomic.LoadInt64(&m.closed) == 1
}
func (m *mockAMQPChannel) Qos(count, _ int, _ bool) error {
	return m.h.Qos(count)
}
func (m *mockAMQPChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error) {
	return m.h.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}
func (m *mockAMQPChannel) PublishWithContext(_ context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	return m.h.Publish(exchange, key, mandatory, immediate, msg)
}
func (m *mockAMQPChannel) Consume(queue, consumer string, autoAck, exclusive, _, _ bool, _ amqp091.Table) (<-chan amqp091.Delivery, error) {
	return m.h.Consume(queue, consumer, autoAck, exclusive)
}
func (m *mockAMQPChannel) Cancel(consumer string, _ bool) error {
	return m.h.Cancel(consumer)
}
func (m *mockAMQPChannel) Ack(tag uint64, _ bool) error {
	return m.h.Ack(tag)
}
func (m *mockAMQPChannel) NotifyClose(rcv chan *amqp091.Error) chan *amqp091.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.IsClosed() {
		close(rcv)
		return rcv
	}
	m.notifies = append(m.notifies, rcv)
	return rcv
}

// mockAMQPConnection a raw connection which can be dropped by the "broker",
// closing it closes every registered notification channel.
type mockAMQPConnection struct {
	channel  func() (*amqp091.Channel, error)
	closeErr error

	mu       sync.Mutex
	notifies []chan *amqp091.Error
	closed   int64
	closes   int64
}

func newMockAMQPConnection() *mockAMQPConnection {
	return &mockAMQPConnection{channel: func() (*amqp091.Channel, error) {
		return &amqp091.Channel{}, nil
	}}
}

// drop simulates the broker closing the connection with e.
func (m *mockAMQPConnection) drop(e *amqp091.Error) {
	m.shutdown(e)
}

func (m *mockAMQPConnection) shutdown(e *amqp091.Error) {
	if !atomic.CompareAndSwapInt64(&m.closed, 0, 1) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifies {
		if e != nil {
			n <- e
		}
		close(n)
	}
	m.notifies = nil
}

// watched reports whether anything listens for the connection closing.
func (m *mockAMQPConnection) watched() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notifies) > 0
}

func (m *mockAMQPConnection) Closes() int64 { return atomic.LoadInt64(&m.closes) }

func (m *mockAMQPConnection) Close() error {
	atomic.AddInt64(&m.closes, 1)
	m.shutdown(nil)
	return m.closeErr
}
func (m *mockAMQPConnection) IsClosed() bool {
	return atomic.LoadInt64(&m.closed) == 1
}
func (m *mockAMQPConnection) Channel() (*amqp091.Channel, error) {
	return m.channel()
}
func (m *mockAMQPConnection) NotifyClose(rcv chan *amqp091.Error) chan *amqp091.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.IsClosed() {
		close(rcv)
		return rcv
	}
	m.notifies = append(m.notifies, rcv)
	return rcv
}

// mockConnection is a Connection which hands out wrapped mock channels.
type mockConnection struct {
	channel  func() (Channel, error)
	channels int64
}

func (m *mockConnection) Close() error           { return nil }
func (m *mockConnection) IsClosed() bool         { return false }
func (m *mockConnection) NotifyClose(func())     {}
func (m *mockConnection) NotifyReconnect(func()) {}
func (m *mockConnection) Channels() int64        { return atomic.LoadInt64(&m.channels) }
func (m *mockConnection) Channel() (Channel, error) {
	atomic.AddInt64(&m.channels, 1)
	return m.channel()
}

// newMockConnection generates a connection where every channel is backed by raw.
func newMockConnection(raw *mockAMQPChannel) *mockConnection {
	return &mockConnection{channel: func() (Channel, error) {
		return newChannel(raw, nopLogger), nil
	}}
}
