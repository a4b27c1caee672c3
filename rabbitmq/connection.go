package rabbitmq

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// helper types exposed from the underlined SDK package.

type (
	Config         = amqp091.Config
	Authentication = amqp091.Authentication
	PlainAuth      = amqp091.PlainAuth
)

// Dialer represents a function which returns a connection and an error.
type Dialer func() (Connection, error)

// Notifier an interface for types which emit events.
type Notifier interface {
	// NotifyClose triggers the supplied function when a graceful close happens,
	// i.e. triggered from this library or after a failed reconnect.
	NotifyClose(fn func())
	// NotifyReconnect triggers the supplied function when a reconnection
	// is successful.
	NotifyReconnect(fn func())
}

// Connection represents a pre-established, authenticated broker connection
// which channels are opened from.
type Connection interface {
	io.Closer
	Notifier

	// Channel opens a new channel, typically there is one connection and one
	// channel per subscription.
	Channel() (Channel, error)
	// IsClosed determines if the connection is closed.
	IsClosed() bool
}

// Settings are the broker connection settings.
type Settings struct {
	Host        string
	Port        int
	Username    string
	Password    string
	VirtualHost string
}

// URL builds the amqp:// url for the settings, the virtual host is path escaped
// so the default "/" becomes "%2F".
func (s Settings) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(s.Username, s.Password),
		Host:   net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
	}
	return u.String() + "/" + url.PathEscape(s.VirtualHost)
}

// amqp091ConnectionDialer a function which takes no arguments and returns a new amqp091 connection.
type amqp091ConnectionDialer = func() (amqp091Connection, error)

// connection represents an amqp091.Connection which implements Connection.
// it also has fields which allows us to perform reconnects if necessary
type connection struct {
	mu       sync.RWMutex // variable guard.
	reconnMu sync.Mutex   // mutex for reconnections
	emitMu   sync.RWMutex // mutex for events.

	dialer amqp091ConnectionDialer // the function to use to connect to the AMQP client.
	ctx    context.Context         // a server bound context.
	log    *zap.Logger
	closed bool // whether the connection is closed.

	// containers for assigned event handlers.
	closeOnce  sync.Once
	closes     []func()
	reconnects []func()

	Connection amqp091Connection // the connection.
}

// DialSettings attempts to connect to a rabbitmq broker using plain authentication from settings.
func DialSettings(ctx context.Context, s Settings, opts ...Option) Dialer {
	return DialConfig(ctx, s.URL(), Config{
		SASL:  []Authentication{&PlainAuth{Username: s.Username, Password: s.Password}},
		Vhost: s.VirtualHost,
	}, opts...)
}

// DialConfig attempts to connect to a rabbitmq broker using an amqp:// url while also
// supplying Config to define authentication etc.
func DialConfig(ctx context.Context, addr string, c Config, opts ...Option) Dialer { //nolint // config has to be non-pointer to conform to amqp091.
	return func() (Connection, error) {
		return wrapDial(ctx, newOptions(opts...), func() (amqp091Connection, error) {
			return dialConfig(addr, c)
		})
	}
}

// Dial attempts to connect to a rabbitmq broker using an amqp:// url.
func Dial(ctx context.Context, addr string, opts ...Option) Dialer {
	return func() (Connection, error) {
		return wrapDial(ctx, newOptions(opts...), func() (amqp091Connection, error) {
			return dial(addr)
		})
	}
}

// wrapDial helper function to wrap an amqp091.Connection as our generic interface implementation.
func wrapDial(ctx context.Context, o options, dial amqp091ConnectionDialer) (Connection, error) {
	conn, err := dial()
	if err != nil {
		return nil, err
	}
	c := &connection{
		Connection: conn,
		dialer:     dial,
		ctx:        ctx,
		log:        o.log,
	}
	go c.background()
	return c, nil
}

// Channel initialises a new AMQP channel from a connection.
func (c *connection) Channel() (Channel, error) {
	ch, err := c.rawChannel()
	if err != nil {
		return nil, err
	}

	return newChannel(ch, c.logger()), nil
}

// rawChannel returns a lower level channel
func (c *connection) rawChannel() (amqp091Channel, error) {
	var ch amqp091Channel
	err := c.onConnection(func(conn amqp091Connection) error {
		raw, cErr := conn.Channel()
		if cErr != nil {
			return cErr
		}
		ch = raw
		return nil
	})
	return ch, err
}

// NotifyClose registers a handler to be triggered on a close.
func (c *connection) NotifyClose(fn func()) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if fn == nil {
		return
	}

	c.closes = append(c.closes, fn)
}

// NotifyReconnect registers a handler to be triggered on a successful reconnect.
func (c *connection) NotifyReconnect(fn func()) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if fn == nil {
		return
	}

	c.reconnects = append(c.reconnects, fn)
}

// emitReconnect emits a reconnect event to all handlers.
func (c *connection) emitReconnect() {
	c.emitMu.RLock()
	defer c.emitMu.RUnlock()
	for _, fn := range c.reconnects {
		fn()
	}
}

// emitClose emits a close event to all handlers.
func (c *connection) emitClose() {
	c.emitMu.RLock()
	defer c.emitMu.RUnlock()
	for _, fn := range c.closes {
		fn()
	}
}

// Close closes the connection, a closed connection is never reconnected.
func (c *connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	c.closed = true
	go c.closeOnce.Do(c.emitClose)
	if isClosed(c.Connection) {
		return nil // already closed by the broker.
	}
	return c.Connection.Close()
}

// IsClosed wraps the original IsClosed function.
func (c *connection) IsClosed() bool {
	if c == nil {
		return true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return true
	}

	return isClosed(c.Connection)
}

// userClosed reports whether Close was called, as opposed to the broker dropping the connection.
func (c *connection) userClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// onConnection helper function to perform an action on the raw amqp091.Connection
func (c *connection) onConnection(fn func(conn amqp091Connection) error) error {
	if c.IsClosed() {
		if err := c.reconnect(); err != nil {
			return err
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return fn(c.Connection)
}

// reconnect attempts to reconnect a closed connection
// unless it was closed gracefully.
func (c *connection) reconnect() error {
	c.reconnMu.Lock()
	defer c.reconnMu.Unlock()

	if !c.IsClosed() {
		return nil
	}

	if c.userClosed() {
		return amqp091.ErrClosed
	}

	c.logger().Warn("connection lost, reconnecting")
	err := backoff.Retry(func() error {
		if c.userClosed() {
			return backoff.Permanent(amqp091.ErrClosed)
		}

		conn, err := c.dialer() // use the originally defined dialer to reconnect with.
		if err != nil {
			return err
		}

		c.mu.Lock()
		c.Connection = conn
		c.mu.Unlock()
		return nil
	}, newBackoff(c.ctx))

	if err != nil {
		logError(c.logger(), "reconnect failed", err)
		logError(c.logger(), "failed closing connection", c.Close())
		return err
	}

	c.logger().Info("connection re-established")
	go c.background()
	go c.emitReconnect()
	return nil
}

// background watches the connection for closes.
// listening is a blocking operation; so we cannot wrap it in c.onConnection
// as that would hold the mutex and not allow anything else to perform operations on
// the connection.
func (c *connection) background() {
	ch := make(chan *amqp091.Error, 1)
	err := c.onConnection(func(conn amqp091Connection) error {
		conn.NotifyClose(ch)
		return nil
	})

	if err != nil {
		if !errors.Is(err, amqp091.ErrClosed) {
			logError(c.logger(), "failed watching connection", err)
		}
		return
	}

	select {
	case <-c.ctx.Done():
		logError(c.logger(), "failed closing connection", c.Close()) // this will also close ch if it's not already closed.
		return
	case e, ok := <-ch:
		if !ok || e == nil {
			logError(c.logger(), "failed closing connection", c.Close())
			return
		}
		c.logger().Warn("connection closed by broker", zap.Error(&amqpError{e}))
		logError(c.logger(), "reconnect failed", c.reconnect())
	}
}

// logger returns the connection logger, tests construct connections without one.
func (c *connection) logger() *zap.Logger {
	if c.log == nil {
		return zap.L()
	}
	return c.log
}
