package framelink

import (
	"context"
	"net"
	"strconv"
	"sync"
)

// Client maintains a single connection to a remote peer.
//
// Listeners registered on the Client survive reconnections: every
// connection it opens reports to the same set.
type Client struct {
	addr      string
	opts      options
	logger    Logger
	listeners *listenerSet

	mu   sync.Mutex
	conn *Conn
	// connecting is set while a dial is in flight.
	connecting bool
}

// NewClient returns a client for host:port. Nothing is dialed until Connect.
func NewClient(host string, port int, opt ...Option) *Client {
	opts := newOptions(DefaultClientReadTimeout, opt...)

	listeners := newListenerSet()
	for _, l := range opts.listeners {
		listeners.add(l)
	}
	opts.listeners = nil

	return &Client{
		addr:      net.JoinHostPort(host, strconv.Itoa(port)),
		opts:      opts,
		logger:    opts.logger,
		listeners: listeners,
	}
}

// Connect opens the socket and starts the read loop. ctx bounds the dial
// only. It fails with ErrAlreadyRunning if a connection is active or being
// opened, and with a *ConnectError if the peer cannot be reached.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connecting || (c.conn != nil && c.conn.IsRunning()) {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.connecting = true
	c.conn = nil
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
	}()

	c.logger.Debug("connecting", "addr", c.addr)

	dialer := net.Dialer{Timeout: c.opts.dialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		if raw != nil {
			_ = raw.Close()
		}
		c.logger.Warn("connect failed", "addr", c.addr, "error", err)
		return &ConnectError{Addr: c.addr, Err: err}
	}

	conn := newConn(raw, clientPolicy, c.opts, c.listeners)
	loopCtx := conn.prepare(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go conn.run(loopCtx)

	return nil
}

// Disconnect stops the current connection. It returns without waiting for
// the socket to close; use Wait for that. Disconnect on an idle client does
// nothing.
func (c *Client) Disconnect() {
	if conn := c.current(); conn != nil {
		conn.Stop()
	}
}

// Wait blocks until the current connection, if any, is torn down.
func (c *Client) Wait() {
	if conn := c.current(); conn != nil {
		conn.Wait()
	}
}

// Send writes payload as one frame on the current connection.
func (c *Client) Send(payload []byte) error {
	conn := c.current()
	if conn == nil {
		return ErrNotRunning
	}
	return conn.Send(payload)
}

// SendString sends s as one frame.
func (c *Client) SendString(s string) error {
	return c.Send([]byte(s))
}

// IsRunning reports whether a connection is active.
func (c *Client) IsRunning() bool {
	conn := c.current()
	return conn != nil && conn.IsRunning()
}

// State returns the lifecycle state of the client's connection.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connecting {
		return StateConnecting
	}
	if c.conn == nil {
		return StateIdle
	}
	return c.conn.State()
}

// Err returns the error that ended the last connection, if any.
func (c *Client) Err() error {
	conn := c.current()
	if conn == nil {
		return nil
	}
	return conn.Err()
}

// AddListener registers l for this and future connections. Nil listeners
// and listeners of non-comparable types are ignored.
func (c *Client) AddListener(l EventListener) {
	c.listeners.add(l)
}

// RemoveListener unregisters l and reports whether it was registered.
func (c *Client) RemoveListener(l EventListener) bool {
	return c.listeners.remove(l)
}

// Addr returns the remote address the client dials.
func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) current() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}
