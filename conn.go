// Package framelink provides a minimal TCP transport exchanging opaque byte
// messages framed by a 4-byte big-endian length prefix.
//
// A Client keeps a single connection to a remote peer. A Server accepts
// connections and runs one handler Conn per socket, tracked in a Registry.
// Every Conn reads frames on its own goroutine, hands them to registered
// EventListeners, and gives up on the link once too many consecutive reads
// have failed.
package framelink

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// watchdogPolicy decides which read failures count toward the watchdog.
type watchdogPolicy struct {
	// countTimeouts makes read deadline expiries count as failures.
	countTimeouts bool
	// resetOnSuccess clears the failure counter after each frame.
	resetOnSuccess bool
}

var (
	// clientPolicy ignores timeouts and accumulates failures across frames.
	clientPolicy = watchdogPolicy{}
	// handlerPolicy counts timeouts and forgives failures once a frame
	// gets through.
	handlerPolicy = watchdogPolicy{countTimeouts: true, resetOnSuccess: true}
)

// Conn is one framed TCP connection. It owns its socket: the read loop is
// the only reader, writes are serialized, and the socket is closed once,
// by the read loop, when it exits.
type Conn struct {
	rawConn   net.Conn
	reader    *FrameReader
	logger    Logger
	opts      options
	policy    watchdogPolicy
	listeners *listenerSet

	writeMu sync.Mutex

	state     atomic.Int32
	running   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	// failures is only touched by the read loop.
	failures int

	errMu sync.Mutex
	err   *BrokenLinkError
}

// newConn wraps raw. listeners may be shared with the owner of the Conn; a
// nil set gets a fresh one. The read loop is not started.
func newConn(raw net.Conn, policy watchdogPolicy, opts options, listeners *listenerSet) *Conn {
	if listeners == nil {
		listeners = newListenerSet()
	}
	for _, l := range opts.listeners {
		listeners.add(l)
	}

	c := &Conn{
		rawConn:   raw,
		reader:    newFrameReaderSize(raw, opts.maxFrameSize),
		logger:    opts.logger,
		opts:      opts,
		policy:    policy,
		listeners: listeners,
		done:      make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))

	return c
}

// prepare marks the connection running and returns the context the read
// loop must be given.
func (c *Conn) prepare(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.running.Store(true)
	c.state.Store(int32(StateRunning))
	return ctx
}

// run is the read loop. It returns once the context is canceled or the
// link is broken, after the socket has been closed.
func (c *Conn) run(ctx context.Context) {
	defer c.teardown()

	c.logger.Info("connection running", "addr", c.Addr())
	c.logger.Debug("connection options", "addr", c.Addr(),
		"read_timeout", c.opts.readTimeout,
		"write_timeout", c.opts.writeTimeout,
		"max_errors", c.opts.maxErrors,
		"max_frame_size", c.opts.maxFrameSize)

	for {
		if c.opts.readTimeout > 0 {
			_ = c.rawConn.SetReadDeadline(time.Now().Add(c.opts.readTimeout))
		}

		// Checked after arming the deadline so that a concurrent Stop always
		// gets the last word on it.
		if ctx.Err() != nil {
			return
		}

		payload, err := c.reader.ReadFrame()
		if err == nil {
			if c.policy.resetOnSuccess {
				c.failures = 0
			}
			c.listeners.notifyReceive(payload)
			continue
		}

		if ctx.Err() != nil {
			return
		}

		if !c.countFailure(err) {
			continue
		}

		if c.failures > c.opts.maxErrors {
			c.breakLink()
			return
		}
	}
}

// countFailure applies the watchdog policy to err and reports whether it
// was counted.
func (c *Conn) countFailure(err error) bool {
	if isTimeout(err) {
		if !c.policy.countTimeouts {
			return false
		}
		c.failures++
		c.logger.Warn("read timeout", "addr", c.Addr(), "failures", c.failures)
		return true
	}

	c.failures++
	c.logger.Warn("read error", "addr", c.Addr(), "failures", c.failures, "error", err)
	return true
}

func (c *Conn) breakLink() {
	c.errMu.Lock()
	c.err = &BrokenLinkError{
		Code:        CodeBrokenLink,
		Description: DescBrokenLink,
		Failures:    c.failures,
	}
	c.errMu.Unlock()

	c.logger.Error("broken link", "addr", c.Addr(), "failures", c.failures)
}

// teardown notifies listeners of a broken link and closes the socket.
func (c *Conn) teardown() {
	c.running.Store(false)
	c.state.Store(int32(StateStopping))
	if c.cancel != nil {
		c.cancel()
	}

	if err := c.brokenLink(); err != nil {
		c.listeners.notifyError(err.Code, err.Description)
	}

	c.closeConn()
	c.state.Store(int32(StateClosed))
	c.logger.Info("connection closed", "addr", c.Addr())
	close(c.done)
}

// closeConn closes the socket once. Errors are logged, never returned.
func (c *Conn) closeConn() {
	c.closeOnce.Do(func() {
		if c.rawConn == nil {
			return
		}
		if err := c.rawConn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.logger.Warn("close error", "addr", c.Addr(), "error", err)
		}
	})
}

// Send writes payload as one frame. It fails with ErrNotRunning unless the
// read loop is active. A failed write is returned but does not stop the
// connection.
func (c *Conn) Send(payload []byte) error {
	if !c.running.Load() {
		return ErrNotRunning
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.opts.writeTimeout > 0 {
		_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
	}

	if err := WriteFrame(c.rawConn, payload); err != nil {
		c.logger.Debug("write error", "addr", c.Addr(), "error", err)
		return errors.Wrap(err, "send frame")
	}

	c.logger.Debug("frame sent", "addr", c.Addr(), "length", len(payload))
	return nil
}

// SendString sends s as one frame.
func (c *Conn) SendString(s string) error {
	return c.Send([]byte(s))
}

// Stop asks the read loop to exit. It interrupts a blocking read and any
// Send blocked on a peer that does not read, but leaves closing the socket
// to the loop. Calling Stop on a connection that is not
// running does nothing.
func (c *Conn) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	c.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	c.logger.Debug("stopping connection", "addr", c.Addr())

	if c.cancel != nil {
		c.cancel()
	}
	now := time.Now()
	_ = c.rawConn.SetReadDeadline(now)
	_ = c.rawConn.SetWriteDeadline(now)
}

// Wait blocks until the read loop has exited and the socket is closed.
func (c *Conn) Wait() {
	<-c.done
}

// Done returns a channel closed once the connection is torn down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// IsRunning reports whether the read loop is active and has not been asked
// to stop.
func (c *Conn) IsRunning() bool {
	return c.running.Load()
}

// State returns the lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Err returns the *BrokenLinkError that ended the connection, or nil.
func (c *Conn) Err() error {
	if err := c.brokenLink(); err != nil {
		return err
	}
	return nil
}

func (c *Conn) brokenLink() *BrokenLinkError {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// AddListener registers l. Adding a listener twice has no effect. Nil
// listeners and listeners of non-comparable types are ignored.
func (c *Conn) AddListener(l EventListener) {
	c.listeners.add(l)
}

// RemoveListener unregisters l and reports whether it was registered.
func (c *Conn) RemoveListener(l EventListener) bool {
	return c.listeners.remove(l)
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// LocalAddr returns the local address of the connection.
func (c *Conn) LocalAddr() net.Addr {
	return c.rawConn.LocalAddr()
}
