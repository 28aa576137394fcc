package framelink

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// minAcceptDelay and maxAcceptDelay bound the pause after a failed
	// Accept.
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Server accepts TCP connections and runs one handler Conn per socket.
//
// Handlers read with the server-side watchdog policy: read timeouts count
// as failures and a successful frame clears the counter. Each handler is
// registered by peer address for as long as it runs.
type Server struct {
	host            string
	port            int
	maxPending      int
	logger          Logger
	shutdownTimeout time.Duration
	handlerOpts     []Option
	onAccept        func(*Conn)

	opts     options
	registry *Registry

	mu         sync.Mutex
	listener   *net.TCPListener
	acceptDone chan struct{}
	handlers   *errgroup.Group
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server and, unless
// HandlerOptions sets another one, for its handlers.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ServerShutdownTimeoutOption bounds how long Stop waits for handlers to
// exit. Default is 0 (wait for all of them). Stop interrupts blocked reads
// and sends, but a listener blocked on anything else keeps Stop waiting
// unless a timeout is set.
func ServerShutdownTimeoutOption(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = timeout
	}
}

// ListenHostOption sets the host or IP to bind. Default is all interfaces.
func ListenHostOption(host string) ServerOption {
	return func(s *Server) {
		s.host = host
	}
}

// HandlerOptions sets the connection options of every accepted handler.
func HandlerOptions(opt ...Option) ServerOption {
	return func(s *Server) {
		s.handlerOpts = append(s.handlerOpts, opt...)
	}
}

// OnAcceptOption sets a hook called with each new handler before its read
// loop starts, typically to attach listeners. It runs on the accept
// goroutine.
func OnAcceptOption(fn func(conn *Conn)) ServerOption {
	return func(s *Server) {
		s.onAccept = fn
	}
}

// NewServer returns a server for port with an accept queue of maxPending
// connections. Nothing is bound until Start.
func NewServer(port, maxPending int, opts ...ServerOption) *Server {
	s := &Server{
		port:       port,
		maxPending: maxPending,
		logger:     defaultLogger(),
		registry:   NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	handlerOpts := append([]Option{LoggerOption(s.logger)}, s.handlerOpts...)
	s.opts = newOptions(0, handlerOpts...)

	return s
}

// Start binds the listening socket and starts the accept loop. It fails
// with ErrAlreadyRunning if the server is started, and with a *BindError if
// the address cannot be bound.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyRunning
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error("bind failed", "addr", addr, "error", err)
		return &BindError{Addr: addr, Err: err}
	}
	listener := ln.(*net.TCPListener)

	if s.maxPending > 0 {
		if err := setBacklog(listener, s.maxPending); err != nil {
			s.logger.Warn("backlog not applied", "max_pending", s.maxPending, "error", err)
		}
	}

	s.listener = listener
	s.acceptDone = make(chan struct{})
	s.handlers = new(errgroup.Group)

	s.logger.Info("server started", "addr", listener.Addr(), "max_pending", s.maxPending)
	go s.acceptLoop(listener, s.handlers, s.acceptDone)

	return nil
}

// acceptLoop accepts sockets until the listener is closed. Other accept
// failures are logged and retried.
func (s *Server) acceptLoop(listener *net.TCPListener, handlers *errgroup.Group, done chan struct{}) {
	defer close(done)

	var delay time.Duration
	for {
		conn, err := listener.AcceptTCP()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info("accept loop finished", "addr", listener.Addr())
				return
			}

			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			s.logger.Error("accept error", "error", err, "retry_in", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		s.logger.Info("accepted connection", "remote_addr", conn.RemoteAddr())
		_ = conn.SetNoDelay(true)
		s.serveConn(conn, handlers)
	}
}

// serveConn registers a handler for raw and starts its read loop.
func (s *Server) serveConn(raw *net.TCPConn, handlers *errgroup.Group) {
	conn := newConn(raw, handlerPolicy, s.opts, nil)
	ctx := conn.prepare(context.Background())
	if s.onAccept != nil {
		s.onAccept(conn)
	}

	key := raw.RemoteAddr().String()
	if stale := s.registry.Put(key, conn); stale != nil {
		s.logger.Warn("replacing stale handler", "remote_addr", key)
		stale.Stop()
	}

	handlers.Go(func() error {
		conn.run(ctx)
		s.registry.Remove(key, conn)
		return conn.Err()
	})
}

// Stop closes the listening socket, stops every handler and waits for them
// to exit, bounded by the shutdown timeout. Calling Stop on a stopped
// server does nothing.
func (s *Server) Stop() error {
	s.mu.Lock()
	listener, acceptDone, handlers := s.listener, s.acceptDone, s.handlers
	s.listener = nil
	s.mu.Unlock()

	if listener == nil {
		return nil
	}

	var closeErr error
	if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("listener close error", "error", err)
		closeErr = errors.Wrap(err, "close listener")
	}
	<-acceptDone

	s.registry.Range(func(_ string, conn *Conn) bool {
		conn.Stop()
		return true
	})
	s.waitHandlers(handlers)

	s.logger.Info("server stopped", "addr", listener.Addr())
	return closeErr
}

func (s *Server) waitHandlers(handlers *errgroup.Group) {
	waited := make(chan error, 1)
	go func() {
		waited <- handlers.Wait()
	}()

	var timeout <-chan time.Time
	if s.shutdownTimeout > 0 {
		timer := time.NewTimer(s.shutdownTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-waited:
		if err != nil {
			s.logger.Debug("handler ended with error", "error", err)
		}
	case <-timeout:
		s.logger.Warn("shutdown timeout expired", "timeout", s.shutdownTimeout, "handlers", s.registry.Len())
	}
}

// IsRunning reports whether the accept loop is active.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil
}

// Addr returns the listener's network address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound port while running, and the configured port
// otherwise.
func (s *Server) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.port
}

// Registry returns the registry of running handlers.
func (s *Server) Registry() *Registry {
	return s.registry
}
