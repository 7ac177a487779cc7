// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package bridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/z5labs/tether/internal/otelslog"
	"github.com/z5labs/tether/internal/slogfield"
	"github.com/z5labs/tether/request"
	"github.com/z5labs/tether/task"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler is application logic invoked with every assembled record.
// Returning an error answers the connection with 500 Internal Server Error
// if it has not been answered yet.
type Handler interface {
	Handle(context.Context, request.Record) error
}

// HandlerFunc is a func variant of the [Handler] interface.
type HandlerFunc func(context.Context, request.Record) error

// Handle implements the [Handler] interface.
func (f HandlerFunc) Handle(ctx context.Context, rec request.Record) error {
	return f(ctx, rec)
}

// Handlers are the application callbacks registered with [Open].
type Handlers struct {
	OnRequest Handler

	// OnClose, if set, is invoked once after the listener is closed.
	OnClose func(context.Context) error
}

// ListenError occurs when the listening socket can not be opened.
type ListenError struct {
	Addr  string
	Cause error
}

// Error implements the error interface.
func (e ListenError) Error() string {
	return fmt.Sprintf("failed to listen on %s: %s", e.Addr, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e ListenError) Unwrap() error {
	return e.Cause
}

// ErrServerClosed is returned by Close when the listener was already closed.
var ErrServerClosed = errors.New("bridge: server closed")

var errNoRequestHandler = errors.New("bridge: Handlers.OnRequest must be set")

// Server owns the listening socket opened by [Open].
type Server struct {
	log      *slog.Logger
	ls       net.Listener
	srv      *http.Server
	handlers Handlers
	registry *Registry
	sender   *Sender
	tasks    *task.Runtime

	ttl             time.Duration
	sweepInterval   time.Duration
	maxBodyBytes    int64
	trustForwarded  bool
	shutdownTimeout time.Duration
	now             func() time.Time

	closeOnce sync.Once
	stop      context.CancelFunc
	bg        sync.WaitGroup
	serveErr  chan error
}

// Open binds port and starts accepting connections. Without tlsOpts a
// plain HTTP listener is created, otherwise an HTTPS listener built from
// tlsOpts. Bind failures are returned as a [ListenError].
//
// Port 0 picks a free port, see [Server.Addr].
func Open(ctx context.Context, port uint, tlsOpts *TLSOptions, handlers Handlers, opts ...Option) (*Server, error) {
	if handlers.OnRequest == nil {
		return nil, errNoRequestHandler
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	var tlsCfg *tls.Config
	if tlsOpts != nil {
		var err error
		tlsCfg, err = tlsOpts.config()
		if err != nil {
			return nil, err
		}
	}

	log := otelslog.New(o.logHandler)

	addr := fmt.Sprintf(":%d", port)
	listen := o.listen
	if listen == nil {
		var lc net.ListenConfig
		listen = func(network, addr string) (net.Listener, error) {
			return lc.Listen(ctx, network, addr)
		}
	}
	ls, err := listen("tcp", addr)
	if err != nil {
		log.ErrorContext(ctx, "failed to listen for connections", slogfield.Error(err))
		return nil, ListenError{Addr: addr, Cause: err}
	}
	if tlsCfg != nil {
		ls = tls.NewListener(ls, tlsCfg)
	}

	registry := o.registry
	if registry == nil {
		registry = NewRegistry()
	}

	bgCtx, stop := context.WithCancel(context.Background())
	s := &Server{
		log:             log,
		ls:              ls,
		handlers:        handlers,
		registry:        registry,
		sender:          NewSender(registry, SenderLogHandler(o.logHandler)),
		tasks:           o.tasks,
		ttl:             o.ttl,
		sweepInterval:   o.sweepInterval,
		maxBodyBytes:    o.maxBodyBytes,
		trustForwarded:  o.trustForwarded,
		shutdownTimeout: o.shutdownTimeout,
		now:             o.now,
		stop:            stop,
		serveErr:        make(chan error, 1),
	}
	s.srv = &http.Server{
		Handler: otelhttp.NewHandler(
			s,
			"bridge",
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		),
		ReadHeaderTimeout: o.readHeaderTO,
		IdleTimeout:       o.idleTO,
		ErrorLog:          slog.NewLogLogger(o.logHandler, slog.LevelWarn),
	}

	if s.tasks == nil {
		s.tasks = task.New(task.LogHandler(o.logHandler))
		s.goBackground(func() { s.tasks.Run(bgCtx) })
	}
	if s.ttl > 0 {
		s.goBackground(func() { s.sweep(bgCtx) })
	}
	go s.serve()

	log.InfoContext(ctx, "started listening", slogfield.String("addr", ls.Addr().String()), slogfield.Bool("tls", tlsCfg != nil))
	return s, nil
}

func (s *Server) goBackground(f func()) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		f()
	}()
}

func (s *Server) serve() {
	err := s.srv.Serve(s.ls)
	if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		err = nil
	} else {
		s.log.Error("listener encountered unexpected error", slogfield.Error(err))
	}
	s.serveErr <- err
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.ls.Addr()
}

// Sender returns a Sender answering this server's connections.
func (s *Server) Sender() *Sender {
	return s.sender
}

// Pending returns the number of connections waiting for their response.
func (s *Server) Pending() int {
	return s.registry.Len()
}

// Close stops accepting new connections and submits Handlers.OnClose.
// Connections which are already pending stay writable.
func (s *Server) Close() error {
	err := ErrServerClosed
	s.closeOnce.Do(func() {
		err = s.ls.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
		s.log.Info("stopped listening")

		if s.handlers.OnClose == nil {
			return
		}
		serr := s.tasks.Submit(context.Background(), s.handlers.OnClose)
		if serr != nil {
			s.log.Error("failed to submit close handler", slogfield.Error(serr))
		}
	})
	return err
}

// Shutdown closes the listener and waits, until ctx is done, for every
// pending connection to be answered. Connections still open after that are
// closed forcibly. Background processing owned by the server is stopped last.
func (s *Server) Shutdown(ctx context.Context) error {
	cerr := s.Close()
	if errors.Is(cerr, ErrServerClosed) {
		cerr = nil
	}

	err := s.srv.Shutdown(ctx)
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if err != nil {
		s.log.Warn("forcibly closing connections", slogfield.Int("pending", s.registry.Len()), slogfield.Error(err))
		err = errors.Join(err, s.srv.Close())
	}

	s.stop()
	s.bg.Wait()
	return errors.Join(cerr, err)
}

// Run serves until ctx is cancelled and then shuts the server down,
// waiting at most the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-s.serveErr:
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.log.Info("shutting down")
	defer s.log.Info("shut down")
	return errors.Join(serveErr, s.Shutdown(sctx))
}
