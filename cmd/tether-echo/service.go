// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/z5labs/tether/bridge"
	"github.com/z5labs/tether/file"
	"github.com/z5labs/tether/internal/health"
	"github.com/z5labs/tether/internal/otelslog"
	"github.com/z5labs/tether/internal/slogfield"
	"github.com/z5labs/tether/request"
	"github.com/z5labs/tether/task"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

type service struct {
	cfg        Config
	log        *slog.Logger
	logHandler slog.Handler

	registry *bridge.Registry
	sender   *bridge.Sender
	tasks    *task.Runtime
	io       *task.Runtime
	files    *file.Bridge
	ready    health.Binary

	// opened receives the server once it is listening.
	opened chan *bridge.Server
}

func newService(cfg Config, fs afero.Fs, logHandler slog.Handler) *service {
	registry := bridge.NewRegistry()
	ioRuntime := task.New(task.LogHandler(logHandler), task.FromConfig(cfg.Files))
	return &service{
		cfg:        cfg,
		log:        otelslog.New(logHandler),
		logHandler: logHandler,
		registry:   registry,
		sender:     bridge.NewSender(registry, bridge.SenderLogHandler(logHandler)),
		tasks:      task.New(task.LogHandler(logHandler), task.FromConfig(cfg.Tasks)),
		io:         ioRuntime,
		files:      file.NewBridge(fs, ioRuntime),
		opened:     make(chan *bridge.Server, 1),
	}
}

// Run starts both task runtimes, opens the server and serves until ctx
// is cancelled or either listener fails. The runtimes outlive the server
// so its close handler and pending requests still execute during shutdown.
func (s *service) Run(ctx context.Context) error {
	rtCtx, stopRuntimes := context.WithCancel(context.WithoutCancel(ctx))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.tasks.Run(rtCtx) })
	g.Go(func() error { return s.io.Run(rtCtx) })
	g.Go(func() error {
		defer stopRuntimes()
		return s.serve(gctx)
	})
	if s.cfg.Health.Port != 0 {
		g.Go(func() error { return s.serveHealth(gctx) })
	}
	return g.Wait()
}

func (s *service) serve(ctx context.Context) error {
	tlsOpts, err := bridge.LoadTLSOptions(ctx, s.files, s.cfg.Bridge.TLS)
	if err != nil {
		return err
	}

	srv, err := bridge.Open(
		ctx,
		s.cfg.Bridge.Port,
		tlsOpts,
		bridge.Handlers{
			OnRequest: s,
			OnClose: func(ctx context.Context) error {
				s.ready.MarkUnhealthy()
				s.log.InfoContext(ctx, "no longer accepting requests", slogfield.Int("pending", s.registry.Len()))
				return nil
			},
		},
		bridge.LogHandler(s.logHandler),
		bridge.WithRegistry(s.registry),
		bridge.WithTaskRuntime(s.tasks),
		bridge.FromConfig(s.cfg.Bridge),
	)
	if err != nil {
		return err
	}
	s.opened <- srv
	return srv.Run(ctx)
}

// readiness holds until the service stops accepting requests, while the
// request task queue has a free slot and while fewer than health.max_pending
// connections wait for their response.
func (s *service) readiness() health.Metric {
	metrics := []health.Metric{
		&s.ready,
		health.Below(s.tasks.Pending, s.tasks.Capacity()),
	}
	if s.cfg.Health.MaxPending > 0 {
		metrics = append(metrics, health.Below(s.registry.Len, s.cfg.Health.MaxPending))
	}
	return health.And(metrics...)
}

// serveHealth answers readiness probes until ctx is cancelled.
func (s *service) serveHealth(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/health/readiness", health.NewHandler(s.readiness()))

	ls, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Health.Port))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	err = srv.Serve(ls)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Handle implements the bridge.Handler interface by echoing the record's
// content back to its own connection.
func (s *service) Handle(ctx context.Context, rec request.Record) error {
	switch c := rec.Content.(type) {
	case request.Empty:
		return s.sender.SendEmpty(ctx, rec.ID)
	case request.JSON:
		return s.sender.SendJSON(ctx, rec.ID, c.Raw)
	case request.Text:
		header := make(http.Header)
		if c.ContentType != "" {
			header.Set("Content-Type", c.ContentType)
		}
		return s.sender.Send(ctx, rec.ID, bridge.Response{
			StatusCode: http.StatusOK,
			Header:     header,
			Body:       request.NewAccessor([]byte(c.Raw)),
		})
	case request.Binary:
		return s.echoBinary(ctx, rec, c)
	default:
		return fmt.Errorf("unsupported content: %T", rec.Content)
	}
}

func (s *service) echoBinary(ctx context.Context, rec request.Record, c request.Binary) error {
	if s.cfg.Echo.ArchiveDir == "" {
		return s.sender.SendData(ctx, rec.ID, c.Bytes)
	}

	var data []byte
	err := c.Bytes(func(b []byte) {
		data = append(data, b...)
	})
	if err != nil {
		return err
	}

	path := filepath.Join(s.cfg.Echo.ArchiveDir, rec.ID.String()+".bin")
	_, err = s.files.Write(ctx, path, data).Await(ctx)
	if err != nil {
		return err
	}
	s.log.DebugContext(ctx, "archived binary body", slogfield.String("path", path))

	header := http.Header{"X-Archived-As": {path}}
	if c.ContentType != "" {
		header.Set("Content-Type", c.ContentType)
	}
	return s.sender.Send(ctx, rec.ID, bridge.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       request.NewAccessor(data),
	})
}
