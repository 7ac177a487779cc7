// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package bridge

import (
	"log/slog"
	"net"
	"time"

	"github.com/z5labs/tether/internal/noop"
	"github.com/z5labs/tether/task"
)

// Config is the decodable configuration of a [Server].
type Config struct {
	Port uint       `config:"port"`
	TLS  *TLSConfig `config:"tls"`

	Pending struct {
		TTL           time.Duration `config:"ttl"`
		SweepInterval time.Duration `config:"sweep_interval"`
	} `config:"pending"`

	Body struct {
		MaxBytes int64 `config:"max_bytes"`
	} `config:"body"`

	TrustForwardedHeaders bool          `config:"trust_forwarded_headers"`
	ReadHeaderTimeout     time.Duration `config:"read_header_timeout"`
	IdleTimeout           time.Duration `config:"idle_timeout"`
	ShutdownTimeout       time.Duration `config:"shutdown_timeout"`
}

type options struct {
	logHandler      slog.Handler
	registry        *Registry
	tasks           *task.Runtime
	ttl             time.Duration
	sweepInterval   time.Duration
	maxBodyBytes    int64
	trustForwarded  bool
	readHeaderTO    time.Duration
	idleTO          time.Duration
	shutdownTimeout time.Duration

	now    func() time.Time
	listen func(network, addr string) (net.Listener, error)
}

func defaultOptions() *options {
	return &options{
		logHandler:      noop.LogHandler{},
		ttl:             30 * time.Second,
		sweepInterval:   time.Second,
		maxBodyBytes:    10 << 20,
		readHeaderTO:    2 * time.Second,
		idleTO:          120 * time.Second,
		shutdownTimeout: 10 * time.Second,
		now:             time.Now,
	}
}

// Option configures a [Server].
type Option func(*options)

// LogHandler sets the slog.Handler the server logs to.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// WithRegistry shares registry between the server and the [Sender]s
// answering its connections.
//
// Default is a registry private to the server, reachable via [Server.Sender].
func WithRegistry(registry *Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithTaskRuntime submits request and close handling to rt. The caller
// is responsible for running rt.
//
// Default is a runtime owned, and run, by the server.
func WithTaskRuntime(rt *task.Runtime) Option {
	return func(o *options) {
		o.tasks = rt
	}
}

// PendingTTL sets how long a connection may wait for its response before
// it is answered with 504 Gateway Timeout. Zero disables expiry.
//
// Default is 30 seconds.
func PendingTTL(d time.Duration) Option {
	return func(o *options) {
		o.ttl = d
	}
}

// SweepInterval sets how often expired pending entries are looked for.
//
// Default is 1 second.
func SweepInterval(d time.Duration) Option {
	return func(o *options) {
		if d <= 0 {
			return
		}
		o.sweepInterval = d
	}
}

// MaxBodyBytes limits the size of accepted request bodies. Larger bodies
// are answered with 413 Request Entity Too Large. Zero disables the limit.
//
// Default is 10 MiB.
func MaxBodyBytes(n int64) Option {
	return func(o *options) {
		o.maxBodyBytes = n
	}
}

// TrustForwardedHeaders derives the client ip and protocol from the
// X-Forwarded-For and X-Forwarded-Proto headers when they are present.
func TrustForwardedHeaders(trust bool) Option {
	return func(o *options) {
		o.trustForwarded = trust
	}
}

// ReadHeaderTimeout sets the maximum duration for reading request headers.
//
// Default is 2 seconds.
func ReadHeaderTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readHeaderTO = d
	}
}

// IdleTimeout sets the maximum duration to wait for the next request
// when keep-alives are enabled.
//
// Default is 120 seconds.
func IdleTimeout(d time.Duration) Option {
	return func(o *options) {
		o.idleTO = d
	}
}

// ShutdownTimeout bounds how long [Server.Run] waits for pending
// connections to drain once its context is cancelled.
//
// Default is 10 seconds.
func ShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = d
	}
}

// FromConfig applies every non-zero field of cfg, except TLS which is
// loaded separately by [LoadTLSOptions].
func FromConfig(cfg Config) Option {
	return func(o *options) {
		if cfg.Pending.TTL != 0 {
			o.ttl = cfg.Pending.TTL
		}
		SweepInterval(cfg.Pending.SweepInterval)(o)
		if cfg.Body.MaxBytes != 0 {
			o.maxBodyBytes = cfg.Body.MaxBytes
		}
		if cfg.TrustForwardedHeaders {
			o.trustForwarded = true
		}
		if cfg.ReadHeaderTimeout != 0 {
			o.readHeaderTO = cfg.ReadHeaderTimeout
		}
		if cfg.IdleTimeout != 0 {
			o.idleTO = cfg.IdleTimeout
		}
		if cfg.ShutdownTimeout != 0 {
			o.shutdownTimeout = cfg.ShutdownTimeout
		}
	}
}
