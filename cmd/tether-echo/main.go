// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command tether-echo answers every request it accepts with the request's
// own body, through the pending response registry.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/z5labs/tether/bridge"
	"github.com/z5labs/tether/config"
	"github.com/z5labs/tether/internal/app"
	"github.com/z5labs/tether/internal/maskslog"
	"github.com/z5labs/tether/internal/otelconfig"
	"github.com/z5labs/tether/internal/slogfield"
	"github.com/z5labs/tether/task"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Config is the full configuration of tether-echo.
type Config struct {
	Bridge bridge.Config     `config:"bridge"`
	Tasks  task.Config       `config:"tasks"`
	Files  task.Config       `config:"files"`
	OTel   otelconfig.Config `config:"otel"`

	Log struct {
		Level slog.Level `config:"level"`
	} `config:"log"`

	Health struct {
		// Port serves the readiness probe. Zero disables it.
		Port       uint `config:"port"`
		MaxPending int  `config:"max_pending"`
	} `config:"health"`

	Echo struct {
		// ArchiveDir, if set, receives a copy of every binary body.
		ArchiveDir string `config:"archive_dir"`
	} `config:"echo"`
}

var defaults = config.Map{
	"bridge": map[string]any{
		"port": 8080,
		"pending": map[string]any{
			"ttl":            "30s",
			"sweep_interval": "1s",
		},
		"body": map[string]any{
			"max_bytes": 10 << 20,
		},
		"read_header_timeout": "2s",
		"idle_timeout":        "120s",
		"shutdown_timeout":    "10s",
	},
	"tasks": map[string]any{
		"workers":    16,
		"queue_size": 1024,
	},
	"files": map[string]any{
		"workers":    4,
		"queue_size": 64,
	},
	"otel": map[string]any{
		"service_name": "tether-echo",
	},
	"log": map[string]any{
		"level": "INFO",
	},
	"health": map[string]any{
		"port":        8081,
		"max_pending": 10000,
	},
}

func main() {
	a := app.New(
		app.Name("tether-echo"),
		app.Defaults(defaults),
		app.EnvPrefix("TETHER"),
		app.WithRuntimeBuilderFunc(func(ctx context.Context) (app.Runtime, error) {
			return build(ctx, afero.NewOsFs(), os.Stdout)
		}),
	)

	err := a.Run(os.Args[1:]...)
	if err != nil {
		slog.Error("tether-echo failed", slogfield.Error(err))
		os.Exit(1)
	}
}

func build(ctx context.Context, fs afero.Fs, out io.Writer) (app.Runtime, error) {
	var cfg Config
	err := app.ConfigFromContext(ctx).Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	initer, err := otelconfig.FromConfig(cfg.OTel)
	if err != nil {
		return nil, err
	}
	if initer != otelconfig.Noop {
		tp, err := initer.Init(ctx)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		if s, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
			app.LifecycleFromContext(ctx).PostRun(s.Shutdown)
		}
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logHandler := maskslog.NewHandler(
		slog.NewJSONHandler(out, &slog.HandlerOptions{
			AddSource: true,
			Level:     cfg.Log.Level,
		}),
		maskslog.Attr("cookies", maskslog.AnonymousStringAttr),
	)
	return newService(cfg, fs, logHandler), nil
}
