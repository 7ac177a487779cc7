// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package otelslog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/z5labs/tether/correlation"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type logRecord struct {
	Message       string `json:"msg"`
	CorrelationID string `json:"correlation_id"`
	OTel          struct {
		TraceID string `json:"trace_id"`
		SpanID  string `json:"span_id"`
	} `json:"otel"`
}

func decode(t *testing.T, buf *bytes.Buffer) (logRecord, bool) {
	var record logRecord
	err := json.Unmarshal(buf.Bytes(), &record)
	if !assert.Nil(t, err) {
		return record, false
	}
	return record, true
}

func TestHandler_Handle(t *testing.T) {
	t.Run("will not add trace id, span id or correlation id", func(t *testing.T) {
		t.Run("if the context carries none of them", func(t *testing.T) {
			var buf bytes.Buffer
			log := New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{}))

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			log.InfoContext(ctx, "test")

			record, ok := decode(t, &buf)
			if !ok {
				return
			}
			if !assert.Equal(t, "test", record.Message) {
				return
			}
			if !assert.Empty(t, record.OTel.TraceID) {
				return
			}
			if !assert.Empty(t, record.OTel.SpanID) {
				return
			}
			if !assert.Empty(t, record.CorrelationID) {
				return
			}
		})
	})

	t.Run("will add trace id and span id", func(t *testing.T) {
		t.Run("if the span context is valid", func(t *testing.T) {
			var buf bytes.Buffer
			log := New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{}))

			exporter, err := stdouttrace.New(stdouttrace.WithWriter(io.Discard))
			if !assert.Nil(t, err) {
				return
			}
			tp := sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(exporter),
				sdktrace.WithResource(resource.Default()),
			)
			defer tp.Shutdown(context.Background())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			spanCtx, span := tp.Tracer("otelslog").Start(ctx, "test")
			defer span.End()
			if !assert.True(t, span.SpanContext().IsValid()) {
				return
			}

			log.InfoContext(spanCtx, "test")

			record, ok := decode(t, &buf)
			if !ok {
				return
			}
			if !assert.Equal(t, span.SpanContext().TraceID().String(), record.OTel.TraceID) {
				t.Log(buf.String())
				return
			}
			if !assert.Equal(t, span.SpanContext().SpanID().String(), record.OTel.SpanID) {
				t.Log(buf.String())
				return
			}
			if !assert.Empty(t, record.CorrelationID) {
				return
			}
		})
	})

	t.Run("will add the correlation id", func(t *testing.T) {
		t.Run("if the context carries one", func(t *testing.T) {
			var buf bytes.Buffer
			log := New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{}))

			id := correlation.Generate(correlation.Inputs{
				Path:       "/status",
				RemoteAddr: "127.0.0.1:5000",
				Arrival:    time.Unix(1700000000, 0),
				ClientIP:   "127.0.0.1",
			})
			ctx := correlation.NewContext(context.Background(), id)

			log.With("component", "bridge").InfoContext(ctx, "test")

			record, ok := decode(t, &buf)
			if !ok {
				return
			}
			if !assert.Equal(t, id.String(), record.CorrelationID) {
				return
			}
			if !assert.Empty(t, record.OTel.TraceID) {
				return
			}
		})
	})
}

func TestNewHandler(t *testing.T) {
	t.Run("will not wrap the handler twice", func(t *testing.T) {
		t.Run("if it is already a *Handler", func(t *testing.T) {
			h := NewHandler(slog.NewTextHandler(io.Discard, nil))

			if !assert.Same(t, h, NewHandler(h)) {
				return
			}
		})
	})
}
