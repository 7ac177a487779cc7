// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/z5labs/tether/correlation"
	"github.com/z5labs/tether/internal/noop"
	"github.com/z5labs/tether/internal/otelslog"
	"github.com/z5labs/tether/internal/slogfield"
	"github.com/z5labs/tether/request"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// WriteError occurs when a pending response was found but writing it failed.
// The entry is consumed regardless.
type WriteError struct {
	ID    correlation.ID
	Cause error
}

// Error implements the error interface.
func (e WriteError) Error() string {
	return fmt.Sprintf("failed to write response for %s: %s", e.ID, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e WriteError) Unwrap() error {
	return e.Cause
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// SenderLogHandler sets the slog.Handler used for stale sends and write failures.
func SenderLogHandler(h slog.Handler) SenderOption {
	return func(s *Sender) {
		s.log = otelslog.New(h)
	}
}

// Sender writes responses to pending connections.
type Sender struct {
	log      *slog.Logger
	registry *Registry
}

// NewSender returns a Sender consuming entries from registry.
func NewSender(registry *Registry, opts ...SenderOption) *Sender {
	s := &Sender{
		log:      slog.New(noop.LogHandler{}),
		registry: registry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send consumes the pending entry for id and writes resp to it.
// If id is not pending, because it was already answered, expired or never
// existed, Send logs a warning and returns nil. Only write failures are
// returned, as a [WriteError].
func (s *Sender) Send(ctx context.Context, id correlation.ID, resp Response) error {
	ctx = correlation.NewContext(ctx, id)
	spanCtx, span := otel.Tracer("bridge").Start(ctx, "Sender.Send")
	defer span.End()

	h, ok := s.registry.TakeAndRemove(id)
	if !ok {
		span.SetAttributes(attribute.Bool("tether.pending", false))
		s.log.WarnContext(spanCtx, "no pending response for correlation id")
		return nil
	}
	span.SetAttributes(attribute.Bool("tether.pending", true))

	err := h.respond(resp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		s.log.ErrorContext(spanCtx, "failed to write response", slogfield.Error(err))
		return WriteError{ID: id, Cause: err}
	}
	return nil
}

// SendData writes the bytes exposed by data as application/octet-stream.
func (s *Sender) SendData(ctx context.Context, id correlation.ID, data request.Accessor) error {
	return s.Send(ctx, id, Response{
		Header: http.Header{"Content-Type": []string{"application/octet-stream"}},
		Body:   data,
	})
}

// SendText writes text as text/plain.
func (s *Sender) SendText(ctx context.Context, id correlation.ID, text string) error {
	return s.Send(ctx, id, Response{
		Header: http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:   request.NewAccessor([]byte(text)),
	})
}

// SendJSON writes raw, which must already be encoded, as application/json.
func (s *Sender) SendJSON(ctx context.Context, id correlation.ID, raw string) error {
	return s.Send(ctx, id, Response{
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   request.NewAccessor([]byte(raw)),
	})
}

// SendEmpty completes the response without a body.
func (s *Sender) SendEmpty(ctx context.Context, id correlation.ID) error {
	return s.Send(ctx, id, Response{})
}
