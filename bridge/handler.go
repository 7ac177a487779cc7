// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/z5labs/tether/correlation"
	"github.com/z5labs/tether/internal/slogfield"
	"github.com/z5labs/tether/request"
)

var allowHeader = strings.Join(request.AllowedMethods, ", ")

// ServeHTTP implements the http.Handler interface. It parks w in the
// registry and only returns once the pending entry has been consumed.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	arrival := s.now()

	method, ok := request.ParseMethod(r.Method)
	if !ok {
		s.log.WarnContext(r.Context(), "rejecting unsupported method", slogfield.Method(r.Method), slogfield.Path(r.URL.Path))
		w.Header().Set("Allow", allowHeader)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	clientIP := s.clientIP(r)
	id := correlation.Generate(correlation.Inputs{
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		Arrival:    arrival,
		ClientIP:   clientIP,
	})
	ctx := correlation.NewContext(r.Context(), id)

	resp := newResponder(w)
	var deadline time.Time
	if s.ttl > 0 {
		deadline = arrival.Add(s.ttl)
	}
	displaced, collided := s.registry.Put(id, resp, deadline)
	if collided {
		s.log.WarnContext(ctx, "correlation id collision, answering displaced connection")
		displaced.respond(statusResponse(http.StatusInternalServerError))
	}

	var rec request.Record
	acc := request.NewAccumulator(func(body []byte) {
		rec = request.Record{
			URL:      r.URL.RequestURI(),
			ID:       id,
			Time:     arrival,
			Cookies:  cookies(r.Header),
			Content:  request.Classify(body, r.Header.Get("Content-Type")),
			IP:       clientIP,
			Host:     r.Host,
			Protocol: request.SelectProtocol(s.protocol(r)),
			Method:   method,
		}
	})

	body := r.Body
	if s.maxBodyBytes > 0 && body != nil {
		body = http.MaxBytesReader(w, body, s.maxBodyBytes)
	}
	err := request.Accumulate(acc, body)
	if err != nil {
		status := http.StatusBadRequest
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			status = http.StatusRequestEntityTooLarge
		}
		s.log.WarnContext(ctx, "abandoning request body", slogfield.StatusCode(status), slogfield.Error(err))
		s.withdraw(resp, id, statusResponse(status))
		return
	}

	s.log.DebugContext(
		ctx,
		"assembled request record",
		slogfield.Method(r.Method),
		slogfield.Path(r.URL.Path),
		slogfield.String("content", fmt.Sprintf("%T", rec.Content)),
		slogfield.String("client_ip", rec.IP),
		slogfield.String("cookies", rec.Cookies),
	)

	err = s.tasks.Submit(ctx, s.handle(id, rec))
	if err != nil {
		s.log.ErrorContext(ctx, "failed to submit request", slogfield.Error(err))
		s.withdraw(resp, id, statusResponse(http.StatusServiceUnavailable))
		return
	}

	s.await(ctx, resp, id)
}

func (s *Server) handle(id correlation.ID, rec request.Record) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx = correlation.NewContext(ctx, id)

		err := s.handlers.OnRequest.Handle(ctx, rec)
		if err == nil {
			return nil
		}
		h, ok := s.registry.TakeAndRemove(id)
		if ok {
			h.respond(statusResponse(http.StatusInternalServerError))
		}
		return err
	}
}

// withdraw answers resp with fallback if it is still pending and waits
// for whoever consumed it otherwise.
func (s *Server) withdraw(resp *Responder, id correlation.ID, fallback Response) {
	h, ok := s.registry.TakeAndRemoveFunc(id, func(h *Responder) bool { return h == resp })
	if ok {
		h.respond(fallback)
		return
	}
	<-resp.done
}

func (s *Server) await(ctx context.Context, resp *Responder, id correlation.ID) {
	select {
	case <-resp.done:
		return
	case <-ctx.Done():
	}

	_, ok := s.registry.TakeAndRemoveFunc(id, func(h *Responder) bool { return h == resp })
	if ok {
		s.log.DebugContext(ctx, "client went away before its response was sent")
		resp.release()
		return
	}
	// someone else holds the entry and is writing to it
	<-resp.done
}

func (s *Server) clientIP(r *http.Request) string {
	if s.trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) protocol(r *http.Request) string {
	if s.trustForwarded {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			return proto
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func cookies(h http.Header) string {
	if c := h.Get("Cookie"); c != "" {
		return c
	}
	return h.Get("Cookies")
}
