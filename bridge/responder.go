// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package bridge

import (
	"errors"
	"net/http"
	"sync"

	"github.com/z5labs/tether/correlation"
	"github.com/z5labs/tether/request"
)

// Response is written to a pending connection by a [Sender].
type Response struct {
	// StatusCode defaults to 200 when zero.
	StatusCode int
	Header     http.Header

	// Body is invoked once with a function which writes its bytes to the
	// connection. A nil Body writes no body.
	Body request.Accessor
}

// Responder is the exclusively owned, writable half of a pending connection.
// Only the holder obtained from the [Registry] may write to it.
type Responder struct {
	w    http.ResponseWriter
	done chan struct{}
	once sync.Once
}

func newResponder(w http.ResponseWriter) *Responder {
	return &Responder{
		w:    w,
		done: make(chan struct{}),
	}
}

// Registry holds the responses which have not been written yet.
type Registry = correlation.Registry[*Responder]

// NewRegistry returns an empty Registry to be shared by a [Server] and its [Sender]s.
func NewRegistry() *Registry {
	return correlation.NewRegistry[*Responder]()
}

func (r *Responder) respond(resp Response) error {
	defer r.release()

	h := r.w.Header()
	for k, vs := range resp.Header {
		h[k] = append([]string(nil), vs...)
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	r.w.WriteHeader(status)

	if resp.Body == nil {
		return nil
	}

	var werr error
	aerr := resp.Body(func(b []byte) {
		if werr != nil {
			return
		}
		_, werr = r.w.Write(b)
	})
	return errors.Join(aerr, werr)
}

// release lets the connection's handler return, completing the response.
func (r *Responder) release() {
	r.once.Do(func() {
		close(r.done)
	})
}

func statusResponse(code int) Response {
	return Response{
		StatusCode: code,
		Header: http.Header{
			"Content-Type": []string{"text/plain; charset=utf-8"},
		},
		Body: request.NewAccessor([]byte(http.StatusText(code) + "\n")),
	}
}
