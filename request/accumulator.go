// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package request

import (
	"bytes"
	"errors"
	"io"
)

// ErrStreamEnded is returned when a chunk arrives after the stream ended.
var ErrStreamEnded = errors.New("request: body stream already ended")

// Accumulator buffers the body chunks of a single connection in arrival
// order. It is not safe for concurrent use; a connection's chunks are
// delivered by one goroutine.
type Accumulator struct {
	buf   bytes.Buffer
	ended bool
	onEnd func([]byte)
}

// NewAccumulator returns an Accumulator which calls onEnd exactly once,
// with the accumulated body, when [Accumulator.End] is called. The body
// is nil if no bytes were received.
func NewAccumulator(onEnd func(body []byte)) *Accumulator {
	return &Accumulator{onEnd: onEnd}
}

// Write implements the io.Writer interface by appending chunk to the body.
func (a *Accumulator) Write(chunk []byte) (int, error) {
	if a.ended {
		return 0, ErrStreamEnded
	}
	return a.buf.Write(chunk)
}

// End signals that the stream is complete. Only the first call has any effect.
func (a *Accumulator) End() {
	if a.ended {
		return
	}
	a.ended = true

	var body []byte
	if a.buf.Len() > 0 {
		body = a.buf.Bytes()
	}
	a.onEnd(body)
}

// Accumulate copies r into a and ends the stream once r reports io.EOF.
// If reading fails the stream is abandoned and End is never called.
func Accumulate(a *Accumulator, r io.Reader) error {
	if r == nil {
		a.End()
		return nil
	}
	_, err := io.Copy(a, r)
	if err != nil {
		return err
	}
	a.End()
	return nil
}
