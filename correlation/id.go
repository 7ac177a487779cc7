// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package correlation

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID is an opaque, fixed format correlation identifier.
type ID uuid.UUID

// Nil is the zero ID. Generate never returns it.
var Nil ID

// String returns the canonical textual form of the ID.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// MarshalText implements the encoding.TextMarshaler interface.
func (id ID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (id *ID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// Parse decodes an ID previously rendered by [ID.String].
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, err
	}
	return ID(u), nil
}

// Inputs are the per-connection attributes an ID is derived from.
// Missing attributes are treated as their zero values.
type Inputs struct {
	Path       string
	RemoteAddr string
	Arrival    time.Time
	ClientIP   string
}

var namespace = uuid.MustParse("1d5c0f6e-8a4b-4e39-9b0d-7c2e5f1a3b68")

// Generate derives the ID for the given inputs. Identical inputs always
// produce the same ID.
func Generate(in Inputs) ID {
	var arrival int64
	if !in.Arrival.IsZero() {
		arrival = in.Arrival.UnixNano()
	}

	var sb strings.Builder
	writeField(&sb, in.Path)
	writeField(&sb, in.RemoteAddr)
	writeField(&sb, strconv.FormatInt(arrival, 10))
	writeField(&sb, in.ClientIP)

	return ID(uuid.NewSHA1(namespace, []byte(sb.String())))
}

// length prefixed so ("ab", "c") and ("a", "bc") never share an encoding
func writeField(sb *strings.Builder, s string) {
	sb.WriteString(strconv.Itoa(len(s)))
	sb.WriteByte(':')
	sb.WriteString(s)
}

type contextKey struct{}

// NewContext returns a copy of parent carrying id.
func NewContext(parent context.Context, id ID) context.Context {
	return context.WithValue(parent, contextKey{}, id)
}

// FromContext extracts the ID stored by [NewContext], if any.
func FromContext(ctx context.Context) (ID, bool) {
	id, ok := ctx.Value(contextKey{}).(ID)
	return id, ok
}
