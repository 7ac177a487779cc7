// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package slogfield standardizes the slog attribute keys used across tether.
package slogfield

import (
	"log/slog"
	"time"
)

// Bool returns an slog.Attr for a bool.
func Bool(key string, value bool) slog.Attr {
	return slog.Bool(key, value)
}

// Duration returns an slog.Attr for a time.Duration.
func Duration(key string, d time.Duration) slog.Attr {
	return slog.Duration(key, d)
}

// Error returns an slog.Attr for a error.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// String returns an slog.Attr for a string.
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Int returns an slog.Attr for a int.
func Int(key string, n int) slog.Attr {
	return slog.Int(key, n)
}

// Uint returns an slog.Attr for a uint.
func Uint(key string, n uint) slog.Attr {
	return slog.Uint64(key, uint64(n))
}

// CorrelationID returns the slog.Attr every component uses for a correlation identifier.
func CorrelationID(id string) slog.Attr {
	return slog.String("correlation_id", id)
}

// Method returns an slog.Attr for a HTTP method.
func Method(method string) slog.Attr {
	return slog.String("http_method", method)
}

// Path returns an slog.Attr for a request path.
func Path(path string) slog.Attr {
	return slog.String("http_path", path)
}

// StatusCode returns an slog.Attr for a HTTP response status code.
func StatusCode(code int) slog.Attr {
	return slog.Int("http_status_code", code)
}
