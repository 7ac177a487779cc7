// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package request

import (
	"errors"
	"mime"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// Content is the classification of a request body. It is one of
// [Empty], [JSON], [Text] or [Binary].
type Content interface {
	isContent()
}

// Empty is a request without a body.
type Empty struct{}

// JSON is a body declared as application/json.
type JSON struct {
	Raw string
}

// Text is any other body which decodes as text.
type Text struct {
	ContentType string
	Raw         string
}

// Binary is a body treated as opaque bytes. The bytes are only
// reachable through Bytes so they are never copied eagerly.
type Binary struct {
	ContentType string
	Bytes       Accessor
}

func (Empty) isContent()  {}
func (JSON) isContent()   {}
func (Text) isContent()   {}
func (Binary) isContent() {}

// ErrAccessorConsumed is returned when an [Accessor] is invoked more than once.
var ErrAccessorConsumed = errors.New("request: accessor already consumed")

// Accessor exposes a byte buffer to a single consuming function.
type Accessor func(consume func([]byte)) error

// NewAccessor returns an Accessor over b which may be invoked once.
func NewAccessor(b []byte) Accessor {
	var used atomic.Bool
	return func(consume func([]byte)) error {
		if !used.CompareAndSwap(false, true) {
			return ErrAccessorConsumed
		}
		consume(b)
		return nil
	}
}

// Classify turns a body buffer and its content-type header into a Content.
// A nil or empty body is always [Empty]. The content type is kept as given.
func Classify(body []byte, contentType string) Content {
	if len(body) == 0 {
		return Empty{}
	}

	mediaType := parseMediaType(contentType)
	if !isTextual(mediaType) || !utf8.Valid(body) {
		return Binary{
			ContentType: contentType,
			Bytes:       NewAccessor(body),
		}
	}
	if mediaType == "application/json" {
		return JSON{Raw: string(body)}
	}
	return Text{
		ContentType: contentType,
		Raw:         string(body),
	}
}

func parseMediaType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

var textualMediaTypes = map[string]bool{
	"application/json":                  true,
	"application/xml":                   true,
	"application/javascript":            true,
	"application/x-www-form-urlencoded": true,
}

// An undeclared media type is textual as long as the body is valid UTF-8.
func isTextual(mediaType string) bool {
	if mediaType == "" {
		return true
	}
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	if strings.HasSuffix(mediaType, "+json") || strings.HasSuffix(mediaType, "+xml") {
		return true
	}
	return textualMediaTypes[mediaType]
}
