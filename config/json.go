// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/z5labs/tether/internal/try"
)

// Json is a Source which decodes a single JSON object from its reader.
type Json struct {
	r io.Reader
}

// FromJson returns a Source reading a JSON object from r.
// If r is an io.Closer it is closed once the object has been applied.
func FromJson(r io.Reader) Json {
	return Json{r: r}
}

// ErrTrailingJson is the cause of an InvalidJsonError when anything but
// whitespace follows the top level object.
var ErrTrailingJson = errors.New("unexpected data after top level json object")

// InvalidJsonError occurs if the reader does not hold exactly one JSON object.
type InvalidJsonError struct {
	// Offset is the number of bytes consumed before decoding failed.
	Offset int64
	Cause  error
}

// Error implements the error interface.
func (e InvalidJsonError) Error() string {
	return fmt.Sprintf("invalid json at offset %d: %s", e.Offset, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e InvalidJsonError) Unwrap() error {
	return e.Cause
}

// Apply implements the Source interface.
func (src Json) Apply(store Store) (err error) {
	defer try.Close(&err, src.r)

	dec := json.NewDecoder(src.r)

	var m map[string]any
	err = dec.Decode(&m)
	if err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return InvalidJsonError{Offset: dec.InputOffset(), Cause: err}
		}
		return err
	}

	end := dec.InputOffset()
	_, err = dec.Token()
	if err != io.EOF {
		return InvalidJsonError{Offset: end, Cause: ErrTrailingJson}
	}
	return Map(m).Apply(store)
}
