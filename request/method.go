// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package request

import "net/http"

// Method is the closed set of verbs a [Record] can carry.
type Method int

const (
	Get Method = iota + 1
	Post
	Put
	Delete
)

// String implements the fmt.Stringer interface.
func (m Method) String() string {
	switch m {
	case Get:
		return http.MethodGet
	case Post:
		return http.MethodPost
	case Put:
		return http.MethodPut
	case Delete:
		return http.MethodDelete
	default:
		return "UNKNOWN"
	}
}

// AllowedMethods lists every verb ParseMethod accepts, in header form.
var AllowedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
}

// ParseMethod maps an exact, upper case verb to a Method.
// Any other verb reports false.
func ParseMethod(raw string) (Method, bool) {
	switch raw {
	case http.MethodGet:
		return Get, true
	case http.MethodPost:
		return Post, true
	case http.MethodPut:
		return Put, true
	case http.MethodDelete:
		return Delete, true
	default:
		return 0, false
	}
}
