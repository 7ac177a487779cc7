// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package request

import (
	"time"

	"github.com/z5labs/tether/correlation"
)

// Record is the immutable description of one inbound connection.
// It is created once the request body has been fully received.
type Record struct {
	URL      string
	ID       correlation.ID
	Time     time.Time
	Cookies  string
	Cargo    Cargo
	Content  Content
	IP       string
	Host     string
	Protocol Protocol
	Method   Method
}

// Cargo is an immutable key value bag for annotations added by
// downstream handlers. The zero value is empty and ready to use.
type Cargo struct {
	m map[string]string
}

// Get returns the value stored under key.
func (c Cargo) Get(key string) (string, bool) {
	v, ok := c.m[key]
	return v, ok
}

// Len returns the number of entries in c.
func (c Cargo) Len() int {
	return len(c.m)
}

// With returns a copy of c with key set to value. c itself is unchanged.
func (c Cargo) With(key, value string) Cargo {
	m := make(map[string]string, len(c.m)+1)
	for k, v := range c.m {
		m[k] = v
	}
	m[key] = value
	return Cargo{m: m}
}

// Range calls f for every entry until f returns false.
func (c Cargo) Range(f func(key, value string) bool) {
	for k, v := range c.m {
		if !f(k, v) {
			return
		}
	}
}
