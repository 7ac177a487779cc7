// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package request

import "strings"

// Protocol is the protocol a connection was accepted over.
type Protocol int

const (
	HTTP Protocol = iota
	HTTPS
)

// String implements the fmt.Stringer interface.
func (p Protocol) String() string {
	if p == HTTPS {
		return "HTTPS"
	}
	return "HTTP"
}

// SelectProtocol upper cases raw and maps it to a Protocol.
// An absent or unrecognized value is HTTP.
func SelectProtocol(raw string) Protocol {
	if strings.ToUpper(strings.TrimSpace(raw)) == "HTTPS" {
		return HTTPS
	}
	return HTTP
}
