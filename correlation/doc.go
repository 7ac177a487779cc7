// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package correlation ties an inbound connection to the response which is
// eventually written for it.
//
// An [ID] is derived deterministically from the attributes of a connection
// by [Generate]. The [Registry] maps that [ID] to the still writable
// response handle until it is consumed exactly once by [Registry.TakeAndRemove]
// or expired by [Registry.Sweep].
package correlation
