// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package bridge connects a HTTP/HTTPS listener to application code which
// consumes immutable [request.Record] values and answers them later.
//
// [Open] starts listening. For every connection an identifier is derived,
// the still writable response is parked in a [Registry] and, once the body
// has been received, a [request.Record] is submitted to a [task.Runtime]
// for the application's [Handler]. The connection stays open until a
// [Sender] writes to it exactly once, the pending entry expires or the
// client goes away.
//
// Sending to an identifier which is no longer pending is not an error; it is
// logged and otherwise ignored.
package bridge
