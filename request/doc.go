// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package request defines the immutable [Record] handed to application code
// for every inbound connection, along with the pieces it is assembled from:
// body accumulation, content classification and method/protocol normalization.
package request
