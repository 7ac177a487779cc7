// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package file bridges filesystem reads and writes into the same
// asynchronous convention used for responses: every operation returns
// a [task.Future] which carries either the result or an [IOError].
package file

import (
	"context"
	"fmt"
	"os"

	"github.com/z5labs/tether/task"

	"github.com/spf13/afero"
)

// IOError describes a failed filesystem operation.
type IOError struct {
	Op    string
	Path  string
	Cause error
}

// Error implements the error interface.
func (e IOError) Error() string {
	return fmt.Sprintf("failed to %s file %s: %s", e.Op, e.Path, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e IOError) Unwrap() error {
	return e.Cause
}

// Bridge executes filesystem operations on a task.Runtime.
type Bridge struct {
	fs   afero.Fs
	rt   *task.Runtime
	perm os.FileMode
}

// Option configures a Bridge.
type Option func(*Bridge)

// FileMode sets the permissions used when Write creates a file.
//
// Default is 0644.
func FileMode(perm os.FileMode) Option {
	return func(b *Bridge) {
		b.perm = perm
	}
}

// NewBridge returns a Bridge over fs. Use afero.NewOsFs for the host filesystem.
func NewBridge(fs afero.Fs, rt *task.Runtime, opts ...Option) *Bridge {
	b := &Bridge{
		fs:   fs,
		rt:   rt,
		perm: 0o644,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Read resolves to the full contents of the file at path.
func (b *Bridge) Read(ctx context.Context, path string) *task.Future[[]byte] {
	return task.Spawn(ctx, b.rt, func(context.Context) ([]byte, error) {
		data, err := afero.ReadFile(b.fs, path)
		if err != nil {
			return nil, IOError{Op: "read", Path: path, Cause: err}
		}
		return data, nil
	})
}

// Write resolves once data has replaced the contents of the file at path.
func (b *Bridge) Write(ctx context.Context, path string, data []byte) *task.Future[struct{}] {
	return task.Spawn(ctx, b.rt, func(context.Context) (struct{}, error) {
		err := afero.WriteFile(b.fs, path, data, b.perm)
		if err != nil {
			return struct{}{}, IOError{Op: "write", Path: path, Cause: err}
		}
		return struct{}{}, nil
	})
}
