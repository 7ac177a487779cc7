// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package file

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/z5labs/tether/task"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func newBridge(t *testing.T, fsys afero.Fs) (context.Context, *Bridge) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	rt := task.New()
	go rt.Run(ctx)

	return ctx, NewBridge(fsys, rt)
}

func TestBridge_Write(t *testing.T) {
	t.Run("will round trip", func(t *testing.T) {
		t.Run("if the data is read back from the same path", func(t *testing.T) {
			ctx, b := newBridge(t, afero.NewMemMapFs())
			data := []byte{0x00, 'h', 'i', 0xff}

			_, err := b.Write(ctx, "/data.bin", data).Await(ctx)
			if !assert.Nil(t, err) {
				return
			}

			got, err := b.Read(ctx, "/data.bin").Await(ctx)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, data, got) {
				return
			}
		})
	})

	t.Run("will return an IOError", func(t *testing.T) {
		t.Run("if the filesystem is read only", func(t *testing.T) {
			ctx, b := newBridge(t, afero.NewReadOnlyFs(afero.NewMemMapFs()))

			_, err := b.Write(ctx, "/data.txt", []byte("x")).Await(ctx)

			var ioErr IOError
			if !assert.ErrorAs(t, err, &ioErr) {
				return
			}
			if !assert.Equal(t, "write", ioErr.Op) {
				return
			}
			if !assert.Equal(t, "/data.txt", ioErr.Path) {
				return
			}
		})
	})
}

func TestBridge_Read(t *testing.T) {
	t.Run("will return an IOError", func(t *testing.T) {
		t.Run("if the file does not exist", func(t *testing.T) {
			ctx, b := newBridge(t, afero.NewMemMapFs())

			_, err := b.Read(ctx, "/missing.txt").Await(ctx)

			var ioErr IOError
			if !assert.ErrorAs(t, err, &ioErr) {
				return
			}
			if !assert.Equal(t, "read", ioErr.Op) {
				return
			}
			if !assert.True(t, errors.Is(err, fs.ErrNotExist)) {
				return
			}
		})
	})
}
