// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package maskslog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandler_Handle(t *testing.T) {
	t.Run("will mask the attribute", func(t *testing.T) {
		t.Run("if its key is registered", func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(NewHandler(
				slog.NewJSONHandler(&buf, nil),
				Attr("cookies", AnonymousStringAttr),
			))

			log.Info("assembled request record", slog.String("cookies", "session=abc"), slog.String("path", "/"))

			var record struct {
				Cookies string `json:"cookies"`
				Path    string `json:"path"`
			}
			err := json.Unmarshal(buf.Bytes(), &record)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "****", record.Cookies) {
				return
			}
			if !assert.Equal(t, "/", record.Path) {
				return
			}
		})

		t.Run("if it is nested in a group", func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(NewHandler(
				slog.NewJSONHandler(&buf, nil),
				Attr("cookies", AnonymousStringAttr),
			))

			log.Info("test", slog.Group("request", slog.String("cookies", "session=abc")))

			var record struct {
				Request struct {
					Cookies string `json:"cookies"`
				} `json:"request"`
			}
			err := json.Unmarshal(buf.Bytes(), &record)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "****", record.Request.Cookies) {
				return
			}
		})

		t.Run("if it is added with WithAttrs", func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(NewHandler(
				slog.NewJSONHandler(&buf, nil),
				Attr("cookies", AnonymousStringAttr),
			))

			log.With(slog.String("cookies", "session=abc")).WithGroup("g").Info("test", slog.String("cookies", "again"))

			var record struct {
				Cookies string `json:"cookies"`
				G       struct {
					Cookies string `json:"cookies"`
				} `json:"g"`
			}
			err := json.Unmarshal(buf.Bytes(), &record)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "****", record.Cookies) {
				return
			}
			if !assert.Equal(t, "****", record.G.Cookies) {
				return
			}
		})
	})
}
