// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMethod(t *testing.T) {
	t.Run("will map the verb", func(t *testing.T) {
		testCases := []struct {
			Raw    string
			Method Method
		}{
			{Raw: "GET", Method: Get},
			{Raw: "POST", Method: Post},
			{Raw: "PUT", Method: Put},
			{Raw: "DELETE", Method: Delete},
		}

		for _, testCase := range testCases {
			t.Run("if it is "+testCase.Raw, func(t *testing.T) {
				m, ok := ParseMethod(testCase.Raw)
				if !assert.True(t, ok) {
					return
				}
				if !assert.Equal(t, testCase.Method, m) {
					return
				}
				if !assert.Equal(t, testCase.Raw, m.String()) {
					return
				}
			})
		}
	})

	t.Run("will report false", func(t *testing.T) {
		for _, raw := range []string{"PATCH", "OPTIONS", "HEAD", "get", ""} {
			t.Run("if the verb is "+raw, func(t *testing.T) {
				_, ok := ParseMethod(raw)
				if !assert.False(t, ok) {
					return
				}
			})
		}
	})
}

func TestSelectProtocol(t *testing.T) {
	t.Run("will return HTTP", func(t *testing.T) {
		t.Run("if the protocol is absent", func(t *testing.T) {
			if !assert.Equal(t, HTTP, SelectProtocol("")) {
				return
			}
		})

		t.Run("if the protocol is http", func(t *testing.T) {
			if !assert.Equal(t, HTTP, SelectProtocol("http")) {
				return
			}
		})
	})

	t.Run("will return HTTPS", func(t *testing.T) {
		t.Run("if the protocol is https in any case", func(t *testing.T) {
			if !assert.Equal(t, HTTPS, SelectProtocol("hTtPs")) {
				return
			}
			if !assert.Equal(t, "HTTPS", HTTPS.String()) {
				return
			}
		})
	})
}
