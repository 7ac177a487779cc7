// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package bridge

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/z5labs/tether/request"
	"github.com/z5labs/tether/task"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*Server
	records chan request.Record
	logs    *syncBuffer
}

func openTestServer(t *testing.T, tlsOpts *TLSOptions, opts ...Option) *testServer {
	ts := &testServer{
		records: make(chan request.Record, 8),
		logs:    &syncBuffer{},
	}

	handlers := Handlers{
		OnRequest: HandlerFunc(func(ctx context.Context, rec request.Record) error {
			ts.records <- rec
			return nil
		}),
	}
	opts = append([]Option{LogHandler(slog.NewJSONHandler(ts.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))}, opts...)

	s, err := Open(context.Background(), 0, tlsOpts, handlers, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})

	ts.Server = s
	return ts
}

func (ts *testServer) url(scheme, path string) string {
	port := ts.Addr().(*net.TCPAddr).Port
	return fmt.Sprintf("%s://127.0.0.1:%d%s", scheme, port, path)
}

func (ts *testServer) nextRecord(t *testing.T) request.Record {
	select {
	case rec := <-ts.records:
		return rec
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for request record")
		return request.Record{}
	}
}

type result struct {
	status int
	header http.Header
	body   []byte
	err    error
}

func do(client *http.Client, req *http.Request) <-chan result {
	ch := make(chan result, 1)
	go func() {
		resp, err := client.Do(req)
		if err != nil {
			ch <- result{err: err}
			return
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		ch <- result{status: resp.StatusCode, header: resp.Header, body: b, err: err}
	}()
	return ch
}

func await(t *testing.T, ch <-chan result) result {
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for response")
		return result{}
	}
}

func newRequest(t *testing.T, method, url, contentType string, body []byte) *http.Request {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func TestOpen(t *testing.T) {
	t.Run("will return a ListenError", func(t *testing.T) {
		t.Run("if it fails to listen", func(t *testing.T) {
			listenErr := errors.New("address already in use")
			listen := func(o *options) {
				o.listen = func(string, string) (net.Listener, error) {
					return nil, listenErr
				}
			}

			_, err := Open(context.Background(), 8080, nil, Handlers{OnRequest: HandlerFunc(func(context.Context, request.Record) error { return nil })}, listen)

			var lerr ListenError
			if !assert.ErrorAs(t, err, &lerr) {
				return
			}
			if !assert.ErrorIs(t, err, listenErr) {
				return
			}
			if !assert.Equal(t, ":8080", lerr.Addr) {
				return
			}
		})
	})

	t.Run("will return a TLSConfigError", func(t *testing.T) {
		t.Run("if only a certificate is given", func(t *testing.T) {
			cert, _ := selfSignedPEM(t)

			_, err := Open(context.Background(), 0, &TLSOptions{Certificate: cert}, Handlers{OnRequest: HandlerFunc(func(context.Context, request.Record) error { return nil })})

			var terr TLSConfigError
			if !assert.ErrorAs(t, err, &terr) {
				return
			}
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if no request handler is given", func(t *testing.T) {
			_, err := Open(context.Background(), 0, nil, Handlers{})
			if !assert.Error(t, err) {
				return
			}
		})
	})
}

func TestServer_ServeHTTP(t *testing.T) {
	t.Run("will answer the connection exactly once", func(t *testing.T) {
		t.Run("if a GET with no body is sent an empty response", func(t *testing.T) {
			ts := openTestServer(t, nil)
			resCh := do(http.DefaultClient, newRequest(t, http.MethodGet, ts.url("http", "/status?verbose=1"), "", nil))

			rec := ts.nextRecord(t)
			if !assert.Equal(t, request.Empty{}, rec.Content) {
				return
			}
			if !assert.Equal(t, request.Get, rec.Method) {
				return
			}
			if !assert.Equal(t, request.HTTP, rec.Protocol) {
				return
			}
			if !assert.Equal(t, "/status?verbose=1", rec.URL) {
				return
			}
			if !assert.Equal(t, "127.0.0.1", rec.IP) {
				return
			}
			if !assert.Equal(t, 0, rec.Cargo.Len()) {
				return
			}
			if !assert.Equal(t, "", rec.Cookies) {
				return
			}
			if !assert.Equal(t, 1, ts.Pending()) {
				return
			}

			err := ts.Sender().SendEmpty(context.Background(), rec.ID)
			if !assert.Nil(t, err) {
				return
			}

			res := await(t, resCh)
			if !assert.Nil(t, res.err) {
				return
			}
			if !assert.Equal(t, http.StatusOK, res.status) {
				return
			}
			if !assert.Empty(t, res.body) {
				return
			}
			if !assert.Equal(t, 0, ts.Pending()) {
				return
			}

			err = ts.Sender().SendEmpty(context.Background(), rec.ID)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.True(t, strings.Contains(ts.logs.String(), "no pending response for correlation id")) {
				return
			}
		})

		t.Run("if a JSON body is echoed back", func(t *testing.T) {
			ts := openTestServer(t, nil)
			req := newRequest(t, http.MethodPost, ts.url("http", "/items"), "application/json", []byte(`{"name":"a"}`))
			req.Header.Set("Cookie", "session=abc")
			resCh := do(http.DefaultClient, req)

			rec := ts.nextRecord(t)
			content, ok := rec.Content.(request.JSON)
			if !assert.True(t, ok) {
				return
			}
			if !assert.Equal(t, `{"name":"a"}`, content.Raw) {
				return
			}
			if !assert.Equal(t, request.Post, rec.Method) {
				return
			}
			if !assert.Equal(t, "session=abc", rec.Cookies) {
				return
			}

			err := ts.Sender().SendJSON(context.Background(), rec.ID, content.Raw)
			if !assert.Nil(t, err) {
				return
			}

			res := await(t, resCh)
			if !assert.Nil(t, res.err) {
				return
			}
			if !assert.Equal(t, "application/json", res.header.Get("Content-Type")) {
				return
			}
			if !assert.Equal(t, `{"name":"a"}`, string(res.body)) {
				return
			}
		})

		t.Run("if a binary upload is echoed back", func(t *testing.T) {
			ts := openTestServer(t, nil)
			upload := []byte{0x00, 0x01, 0xfe, 0xff}
			resCh := do(http.DefaultClient, newRequest(t, http.MethodPut, ts.url("http", "/blob"), "application/octet-stream", upload))

			rec := ts.nextRecord(t)
			content, ok := rec.Content.(request.Binary)
			if !assert.True(t, ok) {
				return
			}

			err := ts.Sender().SendData(context.Background(), rec.ID, content.Bytes)
			if !assert.Nil(t, err) {
				return
			}

			res := await(t, resCh)
			if !assert.Nil(t, res.err) {
				return
			}
			if !assert.Equal(t, upload, res.body) {
				return
			}
		})
	})

	t.Run("will reject the request with 405", func(t *testing.T) {
		t.Run("if the method is not supported", func(t *testing.T) {
			ts := openTestServer(t, nil)

			res := await(t, do(http.DefaultClient, newRequest(t, http.MethodPatch, ts.url("http", "/items"), "", nil)))
			if !assert.Nil(t, res.err) {
				return
			}
			if !assert.Equal(t, http.StatusMethodNotAllowed, res.status) {
				return
			}
			if !assert.Equal(t, "GET, POST, PUT, DELETE", res.header.Get("Allow")) {
				return
			}
			if !assert.Len(t, ts.records, 0) {
				return
			}
			if !assert.Equal(t, 0, ts.Pending()) {
				return
			}
		})
	})

	t.Run("will reject the request with 413", func(t *testing.T) {
		t.Run("if the body is larger than allowed", func(t *testing.T) {
			ts := openTestServer(t, nil, MaxBodyBytes(4))

			res := await(t, do(http.DefaultClient, newRequest(t, http.MethodPost, ts.url("http", "/upload"), "text/plain", []byte("too large"))))
			if !assert.Nil(t, res.err) {
				return
			}
			if !assert.Equal(t, http.StatusRequestEntityTooLarge, res.status) {
				return
			}
			if !assert.Len(t, ts.records, 0) {
				return
			}
			if !assert.Equal(t, 0, ts.Pending()) {
				return
			}
		})
	})

	t.Run("will answer with 504", func(t *testing.T) {
		t.Run("if the response is not sent before the ttl", func(t *testing.T) {
			ts := openTestServer(t, nil, PendingTTL(50*time.Millisecond), SweepInterval(10*time.Millisecond))
			resCh := do(http.DefaultClient, newRequest(t, http.MethodGet, ts.url("http", "/slow"), "", nil))

			rec := ts.nextRecord(t)

			res := await(t, resCh)
			if !assert.Nil(t, res.err) {
				return
			}
			if !assert.Equal(t, http.StatusGatewayTimeout, res.status) {
				return
			}
			if !assert.Equal(t, 0, ts.Pending()) {
				return
			}

			err := ts.Sender().SendText(context.Background(), rec.ID, "too late")
			if !assert.Nil(t, err) {
				return
			}
			if !assert.True(t, strings.Contains(ts.logs.String(), "pending response expired")) {
				return
			}
		})
	})

	t.Run("will answer with 500", func(t *testing.T) {
		t.Run("if the handler returns an error", func(t *testing.T) {
			handlers := Handlers{
				OnRequest: HandlerFunc(func(context.Context, request.Record) error {
					return errors.New("handler failed")
				}),
			}
			s, err := Open(context.Background(), 0, nil, handlers)
			require.NoError(t, err)
			defer s.Shutdown(context.Background())

			ts := &testServer{Server: s}
			res := await(t, do(http.DefaultClient, newRequest(t, http.MethodGet, ts.url("http", "/"), "", nil)))
			if !assert.Nil(t, res.err) {
				return
			}
			if !assert.Equal(t, http.StatusInternalServerError, res.status) {
				return
			}
		})
	})

	t.Run("will answer with 503", func(t *testing.T) {
		t.Run("if the task queue is full", func(t *testing.T) {
			rt := task.New(task.QueueSize(1))
			err := rt.Submit(context.Background(), func(context.Context) error { return nil })
			require.NoError(t, err)

			ts := openTestServer(t, nil, WithTaskRuntime(rt))

			res := await(t, do(http.DefaultClient, newRequest(t, http.MethodGet, ts.url("http", "/"), "", nil)))
			if !assert.Nil(t, res.err) {
				return
			}
			if !assert.Equal(t, http.StatusServiceUnavailable, res.status) {
				return
			}
			if !assert.Equal(t, 0, ts.Pending()) {
				return
			}
		})
	})

	t.Run("will drop the pending entry", func(t *testing.T) {
		t.Run("if the client goes away", func(t *testing.T) {
			ts := openTestServer(t, nil)

			ctx, cancel := context.WithCancel(context.Background())
			req := newRequest(t, http.MethodGet, ts.url("http", "/gone"), "", nil).WithContext(ctx)
			resCh := do(http.DefaultClient, req)

			rec := ts.nextRecord(t)
			cancel()

			res := await(t, resCh)
			if !assert.Error(t, res.err) {
				return
			}

			require.Eventually(t, func() bool { return ts.Pending() == 0 }, 5*time.Second, 10*time.Millisecond)

			err := ts.Sender().SendEmpty(context.Background(), rec.ID)
			if !assert.Nil(t, err) {
				return
			}
		})
	})

	t.Run("will use forwarded headers", func(t *testing.T) {
		t.Run("if they are trusted", func(t *testing.T) {
			ts := openTestServer(t, nil, TrustForwardedHeaders(true))
			req := newRequest(t, http.MethodDelete, ts.url("http", "/items/1"), "", nil)
			req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
			req.Header.Set("X-Forwarded-Proto", "https")
			resCh := do(http.DefaultClient, req)

			rec := ts.nextRecord(t)
			if !assert.Equal(t, "203.0.113.7", rec.IP) {
				return
			}
			if !assert.Equal(t, request.HTTPS, rec.Protocol) {
				return
			}
			if !assert.Equal(t, request.Delete, rec.Method) {
				return
			}

			ts.Sender().SendEmpty(context.Background(), rec.ID)
			await(t, resCh)
		})
	})
}

func TestServer_Close(t *testing.T) {
	t.Run("will keep pending responses writable", func(t *testing.T) {
		t.Run("if the listener is closed", func(t *testing.T) {
			var closes atomic.Int64
			closed := make(chan struct{})
			records := make(chan request.Record, 1)
			handlers := Handlers{
				OnRequest: HandlerFunc(func(ctx context.Context, rec request.Record) error {
					records <- rec
					return nil
				}),
				OnClose: func(context.Context) error {
					if closes.Add(1) == 1 {
						close(closed)
					}
					return nil
				},
			}
			s, err := Open(context.Background(), 0, nil, handlers)
			require.NoError(t, err)
			defer s.Shutdown(context.Background())

			ts := &testServer{Server: s, records: records}
			resCh := do(http.DefaultClient, newRequest(t, http.MethodGet, ts.url("http", "/pending"), "", nil))
			rec := ts.nextRecord(t)

			err = s.Close()
			if !assert.Nil(t, err) {
				return
			}
			err = s.Close()
			if !assert.ErrorIs(t, err, ErrServerClosed) {
				return
			}

			select {
			case <-closed:
			case <-time.After(5 * time.Second):
				t.Fatal("close handler was never called")
			}
			if !assert.Equal(t, int64(1), closes.Load()) {
				return
			}

			err = s.Sender().SendText(context.Background(), rec.ID, "still here")
			if !assert.Nil(t, err) {
				return
			}

			res := await(t, resCh)
			if !assert.Nil(t, res.err) {
				return
			}
			if !assert.Equal(t, "still here", string(res.body)) {
				return
			}
		})
	})
}

func TestServer_Run(t *testing.T) {
	t.Run("will not return an error", func(t *testing.T) {
		t.Run("if the context is cancelled", func(t *testing.T) {
			s, err := Open(context.Background(), 0, nil, Handlers{OnRequest: HandlerFunc(func(context.Context, request.Record) error { return nil })})
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			err = s.Run(ctx)
			if !assert.Nil(t, err) {
				return
			}
		})
	})
}

func selfSignedPEM(t *testing.T) (certPEM, keyPEM []byte) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: "localhost",
		},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(privateKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM
}

func TestTLSOptions(t *testing.T) {
	t.Run("will serve https", func(t *testing.T) {
		t.Run("if a certificate and key are given", func(t *testing.T) {
			cert, key := selfSignedPEM(t)
			ts := openTestServer(t, &TLSOptions{Certificate: cert, Key: key})

			client := &http.Client{
				Transport: &http.Transport{
					TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
				},
			}
			resCh := do(client, newRequest(t, http.MethodGet, ts.url("https", "/secure"), "", nil))

			rec := ts.nextRecord(t)
			if !assert.Equal(t, request.HTTPS, rec.Protocol) {
				return
			}

			err := ts.Sender().SendText(context.Background(), rec.ID, "secure")
			if !assert.Nil(t, err) {
				return
			}

			res := await(t, resCh)
			if !assert.Nil(t, res.err) {
				return
			}
			if !assert.Equal(t, "secure", string(res.body)) {
				return
			}
		})
	})
}
