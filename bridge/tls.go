// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package bridge

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/z5labs/tether/file"
)

// TLSConfig names the files and settings an HTTPS listener is built from.
// Every field is optional.
type TLSConfig struct {
	CertFile     string   `config:"cert_file"`
	KeyFile      string   `config:"key_file"`
	ClientCAFile string   `config:"client_ca_file"`
	MinVersion   string   `config:"min_version"`
	NextProtos   []string `config:"next_protos"`
	ServerName   string   `config:"server_name"`
}

// TLSOptions are passed to [Open] to serve HTTPS. Absent fields are left
// unset on the resulting tls.Config rather than defaulted.
type TLSOptions struct {
	// PEM encoded certificate chain and private key. Both or neither must be set.
	Certificate []byte
	Key         []byte

	// PEM encoded CAs used to verify client certificates, when presented.
	ClientCAs []byte

	MinVersion uint16
	NextProtos []string
	ServerName string
}

// TLSConfigError occurs when TLSOptions can not be turned into a tls.Config.
type TLSConfigError struct {
	Cause error
}

// Error implements the error interface.
func (e TLSConfigError) Error() string {
	return fmt.Sprintf("invalid tls options: %s", e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e TLSConfigError) Unwrap() error {
	return e.Cause
}

var (
	errHalfKeyPair    = errors.New("certificate and key must be set together")
	errNoClientCAs    = errors.New("no certificates found in client ca pem")
	errUnknownVersion = errors.New("unknown tls version")
	tlsVersionsByName = map[string]uint16{
		"1.0": tls.VersionTLS10,
		"1.1": tls.VersionTLS11,
		"1.2": tls.VersionTLS12,
		"1.3": tls.VersionTLS13,
	}
)

func (opts *TLSOptions) config() (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: opts.MinVersion,
		NextProtos: opts.NextProtos,
		ServerName: opts.ServerName,
	}

	hasCert, hasKey := len(opts.Certificate) > 0, len(opts.Key) > 0
	if hasCert != hasKey {
		return nil, TLSConfigError{Cause: errHalfKeyPair}
	}
	if hasCert {
		pair, err := tls.X509KeyPair(opts.Certificate, opts.Key)
		if err != nil {
			return nil, TLSConfigError{Cause: err}
		}
		cfg.Certificates = []tls.Certificate{pair}
	}

	if len(opts.ClientCAs) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(opts.ClientCAs) {
			return nil, TLSConfigError{Cause: errNoClientCAs}
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return cfg, nil
}

// LoadTLSOptions reads the files named by cfg through fb.
// A nil cfg means plain HTTP and yields nil TLSOptions.
func LoadTLSOptions(ctx context.Context, fb *file.Bridge, cfg *TLSConfig) (*TLSOptions, error) {
	if cfg == nil {
		return nil, nil
	}

	opts := &TLSOptions{
		NextProtos: cfg.NextProtos,
		ServerName: cfg.ServerName,
	}
	if cfg.MinVersion != "" {
		v, ok := tlsVersionsByName[cfg.MinVersion]
		if !ok {
			return nil, TLSConfigError{Cause: fmt.Errorf("%w: %s", errUnknownVersion, cfg.MinVersion)}
		}
		opts.MinVersion = v
	}

	files := []struct {
		path string
		dst  *[]byte
	}{
		{path: cfg.CertFile, dst: &opts.Certificate},
		{path: cfg.KeyFile, dst: &opts.Key},
		{path: cfg.ClientCAFile, dst: &opts.ClientCAs},
	}
	for _, f := range files {
		if f.path == "" {
			continue
		}
		b, err := fb.Read(ctx, f.path).Await(ctx)
		if err != nil {
			return nil, err
		}
		*f.dst = b
	}
	return opts, nil
}
