// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"os"
	"strings"

	"github.com/z5labs/tether/config/key"
)

// Env represents a Source where its underlying values
// are extracted from environment variables.
type Env struct {
	environ func() []string
	prefix  string
	sep     string
}

// EnvOption configures an [Env] source.
type EnvOption func(*Env)

// EnvPrefix restricts the source to variables named PREFIX_*. The prefix
// is stripped, the remainder lower cased and split into nested keys on
// the key separator, e.g. TETHER_BRIDGE__PENDING__TTL sets bridge.pending.ttl.
//
// Without a prefix every variable is applied verbatim as a top level key.
func EnvPrefix(prefix string) EnvOption {
	return func(e *Env) {
		e.prefix = prefix
	}
}

// EnvKeySeparator sets the separator between nested keys of prefixed
// variables. Default is a double underscore.
func EnvKeySeparator(sep string) EnvOption {
	return func(e *Env) {
		e.sep = sep
	}
}

// FromEnv returns a Source which will apply its config
// from the environment variables available to the
// current process.
func FromEnv(opts ...EnvOption) Env {
	e := Env{
		environ: os.Environ,
		sep:     "__",
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Apply implements the Source interface.
func (src Env) Apply(store Store) error {
	for _, pair := range src.environ() {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if src.prefix == "" {
			err := store.Set(key.Name(k), v)
			if err != nil {
				return err
			}
			continue
		}

		rest, ok := strings.CutPrefix(k, src.prefix+"_")
		if !ok || rest == "" {
			continue
		}

		var chain key.Chain
		for _, name := range strings.Split(strings.ToLower(rest), src.sep) {
			chain = append(chain, key.Name(name))
		}
		err := store.Set(chain, v)
		if err != nil {
			return err
		}
	}
	return nil
}
