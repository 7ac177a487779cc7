// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package config reads layered configuration from sources such as maps,
// environment variables, YAML and JSON, and decodes the merged result
// into structs tagged with `config`.
//
// Sources are applied in order and later sources override earlier ones:
//
//	m, err := config.Read(
//		config.Map{"bridge": map[string]any{"port": 8080}},
//		config.FromYaml(config.RenderTextTemplate(f, config.TemplateFunc("env", os.Getenv))),
//		config.FromEnv(config.EnvPrefix("TETHER")),
//	)
//	if err != nil {
//		return err
//	}
//
//	var cfg Config
//	err = m.Unmarshal(&cfg)
package config
