// Package config loads runtime configuration from multiple sources (YAML files,
// environment variables, CLI flags) with precedence: CLI flags > YAML config >
// Environment variables > Defaults. Environment values are read through an
// env.Provider so tests never depend on the real process environment.
package config
