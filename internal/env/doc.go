// Package env provides access to process configuration values. Lookups go
// through the Provider interface so callers can substitute the environment in
// tests, and dotenv files can be merged into the process environment once at
// startup.
package env
