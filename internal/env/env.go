package env

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Provider resolves configuration values by key.
type Provider interface {
	// Get returns the value stored under key, or fallback when the key is
	// empty or not set. The boolean reports whether a value was found.
	Get(key, fallback string) (string, bool)
}

// LookupFunc has the same contract as os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Reader is a Provider backed by the process environment.
type Reader struct {
	lookup LookupFunc
	logger *zap.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithLookup replaces the environment lookup, primarily for tests.
func WithLookup(lookup LookupFunc) ReaderOption {
	return func(r *Reader) {
		if lookup != nil {
			r.lookup = lookup
		}
	}
}

// NewReader returns a Reader over os.LookupEnv that reports invalid keys to logger.
func NewReader(logger *zap.Logger, opts ...ReaderOption) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reader{
		lookup: os.LookupEnv,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get implements Provider. An empty key is logged and treated as not found.
func (r *Reader) Get(key, fallback string) (string, bool) {
	if key == "" {
		r.logger.Error("configuration key is required")
		return fallback, false
	}
	if value, ok := r.lookup(key); ok {
		return value, true
	}
	return fallback, false
}

// Map is a LookupFunc source backed by a fixed set of values.
type Map map[string]string

// Lookup implements LookupFunc.
func (m Map) Lookup(key string) (string, bool) {
	value, ok := m[key]
	return value, ok
}

// Load reads dotenv files into the process environment. Missing files are
// skipped and variables that are already set are left untouched. It returns
// the files that were actually loaded.
func Load(files ...string) ([]string, error) {
	present := make([]string, 0, len(files))
	for _, file := range files {
		if strings.TrimSpace(file) == "" {
			continue
		}
		if _, err := os.Stat(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat env file %s: %w", file, err)
		}
		present = append(present, file)
	}
	if len(present) == 0 {
		return present, nil
	}
	if err := godotenv.Load(present...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	return present, nil
}
