package config

import (
	"os"
	"strings"
	"time"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceDotEnv   ValueSource = "dotenv"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

// Metadata contains provenance details for loaded configuration.
type Metadata struct {
	sources  map[string]ValueSource
	loadedAt time.Time
}

// Source returns the origin for the given configuration field.
func (m Metadata) Source(field string) ValueSource {
	if m.sources == nil {
		return SourceDefault
	}
	if src, ok := m.sources[field]; ok {
		return src
	}
	return SourceDefault
}

// LoadedAt returns the timestamp when the configuration was constructed.
func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}

// EnvLookup resolves the value for an environment variable.
type EnvLookup func(string) (string, bool)

// Option customises the loader behaviour.
type Option func(*loadOptions)

type loadOptions struct {
	envLookup EnvLookup
	environ   func() []string
	readFile  func(string) ([]byte, error)
	overrides Overrides
}

// WithEnv supplies a custom environment lookup implementation.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// WithEnviron overrides how the loader enumerates environment variables.
// Provider key discovery needs the full set, not just point lookups.
func WithEnviron(environ func() []string) Option {
	return func(o *loadOptions) {
		o.environ = environ
	}
}

// WithOverrides applies caller overrides that take highest precedence.
func WithOverrides(overrides Overrides) Option {
	return func(o *loadOptions) {
		o.overrides = overrides
	}
}

// WithFileReader injects a custom reader, used primarily for tests.
func WithFileReader(reader func(string) ([]byte, error)) Option {
	return func(o *loadOptions) {
		o.readFile = reader
	}
}

// DefaultEnvLookup delegates to os.LookupEnv.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// AliasEnvLookup wraps an EnvLookup with additional alias keys.
func AliasEnvLookup(base EnvLookup, aliases map[string][]string) EnvLookup {
	return func(key string) (string, bool) {
		if base == nil {
			base = DefaultEnvLookup
		}
		if value, ok := base(key); ok && value != "" {
			return value, true
		}
		if list, ok := aliases[key]; ok {
			for _, alias := range list {
				if value, ok := base(alias); ok && value != "" {
					return value, true
				}
			}
		}
		return "", false
	}
}

// DefaultEnvAliases returns the alias map used to resolve legacy environment
// variable names.
func DefaultEnvAliases() map[string][]string {
	aliases := map[string][]string{
		"PORT":                  {"OPTIMAIZER_PORT"},
		"CORS_ORIGIN":           {"OPTIMAIZER_CORS_ORIGIN", "CORS_ALLOWED_ORIGINS"},
		"OPTIMAIZER_ENV":        {"ENVIRONMENT", "NODE_ENV"},
		"OPTIMAIZER_DB_PATH":    {"DB_PATH"},
		"OPTIMAIZER_LOG_LEVEL":  {"LOG_LEVEL"},
		"OPTIMAIZER_LOG_FORMAT": {"LOG_FORMAT"},
	}

	copied := make(map[string][]string, len(aliases))
	for key, list := range aliases {
		copied[key] = append([]string(nil), list...)
	}
	return copied
}

// SnapshotProcessEnv returns a copy of the current process environment.
func SnapshotProcessEnv() map[string]string {
	return snapshotEnviron(os.Environ())
}

func snapshotEnviron(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}
