// Package config loads the gateway's runtime configuration from the
// environment, logging the provenance (environment vs. default) of every
// value the way the rest of the ambient stack logs provenance of its inputs.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/mathiser/inference-server-dicom-node/internal/log"
)

// ParseString reads key from the environment, falling back to defaultValue.
func ParseString(key, defaultValue string) string {
	l := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		l.Debug().Str("key", key).Str("source", "env").Msg("config value loaded")
		return v
	}
	l.Debug().Str("key", key).Str("source", "default").Msg("config value loaded")
	return defaultValue
}

// ParseInt reads key from the environment as an integer, falling back to defaultValue.
func ParseInt(key string, defaultValue int) int {
	l := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			l.Debug().Str("key", key).Str("source", "env").Int("value", parsed).Msg("config value loaded")
			return parsed
		}
		l.Warn().Str("key", key).Str("raw_value", v).Msg("failed to parse int, using default")
	}
	l.Debug().Str("key", key).Str("source", "default").Int("value", defaultValue).Msg("config value loaded")
	return defaultValue
}

// ParseDuration reads key from the environment as a number of whole seconds,
// falling back to defaultValue. This matches spec.md's second-granularity
// environment keys (DAEMON_RUN_INTERVAL, TIMEOUT).
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	l := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			d := time.Duration(seconds) * time.Second
			l.Debug().Str("key", key).Str("source", "env").Dur("value", d).Msg("config value loaded")
			return d
		}
		l.Warn().Str("key", key).Str("raw_value", v).Msg("failed to parse duration, using default")
	}
	l.Debug().Str("key", key).Str("source", "default").Dur("value", defaultValue).Msg("config value loaded")
	return defaultValue
}

// ParseBool reads key from the environment as a boolean, falling back to defaultValue.
func ParseBool(key string, defaultValue bool) bool {
	l := log.WithComponent("config")
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			l.Debug().Str("key", key).Str("source", "env").Bool("value", parsed).Msg("config value loaded")
			return parsed
		}
		l.Warn().Str("key", key).Str("raw_value", v).Msg("failed to parse bool, using default")
	}
	l.Debug().Str("key", key).Str("source", "default").Bool("value", defaultValue).Msg("config value loaded")
	return defaultValue
}
