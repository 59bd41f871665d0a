// nexor/utils/env.go
package utils

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// GetEnv reads an environment variable or returns a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetEnvDuration parses a duration from the environment. Invalid values are
// logged and replaced by the fallback, which must itself parse.
func GetEnvDuration(logger *slog.Logger, key, fallback string) time.Duration {
	raw := GetEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn("Invalid duration, using default", "key", key, "value", raw, "default", fallback)
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// GetEnvInt parses an integer from the environment, falling back on error.
func GetEnvInt(logger *slog.Logger, key string, fallback int) int {
	raw := GetEnv(key, strconv.Itoa(fallback))
	n, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("Invalid integer, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return n
}

// GetEnvBool reports whether the variable is set to "true".
func GetEnvBool(key string, fallback bool) bool {
	return GetEnv(key, strconv.FormatBool(fallback)) == "true"
}
