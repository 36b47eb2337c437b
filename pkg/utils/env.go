package utils

import (
	"os"
	"strconv"
	"sync"
)

// envCache holds previously observed non-empty environment variable values.
// pkg/config reads a handful of SOVEREIGND_* variables through it during
// the process lifetime, so caching avoids repeating the syscall for keys that don't change after the
// process environment is set up.
var envCache sync.Map // map[string]string

// getEnv retrieves the value for key from the cache or the environment. Only
// non-empty values are cached.
func getEnv(key string) (string, bool) {
	if v, ok := envCache.Load(key); ok {
		return v.(string), true
	}
	if v := os.Getenv(key); v != "" {
		envCache.Store(key, v)
		return v, true
	}
	return "", false
}

// clearEnvCache removes any cached value for key. It is primarily used in
// tests where environment variables are modified between calls.
func clearEnvCache(key string) {
	envCache.Delete(key)
}

// EnvOrDefault returns the value of the environment variable identified by
// key, or fallback if it is unset or empty.
func EnvOrDefault(key, fallback string) string {
	if v, ok := getEnv(key); ok {
		return v
	}
	return fallback
}

// EnvOrDefaultInt returns the integer value of the environment variable
// identified by key, or fallback if it is unset, empty, or cannot be parsed
// as an integer.
func EnvOrDefaultInt(key string, fallback int) int {
	v, ok := getEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// EnvOrDefaultUint64 returns the uint64 value of the environment variable
// identified by key, or fallback if it is unset, empty, or cannot be parsed
// as a uint64.
func EnvOrDefaultUint64(key string, fallback uint64) uint64 {
	v, ok := getEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
