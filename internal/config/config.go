package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// KnownKeys defines environment variable keys that gravitext recognizes.
var KnownKeys = []string{
	"GRAVITEXT_SERVER_URL",
	"GRAVITEXT_SQLITE_PATH",
	"GRAVITEXT_LOG_LEVEL",
	"GRAVITEXT_API_TOKEN",
	"GRAVITEXT_READONLY",
	"GRAVITEXT_MCP_ALLOWED_TOOLS",
	"GRAVITEXT_DECODE_CACHE_SIZE",
	"GRAVITEXT_DEFAULT_NMAX",
	"GRAVITEXT_DEFAULT_TOPK",
}

// LoadAndApply loads configuration from ~/.gravitext/config.yaml (or .yml)
// and applies values into the process environment for known keys if they are
// not already set. Environment variables take precedence over file values.
func LoadAndApply() error {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil // non-fatal
	}
	base := filepath.Join(home, ".gravitext")
	paths := []string{
		filepath.Join(base, "config.yaml"),
		filepath.Join(base, "config.yml"),
	}
	var data map[string]any
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var m map[string]any
		if err := yaml.Unmarshal(b, &m); err == nil && len(m) > 0 {
			data = m
			break
		}
	}
	if len(data) == 0 {
		return nil
	}
	for _, key := range KnownKeys {
		if os.Getenv(key) != "" {
			continue
		}
		if v, ok := lookupInsensitive(data, key); ok {
			os.Setenv(key, toString(v))
		}
	}
	return nil
}

// EnvInt reads an integer env var, falling back to def when unset or bad.
func EnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func lookupInsensitive(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
