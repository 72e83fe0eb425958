// Package config is the core of the runtime configuration plane: the
// enumerated key set, environment seeding, validation, masking, and the
// in-memory Runtime map that is swapped atomically on reload. Persisting to
// the system_config table and publishing changes over ConfigBus are done by
// its callers (cmd/gateway and internal/admin). Grounded on app.go's
// godotenv.Load()+os.Getenv boot idiom, generalized from ad hoc env reads
// into an enumerated, validated map.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// RequiredKeys enumerates every config key that must resolve to a non-empty
// value before the gateway can serve traffic.
var RequiredKeys = []string{
	"OPENROUTER_API_KEY",
	"ADMIN_API_KEY",
	"OPENROUTER_HTTP_REFERER",
	"OPENROUTER_X_TITLE",
	"LOG_MODE",
	"REDIS_URL",
	"DATABASE_URL",
	"WEBUI_DATABASE_URL",
}

// recognizedKeys is the full set of keys POST /config will accept; any
// other key present in a request body is silently ignored.
var recognizedKeys = map[string]bool{}

func init() {
	for _, k := range RequiredKeys {
		recognizedKeys[k] = true
	}
}

// Recognized reports whether key is one POST /config will persist.
func Recognized(key string) bool {
	return recognizedKeys[key]
}

// Runtime holds the process's in-memory view of the effective
// configuration, safe for concurrent reads and atomic whole-map swaps on
// reload.
type Runtime struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewRuntime constructs an empty runtime config; callers populate it via
// Reload before serving traffic.
func NewRuntime() *Runtime {
	return &Runtime{values: map[string]string{}}
}

// Get returns the current value for key and whether it is set.
func (r *Runtime) Get(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	return v, ok
}

// Snapshot returns a defensive copy of the entire effective config map.
func (r *Runtime) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Reload atomically replaces the in-memory config map.
func (r *Runtime) Reload(values map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = values
}

// EnvDefaults reads RequiredKeys (and any other recognized key) from the
// process environment, used to seed SystemConfig rows on first boot.
func EnvDefaults() map[string]string {
	out := map[string]string{}
	for k := range recognizedKeys {
		if v := os.Getenv(k); v != "" {
			out[k] = v
		}
	}
	return out
}

// Validate checks that every required key resolves to a non-empty value in
// values, returning a descriptive error naming the missing keys sorted for
// deterministic output.
func Validate(values map[string]string) error {
	var missing []string
	for _, k := range RequiredKeys {
		if strings.TrimSpace(values[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("Missing required config: %s", strings.Join(missing, ", "))
}

// Mask renders a config value for display: keys containing KEY, PASSWORD,
// or SECRET are redacted to their first 4 + 8 stars + last 4 characters, or
// all stars when the value is too short to safely show any of it.
func Mask(key, value string) string {
	if !isSensitiveKey(key) {
		return value
	}
	if len(value) <= 8 {
		return "********"
	}
	return value[:4] + "********" + value[len(value)-4:]
}

func isSensitiveKey(key string) bool {
	upper := strings.ToUpper(key)
	return strings.Contains(upper, "KEY") || strings.Contains(upper, "PASSWORD") || strings.Contains(upper, "SECRET")
}

// MaskAll applies Mask across an entire config map, returning a new map.
func MaskAll(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = Mask(k, v)
	}
	return out
}
