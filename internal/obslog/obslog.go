// Package obslog is the process-scoped system log: a bounded ring buffer
// feeding GET /admin/system-logs, plus a thin wrapper over the standard
// logger. Grounded on helpers/middleware/logger.go's CustomLogger, which
// already logs method/path/status/latency/client-ip per request and skips
// /health and /metrics; this generalizes that into a reusable sink instead
// of a gin-only side effect.
package obslog

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Capacity is the maximum number of entries the ring buffer retains.
const Capacity = 500

// Level is the severity of a logged system event.
type Level string

const (
	LevelInfo Level = "info"
	LevelWarn Level = "warn"
	LevelError Level = "error"
)

// Entry is one system log record.
type Entry struct {
	Ts      time.Time `json:"ts"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

// Ring is a mutex-guarded, fixed-capacity, newest-first ring buffer.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
}

var global = &Ring{}

// Global returns the process-wide system log ring buffer.
func Global() *Ring { return global }

// Log appends an entry to the ring buffer and also writes it through the
// standard logger, evicting the oldest entry once Capacity is exceeded.
func (r *Ring) Log(level Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[%s] %s", level, msg)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append([]Entry{{Ts: time.Now().UTC(), Level: level, Message: msg}}, r.entries...)
	if len(r.entries) > Capacity {
		r.entries = r.entries[:Capacity]
	}
}

// Info logs and records an informational entry.
func (r *Ring) Info(format string, args ...any) { r.Log(LevelInfo, format, args...) }

// Warn logs and records a warning entry.
func (r *Ring) Warn(format string, args ...any) { r.Log(LevelWarn, format, args...) }

// Error logs and records an error entry.
func (r *Ring) Error(format string, args ...any) { r.Log(LevelError, format, args...) }

// Entries returns a snapshot of the buffered entries, newest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
