// Package diag is the persisted connection diagnostics trail. Transport
// drivers record every attempt here so that flaky bridge ports can be
// debugged after the fact, across process restarts.
package diag

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level classifies a diagnostics entry
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// DefaultMaxEntries bounds the persisted ring; oldest entries are evicted
const DefaultMaxEntries = 200

// retention is how long entries survive across restarts
const retention = 24 * time.Hour

// Entry is one diagnostics event. Port is 0 when the event is not tied to
// a bridge port.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Port      int       `json:"port,omitempty"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}

// Summary aggregates the trail for quick troubleshooting
type Summary struct {
	Total   int           `json:"total"`
	ByLevel map[Level]int `json:"by_level"`
	ByPort  map[int]int   `json:"by_port"`
}

// Log is an append-only, size-bounded, file-persisted event trail
type Log struct {
	filePath   string
	maxEntries int
	entries    []Entry
	warnedSave bool
	mu         sync.Mutex
}

// New loads the trail from disk, pruning entries older than 24h. A missing
// file is fine; it is created on first append.
func New(filePath string) (*Log, error) {
	l := &Log{
		filePath:   filePath,
		maxEntries: DefaultMaxEntries,
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load diagnostics log: %w", err)
		}
		return l, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupt trail is not worth failing startup over; start fresh
		return l, nil
	}

	cutoff := time.Now().Add(-retention)
	for _, e := range entries {
		if e.Timestamp.After(cutoff) {
			l.entries = append(l.entries, e)
		}
	}

	return l, nil
}

// Log appends an entry, trims the ring, and persists synchronously.
// Persistence failures are reported to stderr and never raised.
func (l *Log) Log(level Level, message string, details string, port int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, Entry{
		Timestamp: time.Now(),
		Level:     level,
		Port:      port,
		Message:   message,
		Details:   details,
	})

	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}

	l.save()
}

// Info records an informational event with no port context
func (l *Log) Info(message string) {
	l.Log(LevelInfo, message, "", 0)
}

// Entries returns a copy of the current trail, oldest first
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Summarize returns counts by level and by port
func (l *Log) Summarize() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Summary{
		Total:   len(l.entries),
		ByLevel: make(map[Level]int),
		ByPort:  make(map[int]int),
	}
	for _, e := range l.entries {
		s.ByLevel[e.Level]++
		if e.Port != 0 {
			s.ByPort[e.Port]++
		}
	}
	return s
}

// Export renders the full trail as text for manual troubleshooting
func (l *Log) Export() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var b strings.Builder
	for _, e := range l.entries {
		fmt.Fprintf(&b, "[%s] %-7s", e.Timestamp.Format(time.RFC3339), e.Level)
		if e.Port != 0 {
			fmt.Fprintf(&b, " port=%d", e.Port)
		}
		fmt.Fprintf(&b, " %s", e.Message)
		if e.Details != "" {
			fmt.Fprintf(&b, " (%s)", e.Details)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Ports returns the distinct ports seen in the trail, ascending
func (l *Log) Ports() []int {
	summary := l.Summarize()
	ports := make([]int, 0, len(summary.ByPort))
	for p := range summary.ByPort {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}

// Clear empties the trail and persists the empty state
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	l.save()
}

// save persists under the lock. Storage failure (quota, permissions) must
// not break printing, so it only warns once per process.
func (l *Log) save() {
	data, err := json.Marshal(l.entries)
	if err == nil {
		err = os.WriteFile(l.filePath, data, 0644)
	}
	if err != nil && !l.warnedSave {
		fmt.Fprintf(os.Stderr, "Warning: failed to persist diagnostics log: %v\n", err)
		l.warnedSave = true
	}
}
