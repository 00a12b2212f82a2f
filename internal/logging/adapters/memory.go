package adapters

import (
	"sync"

	"screening-pipeline/internal/logging/types"
)

// MemoryAdapter keeps entries in memory. It backs tests and the in-process
// debug view of recent task events.
type MemoryAdapter struct {
	name    string
	limit   int
	entries []types.LogEntry
	mu      sync.Mutex
}

// NewMemoryAdapter creates an adapter retaining at most limit entries (0 = unbounded)
func NewMemoryAdapter(name string, limit int) *MemoryAdapter {
	return &MemoryAdapter{name: name, limit: limit}
}

func (a *MemoryAdapter) Write(entry *types.LogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	copied := *entry
	copied.Fields = make(map[string]interface{}, len(entry.Fields))
	for k, v := range entry.Fields {
		copied.Fields[k] = v
	}
	a.entries = append(a.entries, copied)
	if a.limit > 0 && len(a.entries) > a.limit {
		a.entries = a.entries[len(a.entries)-a.limit:]
	}
	return nil
}

// Entries returns a snapshot of the retained entries, oldest first
func (a *MemoryAdapter) Entries() []types.LogEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.LogEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Find returns the retained entries with the given message
func (a *MemoryAdapter) Find(message string) []types.LogEntry {
	var out []types.LogEntry
	for _, e := range a.Entries() {
		if e.Message == message {
			out = append(out, e)
		}
	}
	return out
}

func (a *MemoryAdapter) Close() error { return nil }

func (a *MemoryAdapter) Health() error { return nil }

func (a *MemoryAdapter) Name() string { return a.name }
