package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

var _ Writer = (*JSONWriter)(nil)

// JSONWriter writes one JSON object per line.
type JSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{enc: json.NewEncoder(w)}
}

func (w *JSONWriter) Write(_ context.Context, entry *AuditLogEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(entry); err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	return nil
}

// MemoryWriter keeps entries in memory, in write order.
type MemoryWriter struct {
	mu      sync.Mutex
	entries []AuditLogEntry
}

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

func (w *MemoryWriter) Write(_ context.Context, entry *AuditLogEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries = append(w.entries, *entry)

	return nil
}

func (w *MemoryWriter) Entries() []AuditLogEntry {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]AuditLogEntry, len(w.entries))
	copy(out, w.entries)

	return out
}
