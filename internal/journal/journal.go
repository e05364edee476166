// Package journal appends committed lifecycle events to a JSONL file and
// tails it. The journal is a downstream copy of the events table: one
// JSON object per line, append-only, safe to truncate and rebuild.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rivet-tracker/rivet/internal/types"
)

// Entry is one journal line
type Entry struct {
	EventID   int64           `json:"event_id"`
	IssueID   int64           `json:"issue_id"`
	Type      types.EventType `json:"type"`
	ActorID   int64           `json:"actor_id"`
	Parameter int64           `json:"parameter,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Writer appends entries to one journal file
type Writer struct {
	mu   sync.Mutex
	path string
}

// NewWriter creates a writer for the journal at path. The file is created
// lazily on first append.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the journal file path
func (w *Writer) Path() string {
	return w.path
}

// Append writes one event as a JSON line. Each call opens, writes and
// closes the file so concurrent rivet processes interleave whole lines.
func (w *Writer) Append(event *types.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	entry := Entry{
		EventID:   event.ID,
		IssueID:   event.IssueID,
		Type:      event.Type,
		ActorID:   event.ActorID,
		Parameter: event.Parameter,
		CreatedAt: event.CreatedAt,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding journal entry: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing journal: %w", err)
	}
	return nil
}

// AppendAll writes a batch of events in order
func (w *Writer) AppendAll(events []*types.Event) error {
	for _, ev := range events {
		if err := w.Append(ev); err != nil {
			return err
		}
	}
	return nil
}

// Read parses every entry of a journal file. A missing file reads as
// empty. Truncated trailing lines (a writer died mid-append) are skipped.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path) // #nosec G304 - controlled path from config
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	return entries, nil
}
