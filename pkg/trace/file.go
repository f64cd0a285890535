package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileSink appends traces as JSON lines to a local file. It is the
// durability fallback when the primary sink is unavailable.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a JSONL sink at path. The file is created lazily
// on first Save.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Save appends one JSON line.
func (s *FileSink) Save(_ context.Context, t *Trace) error {
	line, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshalling trace %s: %w", t.TraceID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening trace fallback file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing trace %s: %w", t.TraceID, err)
	}
	return nil
}
