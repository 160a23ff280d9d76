package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// JournalEventType categorizes journal events.
type JournalEventType string

const (
	JournalRunStart      JournalEventType = "run.start"
	JournalRunComplete   JournalEventType = "run.complete"
	JournalRunError      JournalEventType = "run.error"
	JournalPartitionDone JournalEventType = "partition.done"
	JournalSingle        JournalEventType = "single"
)

// JournalEvent is one line of the run journal.
type JournalEvent struct {
	Timestamp time.Time        `json:"timestamp"`
	EventType JournalEventType `json:"event_type"`
	RunID     string           `json:"run_id"`
	Success   bool             `json:"success"`
	Duration  time.Duration    `json:"duration_ns,omitempty"`
	Message   string           `json:"message,omitempty"`
	Details   map[string]any   `json:"details,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// JournalConfig configures the journal.
type JournalConfig struct {
	// OutputPath is a file path, "stdout" or "stderr". Empty disables
	// the journal.
	OutputPath string
	RunID      string
}

// Journal appends run events as JSON lines, one object per event.
type Journal struct {
	mu      sync.Mutex
	writer  io.Writer
	runID   string
	enabled bool
}

// NewJournal opens the journal described by cfg. A nil config or empty
// output path yields a disabled journal.
func NewJournal(cfg *JournalConfig) (*Journal, error) {
	if cfg == nil || cfg.OutputPath == "" {
		return &Journal{}, nil
	}

	var writer io.Writer
	switch cfg.OutputPath {
	case "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		writer = f
	}
	return NewJournalWriter(writer, cfg.RunID), nil
}

// NewJournalWriter returns an enabled journal writing to w.
func NewJournalWriter(w io.Writer, runID string) *Journal {
	return &Journal{writer: w, runID: runID, enabled: true}
}

// Enabled reports whether events are written.
func (j *Journal) Enabled() bool { return j != nil && j.enabled }

// Log writes an event. A nil journal discards it.
func (j *Journal) Log(event *JournalEvent) error {
	if !j.Enabled() {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RunID == "" {
		event.RunID = j.runID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal journal event: %w", err)
	}

	_, err = fmt.Fprintf(j.writer, "%s\n", data)
	return err
}

// LogRunStart records the parameters of a search.
func (j *Journal) LogRunStart(states int, maxSteps uint32, workers int, total uint64) error {
	return j.Log(&JournalEvent{
		EventType: JournalRunStart,
		Success:   true,
		Message:   fmt.Sprintf("search of %d-state machines started", states),
		Details: map[string]any{
			"states":    states,
			"max_steps": maxSteps,
			"workers":   workers,
			"total":     total,
		},
	})
}

// LogPartition records a finished partition.
func (j *Journal) LogPartition(worker int, start, end uint64, duration time.Duration) error {
	return j.Log(&JournalEvent{
		EventType: JournalPartitionDone,
		Success:   true,
		Duration:  duration,
		Details: map[string]any{
			"worker": worker,
			"start":  start,
			"end":    end,
		},
	})
}

// LogRunComplete records the result of a search. result is marshalled
// into the details.
func (j *Journal) LogRunComplete(duration time.Duration, result any) error {
	return j.Log(&JournalEvent{
		EventType: JournalRunComplete,
		Success:   true,
		Duration:  duration,
		Message:   "search completed",
		Details:   map[string]any{"result": result},
	})
}

// LogRunError records a failed or cancelled search.
func (j *Journal) LogRunError(duration time.Duration, err error) error {
	return j.Log(&JournalEvent{
		EventType: JournalRunError,
		Success:   false,
		Duration:  duration,
		Message:   "search failed",
		Error:     err.Error(),
	})
}

// LogSingle records the inspection of one machine.
func (j *Journal) LogSingle(machine string, index uint64, category string, steps, score uint32) error {
	return j.Log(&JournalEvent{
		EventType: JournalSingle,
		Success:   true,
		Message:   machine,
		Details: map[string]any{
			"index":    index,
			"category": category,
			"steps":    steps,
			"score":    score,
		},
	})
}

// Close closes the journal file, if any.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	if closer, ok := j.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}
