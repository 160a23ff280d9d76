package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// RunMetrics collects timing statistics for one search.
type RunMetrics struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration_ns,omitempty"`
	States     int           `json:"states"`
	MaxSteps   uint32        `json:"max_steps"`
	Workers    int           `json:"workers"`
	Machines   uint64        `json:"machines"`
	Partitions []Partition   `json:"partitions,omitempty"`
}

// Partition is the timing of one worker's range.
type Partition struct {
	Worker   int           `json:"worker"`
	Machines uint64        `json:"machines"`
	Duration time.Duration `json:"duration_ns"`
}

// New starts tracking a run.
func New(runID string, states int, maxSteps uint32, workers int) *RunMetrics {
	return &RunMetrics{
		RunID:     runID,
		StartedAt: time.Now(),
		States:    states,
		MaxSteps:  maxSteps,
		Workers:   workers,
	}
}

// AddPartition records a finished partition.
func (m *RunMetrics) AddPartition(worker int, machines uint64, d time.Duration) {
	m.Partitions = append(m.Partitions, Partition{Worker: worker, Machines: machines, Duration: d})
}

// Finish marks the run as complete after processing machines.
func (m *RunMetrics) Finish(machines uint64) {
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
	m.Machines = machines
}

// CoreTimePerMachine is the CPU time budget spent per machine: wall time
// times workers, divided by machines.
func (m *RunMetrics) CoreTimePerMachine() time.Duration {
	if m.Machines == 0 {
		return 0
	}
	return time.Duration(uint64(m.Duration) * uint64(max(m.Workers, 1)) / m.Machines)
}

// TimePerMachine is the wall time per machine.
func (m *RunMetrics) TimePerMachine() time.Duration {
	if m.Machines == 0 {
		return 0
	}
	return time.Duration(uint64(m.Duration) / m.Machines)
}

// Slowest returns the partition that took longest.
func (m *RunMetrics) Slowest() (Partition, bool) {
	if len(m.Partitions) == 0 {
		return Partition{}, false
	}
	slowest := m.Partitions[0]
	for _, p := range m.Partitions[1:] {
		if p.Duration > slowest.Duration {
			slowest = p
		}
	}
	return slowest, true
}

// PrintSummary writes a one-line timing summary.
func (m *RunMetrics) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "  (That took %s, %s per machine on %d workers -> %s core time per machine)\n",
		m.Duration.Round(time.Millisecond),
		m.TimePerMachine(),
		m.Workers,
		m.CoreTimePerMachine(),
	)
	if p, ok := m.Slowest(); ok && len(m.Partitions) > 1 {
		fmt.Fprintf(w, "  (slowest partition: worker %d, %d machines in %s)\n",
			p.Worker, p.Machines, p.Duration.Round(time.Millisecond))
	}
}

// JSON returns the metrics as formatted JSON.
func (m *RunMetrics) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
