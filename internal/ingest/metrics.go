package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// RunMetrics collects statistics for one ingestion run.
type RunMetrics struct {
	Collection    string        `json:"collection"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at,omitempty"`
	Duration      time.Duration `json:"duration_ms,omitempty"`
	Fragments     int           `json:"fragments"`
	Nodes         int           `json:"nodes"`
	Relationships int           `json:"relationships"`
	Inserted      int           `json:"inserted"`
	Skipped       int           `json:"skipped"`
}

// NewRunMetrics starts tracking an ingestion run.
func NewRunMetrics(collection string) *RunMetrics {
	return &RunMetrics{Collection: collection, StartedAt: time.Now()}
}

// Finish marks the run as complete.
func (m *RunMetrics) Finish() {
	m.FinishedAt = time.Now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
}

// WriteJSON dumps the metrics as indented JSON.
func (m *RunMetrics) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// PrintSummary writes a human-readable report.
func (m *RunMetrics) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║       CRUCIBLE INGESTION REPORT      ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Collection:  %-23s ║\n", m.Collection)
	fmt.Fprintf(w, "║ Duration:    %-23s ║\n", m.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Fragments:       %-19d ║\n", m.Fragments)
	fmt.Fprintf(w, "║ Graph nodes:     %-19d ║\n", m.Nodes)
	fmt.Fprintf(w, "║ Relationships:   %-19d ║\n", m.Relationships)
	fmt.Fprintf(w, "║ Vectors added:   %-19d ║\n", m.Inserted)
	fmt.Fprintf(w, "║ Vectors skipped: %-19d ║\n", m.Skipped)
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}
