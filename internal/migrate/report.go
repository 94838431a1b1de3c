package migrate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/trackbridge/trackbridge/internal/reconcile"
)

// TrackerReport is the outcome for one tracker.
type TrackerReport struct {
	ID     int               `json:"id" yaml:"id"`
	Name   string            `json:"name" yaml:"name"`
	Items  int               `json:"items" yaml:"items"`
	Result *reconcile.Result `json:"result,omitempty" yaml:"result,omitempty"`
}

// Report summarizes a run.
type Report struct {
	RunID          string           `json:"run_id" yaml:"run_id"`
	DryRun         bool             `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	StartedAt      time.Time        `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time        `json:"finished_at" yaml:"finished_at"`
	ExistingIssues int              `json:"existing_issues" yaml:"existing_issues"`
	Trackers       []TrackerReport  `json:"trackers" yaml:"trackers"`
	Total          reconcile.Result `json:"total" yaml:"total"`
}

func (r *Report) add(t TrackerReport) {
	r.Trackers = append(r.Trackers, t)
	if t.Result != nil {
		r.Total.Add(t.Result)
	}
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteYAML writes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return encoder.Close()
}

// SaveYAML writes the report to path.
func (r *Report) SaveYAML(path string) error {
	f, err := os.Create(path) // #nosec G304 - path from the --report flag
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := r.WriteYAML(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
