package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// ErrNotFound is returned by Get for unknown run ids.
var ErrNotFound = errors.New("report not found")

// Store persists run reports.
type Store interface {
	// Save stores or replaces the report of r.RunID.
	Save(ctx context.Context, r *core.RunReport) error
	// Get returns the report of runID or ErrNotFound.
	Get(ctx context.Context, runID string) (*core.RunReport, error)
	// List returns summaries of all stored reports ordered by start time.
	List(ctx context.Context) ([]Summary, error)
}

// Summary is the listing view of a stored report.
type Summary struct {
	RunID      string         `json:"run_id"`
	Status     core.RunStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Nodes      int            `json:"nodes"`
}

// Summarize builds the Summary of r.
func Summarize(r *core.RunReport) Summary {
	return Summary{
		RunID:      r.RunID,
		Status:     r.Status,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Nodes:      len(r.Nodes),
	}
}

func encode(r *core.RunReport) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil report")
	}
	if r.RunID == "" {
		return nil, errors.New("report without run id")
	}

	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report %s: %w", r.RunID, err)
	}

	return b, nil
}

func decode(b []byte) (*core.RunReport, error) {
	var r core.RunReport
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}
