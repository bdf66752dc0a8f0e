package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// maxSummaryLen bounds the input summary stored per node.
const maxSummaryLen = 256

// RunStatus is the terminal outcome of a run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunTimedOut  RunStatus = "timed_out"
)

// NodeRecord is the persisted form of one completed node call.
type NodeRecord struct {
	NodeID    string         `json:"node_id"`
	ParentID  string         `json:"parent_id,omitempty"`
	Name      string         `json:"name"`
	State     NodeState      `json:"state"`
	Input     string         `json:"input,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	LatencyMs int64          `json:"latency_ms"`
	Debug     map[string]any `json:"debug,omitempty"`
}

// NewNodeRecord builds a record from a completion event. ok is false for
// events that do not close a node call.
func NewNodeRecord(ev Event) (NodeRecord, bool) {
	if !ev.IsCompletion() {
		return NodeRecord{}, false
	}

	rec := NodeRecord{
		NodeID:    ev.NodeID,
		ParentID:  ev.ParentID,
		Name:      ev.NodeName,
		State:     NodeSucceeded,
		Input:     Summarize(ev.Input),
		LatencyMs: ev.Latency.Milliseconds(),
		Debug:     ev.Debug,
	}

	if ev.Kind == EventRequestFailed {
		rec.State = NodeFailed
		rec.Error = ev.Error
	} else {
		rec.Result = ev.Result
	}

	return rec, true
}

// RunReport is the structured document produced at run teardown.
type RunReport struct {
	RunID      string         `json:"run_id"`
	Status     RunStatus      `json:"status"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Nodes      []NodeRecord   `json:"nodes"`
	Context    map[string]any `json:"context"`
}

// Duration returns the run wall clock time.
func (r *RunReport) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Failed returns the records of failed nodes.
func (r *RunReport) Failed() []NodeRecord {
	var out []NodeRecord
	for _, n := range r.Nodes {
		if n.State == NodeFailed {
			out = append(out, n)
		}
	}
	return out
}

// Summarize renders v as a bounded single string for reports.
func Summarize(v any) string {
	var s string

	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s = t
	case fmt.Stringer:
		s = t.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			s = fmt.Sprintf("%v", v)
		} else {
			s = string(b)
		}
	}

	if len(s) > maxSummaryLen {
		s = s[:maxSummaryLen] + "..."
	}

	return s
}
