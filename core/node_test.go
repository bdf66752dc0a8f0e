package core

import (
	"errors"
	"testing"
)

func TestExecution_Lifecycle(t *testing.T) {
	exec := NewExecution("fetch", "parent", "in")
	if exec.State() != NodeCreated || exec.ID == "" {
		t.Fatalf("unexpected initial execution: %+v", exec)
	}

	if err := exec.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := exec.Start(); err == nil {
		t.Fatal("second start must fail")
	}

	exec.AddDebug("tokens", 3)
	exec.AddDebug("tokens", 4)
	exec.SetDebug("model", "mock")

	if err := exec.Succeed("out"); err != nil {
		t.Fatalf("succeed: %v", err)
	}
	if err := exec.Fail(errors.New("late")); err == nil {
		t.Fatal("terminal execution must reject further transitions")
	}

	res, err := exec.Result()
	if res != "out" || err != nil {
		t.Fatalf("unexpected result %v, %v", res, err)
	}
	if exec.State() != NodeSucceeded || !exec.State().IsTerminal() {
		t.Fatalf("unexpected state %s", exec.State())
	}

	dbg := exec.Debug()
	if dbg["tokens"] != 7 || dbg["model"] != "mock" {
		t.Fatalf("unexpected debug %v", dbg)
	}
}

func TestEvent_FromExecution(t *testing.T) {
	exec := NewExecution("fetch", "p1", map[string]any{"q": "x"})
	_ = exec.Start()
	_ = exec.Fail(errors.New("boom"))

	ev := NewFailedEvent("run-1", exec)
	if ev.Kind != EventRequestFailed || ev.NodeID != exec.ID || ev.ParentID != "p1" || ev.Error != "boom" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !ev.IsCompletion() {
		t.Fatal("failed event closes the call")
	}

	rec, ok := NewNodeRecord(ev)
	if !ok || rec.State != NodeFailed || rec.Error != "boom" || rec.Input != `{"q":"x"}` {
		t.Fatalf("unexpected record %+v", rec)
	}

	if _, ok := NewNodeRecord(NewCreatedEvent("run-1", exec)); ok {
		t.Fatal("created events do not produce records")
	}
}

func TestSummarize_Truncates(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	s := Summarize(string(long))
	if len(s) != maxSummaryLen+3 {
		t.Fatalf("unexpected summary length %d", len(s))
	}
}
