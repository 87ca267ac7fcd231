package job

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusCancelled, true},
		{StatusQueued, StatusSucceeded, false},
		{StatusQueued, StatusFailed, false},
		{StatusRunning, StatusSucceeded, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusCancelled, true},
		{StatusRunning, StatusQueued, false},
		{StatusSucceeded, StatusRunning, false},
		{StatusSucceeded, StatusFailed, false},
		{StatusFailed, StatusRunning, false},
		{StatusCancelled, StatusRunning, false},
		{StatusCancelled, StatusQueued, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusSucceeded, StatusFailed, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusQueued, StatusRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestTransitionSetsFinishedAt(t *testing.T) {
	j := &Job{Status: StatusQueued, CreatedAt: time.Now().UTC()}

	if err := j.transition(StatusRunning); err != nil {
		t.Fatalf("queued -> running: %v", err)
	}
	if !j.FinishedAt.IsZero() {
		t.Error("FinishedAt set on a non-terminal transition")
	}
	if err := j.transition(StatusSucceeded); err != nil {
		t.Fatalf("running -> succeeded: %v", err)
	}
	if j.FinishedAt.IsZero() {
		t.Error("FinishedAt not set on a terminal transition")
	}

	if err := j.transition(StatusRunning); err == nil {
		t.Error("transition out of a terminal state accepted")
	}
	if j.Status != StatusSucceeded {
		t.Errorf("status mutated by a rejected transition: %s", j.Status)
	}
}

func TestValidView(t *testing.T) {
	for _, v := range []string{"full", "summary", "timeseries"} {
		if !ValidView(v) {
			t.Errorf("ValidView(%q) = false", v)
		}
	}
	if ValidView("debug") {
		t.Error("ValidView accepted an unknown view")
	}
}

func TestDefaultOutputOptions(t *testing.T) {
	o := DefaultOutputOptions()
	if o.View != ViewFull || !o.IncludeTimeseries || o.DownsampleHz != 100 {
		t.Errorf("unexpected defaults: %+v", o)
	}
}
