// Package job holds the analysis job model, its status state machine and
// the executor that runs jobs on a bounded worker pool.
package job

import (
	"time"

	"github.com/dialectatlas/tonelab/internal/analysis"
	"github.com/dialectatlas/tonelab/internal/errs"
)

// Status is the job lifecycle state. The set is closed; transitions are
// restricted to the table below.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// transitions is the full set of legal status transitions. Terminal
// states have no outgoing edges.
var transitions = map[Status][]Status{
	StatusQueued:  {StatusRunning, StatusCancelled},
	StatusRunning: {StatusSucceeded, StatusFailed, StatusCancelled},
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a member of the status set.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ModuleRequest names one requested module with its options.
type ModuleRequest struct {
	Name    string           `json:"name" msgpack:"name"`
	Options analysis.Options `json:"options,omitempty" msgpack:"options,omitempty"`
}

// OutputOptions shape the persisted result document.
type OutputOptions struct {
	// View is the default projection returned when a fetch does not name
	// one explicitly.
	View View `json:"view,omitempty" msgpack:"view,omitempty"`
	// IncludeTimeseries toggles the uniform time grid block.
	IncludeTimeseries bool `json:"include_timeseries" msgpack:"include_timeseries"`
	// DownsampleHz thins the timeseries grid to roughly this rate.
	// Zero keeps the native frame rate.
	DownsampleHz float64 `json:"downsample_hz,omitempty" msgpack:"downsample_hz,omitempty"`
}

// DefaultOutputOptions returns the output defaults applied at submission.
func DefaultOutputOptions() OutputOptions {
	return OutputOptions{View: ViewFull, IncludeTimeseries: true, DownsampleHz: 100}
}

// Job is one queued or executed analysis run against an upload.
type Job struct {
	ID       string           `json:"job_id" msgpack:"job_id"`
	UploadID string           `json:"upload_id" msgpack:"upload_id"`
	Mode     analysis.Mode    `json:"mode" msgpack:"mode"`
	Modules  []ModuleRequest  `json:"modules" msgpack:"modules"`
	Global   analysis.Options `json:"options,omitempty" msgpack:"options,omitempty"`
	Output   OutputOptions    `json:"output" msgpack:"output"`

	Status   Status      `json:"status" msgpack:"status"`
	Progress float64     `json:"progress" msgpack:"progress"`
	Stage    string      `json:"stage,omitempty" msgpack:"stage,omitempty"`
	Error    *errs.Error `json:"error,omitempty" msgpack:"error,omitempty"`

	CreatedAt  time.Time `json:"created_at" msgpack:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty" msgpack:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty" msgpack:"finished_at,omitempty"`
}

// ModuleNames returns the requested module names in request order.
func (j *Job) ModuleNames() []string {
	names := make([]string, len(j.Modules))
	for i, m := range j.Modules {
		names[i] = m.Name
	}
	return names
}

// transition moves the job to a new status or reports the illegal edge.
func (j *Job) transition(to Status) error {
	if !CanTransition(j.Status, to) {
		return errs.Newf(errs.AnalysisFailed, "illegal job transition %s -> %s", j.Status, to)
	}
	j.Status = to
	if to.Terminal() {
		j.FinishedAt = time.Now().UTC()
	}
	return nil
}
