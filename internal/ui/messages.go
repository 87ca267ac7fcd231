package ui

import "github.com/dialectatlas/tonelab/internal/service"

// StatusMsg carries one polled progress snapshot from the service.
type StatusMsg struct {
	Status *service.JobStatus
}

// JobDoneMsg indicates the job reached a terminal state.
type JobDoneMsg struct {
	Status *service.JobStatus
	Err    error
}
