package store

import (
	"errors"

	"github.com/dialectatlas/tonelab/internal/errs"
	"github.com/dialectatlas/tonelab/internal/job"
)

// Results stores one result document per succeeded job.
type Results struct {
	db *DB
}

// NewResults builds the result store.
func NewResults(db *DB) *Results {
	return &Results{db: db}
}

// Put persists a result. Results are write-once: a second write for the
// same job is rejected, the stored document never changes after the job
// succeeds.
func (s *Results) Put(jobID string, r *job.Result) error {
	exists, err := s.db.exists(keyResult(jobID))
	if err != nil {
		return err
	}
	if exists {
		return errs.Newf(errs.AnalysisFailed, "result for job %s already persisted", jobID)
	}
	return s.db.put(keyResult(jobID), r)
}

// Get loads the result for a job, or ResultNotReady when none exists.
func (s *Results) Get(jobID string) (*job.Result, error) {
	var r job.Result
	if err := s.db.get(keyResult(jobID), &r); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.Newf(errs.ResultNotReady, "no result for job %s", jobID)
		}
		return nil, err
	}
	return &r, nil
}

// Delete removes a stored result; absent results are not an error.
func (s *Results) Delete(jobID string) error {
	return s.db.delete(keyResult(jobID))
}
