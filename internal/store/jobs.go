package store

import (
	"errors"
	"strings"

	"github.com/dialectatlas/tonelab/internal/errs"
	"github.com/dialectatlas/tonelab/internal/job"
)

// Jobs stores job records plus the jobs_by_upload secondary index used
// for the upload reference check.
type Jobs struct {
	db *DB
}

// NewJobs builds the job store.
func NewJobs(db *DB) *Jobs {
	return &Jobs{db: db}
}

// Put persists a job record and maintains the upload index.
func (s *Jobs) Put(j *job.Job) error {
	if err := s.db.put(keyJob(j.ID), j); err != nil {
		return err
	}
	// The index value is empty; status lives in the job record so there
	// is exactly one place it can be stale.
	return s.db.put(keyJobByUpload(j.UploadID, j.ID), struct{}{})
}

// Get loads one job record.
func (s *Jobs) Get(id string) (*job.Job, error) {
	var j job.Job
	if err := s.db.get(keyJob(id), &j); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.Newf(errs.JobNotFound, "job %s not found", id)
		}
		return nil, err
	}
	return &j, nil
}

// Delete removes a job record, its index entry and any stored result.
func (s *Jobs) Delete(id string) error {
	j, err := s.Get(id)
	if err != nil {
		return err
	}
	return s.db.delete(
		keyJob(id),
		keyJobByUpload(j.UploadID, id),
		keyResult(id),
	)
}

// ByUpload returns every job referencing the upload.
func (s *Jobs) ByUpload(uploadID string) ([]*job.Job, error) {
	ids, err := s.idsByUpload(uploadID)
	if err != nil {
		return nil, err
	}
	out := make([]*job.Job, 0, len(ids))
	for _, id := range ids {
		j, err := s.Get(id)
		if err != nil {
			if errs.Is(err, errs.JobNotFound) {
				continue // index entry outlived the record
			}
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// HasActive reports whether any job referencing the upload is queued or
// running.
func (s *Jobs) HasActive(uploadID string) (bool, error) {
	jobs, err := s.ByUpload(uploadID)
	if err != nil {
		return false, err
	}
	for _, j := range jobs {
		if !j.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Jobs) idsByUpload(uploadID string) ([]string, error) {
	prefix := []byte("jobs_by_upload:" + uploadID + ":")
	var ids []string
	err := s.db.scanKeys(prefix, func(key []byte) error {
		ids = append(ids, strings.TrimPrefix(string(key), string(prefix)))
		return nil
	})
	return ids, err
}
