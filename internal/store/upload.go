package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dialectatlas/tonelab/internal/audio"
	"github.com/dialectatlas/tonelab/internal/errs"
	"github.com/dialectatlas/tonelab/internal/job"
)

const (
	normalizedFile = "normalized.wav"
	originalFile   = "original.bin"
)

// Upload is the persisted metadata for one normalized recording.
type Upload struct {
	ID         string  `json:"upload_id" msgpack:"upload_id"`
	Format     string  `json:"format" msgpack:"format"`
	SampleRate int     `json:"sample_rate" msgpack:"sample_rate"`
	Channels   int     `json:"channels" msgpack:"channels"`
	DurationS  float64 `json:"duration_s" msgpack:"duration_s"`

	// Source metadata from the probe, before normalization.
	SourceFormat   string `json:"source_format,omitempty" msgpack:"source_format,omitempty"`
	SourceRate     int    `json:"source_sample_rate,omitempty" msgpack:"source_sample_rate,omitempty"`
	SourceChannels int    `json:"source_channels,omitempty" msgpack:"source_channels,omitempty"`

	Warnings       []string  `json:"warnings,omitempty" msgpack:"warnings,omitempty"`
	RetainOriginal bool      `json:"retain_original" msgpack:"retain_original"`
	CreatedAt      time.Time `json:"created_at" msgpack:"created_at"`
}

// Uploads stores upload records and their on-disk artifacts.
type Uploads struct {
	db   *DB
	jobs *Jobs
}

// NewUploads builds the upload store. The job store is needed for the
// reference check on delete.
func NewUploads(db *DB, jobs *Jobs) *Uploads {
	return &Uploads{db: db, jobs: jobs}
}

// Put persists the upload record and writes its artifacts. The normalized
// WAV is written before the record so a crash in between leaves an orphan
// directory for the sweeper, never a record without audio.
func (s *Uploads) Put(u *Upload, normalizedWAV, original []byte) error {
	dir := s.db.uploadDir(u.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create upload dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, normalizedFile), normalizedWAV, 0o644); err != nil {
		return fmt.Errorf("store: write normalized audio: %w", err)
	}
	if u.RetainOriginal && original != nil {
		if err := os.WriteFile(filepath.Join(dir, originalFile), original, 0o644); err != nil {
			return fmt.Errorf("store: write original audio: %w", err)
		}
	}
	return s.db.put(keyUpload(u.ID), u)
}

// Get loads one upload record.
func (s *Uploads) Get(id string) (*Upload, error) {
	var u Upload
	if err := s.db.get(keyUpload(id), &u); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.Newf(errs.UploadNotFound, "upload %s not found", id)
		}
		return nil, err
	}
	return &u, nil
}

// ReadNormalizedWAV returns the canonical WAV bytes for an upload.
func (s *Uploads) ReadNormalizedWAV(id string) ([]byte, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.db.uploadDir(id), normalizedFile))
	if err != nil {
		return nil, fmt.Errorf("store: read normalized audio for %s: %w", id, err)
	}
	return data, nil
}

// Normalized loads the canonical PCM and source metadata for an upload,
// satisfying the executor's audio source.
func (s *Uploads) Normalized(ctx context.Context, id string) (*audio.Buffer, job.SourceInfo, error) {
	u, err := s.Get(id)
	if err != nil {
		return nil, job.SourceInfo{}, err
	}
	data, err := s.ReadNormalizedWAV(id)
	if err != nil {
		return nil, job.SourceInfo{}, err
	}
	pcm, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, job.SourceInfo{}, fmt.Errorf("store: decode normalized audio for %s: %w", id, err)
	}
	return pcm, job.SourceInfo{
		DurationS:  u.DurationS,
		SampleRate: u.SampleRate,
		Channels:   u.Channels,
	}, nil
}

// Delete removes an upload and its artifacts. It fails with UploadInUse
// while any job referencing the upload is still queued or running. The
// reference check and the deletion run under the shared guard, so a
// concurrent job claim cannot slip between them.
func (s *Uploads) Delete(id string) error {
	s.db.refMu.Lock()
	defer s.db.refMu.Unlock()
	return s.deleteLocked(id)
}

// deleteLocked is Delete without taking the guard; the sweeper calls it
// while already holding refMu.
func (s *Uploads) deleteLocked(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	active, err := s.jobs.HasActive(id)
	if err != nil {
		return err
	}
	if active {
		return errs.Newf(errs.UploadInUse, "upload %s has queued or running jobs", id).
			WithDetail("upload_id", id)
	}
	if err := s.db.delete(keyUpload(id)); err != nil {
		return err
	}
	return s.RemoveArtifacts(id)
}

// RemoveArtifacts deletes the upload's directory on disk.
func (s *Uploads) RemoveArtifacts(id string) error {
	if err := os.RemoveAll(s.db.uploadDir(id)); err != nil {
		return fmt.Errorf("store: remove artifacts for %s: %w", id, err)
	}
	return nil
}

// All returns every upload record.
func (s *Uploads) All() ([]*Upload, error) {
	var out []*Upload
	err := scan(s.db, []byte("upload:"), func(u *Upload) error {
		out = append(out, u)
		return nil
	})
	return out, err
}

// ArtifactDirs lists the upload IDs that have a directory on disk,
// whether or not a record exists for them.
func (s *Uploads) ArtifactDirs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.db.dataDir, "uploads"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: list upload dirs: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}
