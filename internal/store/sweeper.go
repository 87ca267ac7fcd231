package store

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper reclaims storage in the background: uploads past the retention
// age with no live jobs, their terminal job and result records, and
// orphaned artifact directories left behind by a crash mid-write.
type Sweeper struct {
	db      *DB
	uploads *Uploads
	jobs    *Jobs
	results *Results

	maxAge   time.Duration
	interval time.Duration
	log      *slog.Logger
}

// NewSweeper builds a sweeper over the given stores.
func NewSweeper(db *DB, uploads *Uploads, jobs *Jobs, results *Results, maxAge, interval time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		db:       db,
		uploads:  uploads,
		jobs:     jobs,
		results:  results,
		maxAge:   maxAge,
		interval: interval,
		log:      log,
	}
}

// Run sweeps on the configured interval until ctx is done. The first
// sweep happens one interval after start, not immediately, so a restart
// does not race service warm-up.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(time.Now().UTC())
		}
	}
}

// Sweep performs one pass. Exported so tests and the CLI can trigger it
// directly with a controlled clock.
func (s *Sweeper) Sweep(now time.Time) {
	s.sweepExpired(now)
	s.sweepOrphans()
}

// sweepExpired deletes uploads older than the retention age that no
// queued or running job references, along with their terminal jobs and
// results. The reference check and the deletion run under the shared
// guard so the executor cannot claim a job against a vanishing upload.
func (s *Sweeper) sweepExpired(now time.Time) {
	uploads, err := s.uploads.All()
	if err != nil {
		s.log.Error("sweep: list uploads", "err", err)
		return
	}

	for _, u := range uploads {
		if now.Sub(u.CreatedAt) < s.maxAge {
			continue
		}

		s.db.refMu.Lock()
		active, err := s.jobs.HasActive(u.ID)
		if err != nil {
			s.db.refMu.Unlock()
			s.log.Error("sweep: reference check", "upload", u.ID, "err", err)
			continue
		}
		if active {
			s.db.refMu.Unlock()
			continue
		}

		jobs, err := s.jobs.ByUpload(u.ID)
		if err == nil {
			for _, j := range jobs {
				if derr := s.jobs.Delete(j.ID); derr != nil {
					s.log.Error("sweep: delete job", "job", j.ID, "err", derr)
				}
			}
		}
		if err := s.uploads.deleteLocked(u.ID); err != nil {
			s.log.Error("sweep: delete upload", "upload", u.ID, "err", err)
		} else {
			s.log.Info("sweep: reclaimed upload", "upload", u.ID, "age", now.Sub(u.CreatedAt))
		}
		s.db.refMu.Unlock()
	}
}

// sweepOrphans removes artifact directories that have no upload record.
func (s *Sweeper) sweepOrphans() {
	ids, err := s.uploads.ArtifactDirs()
	if err != nil {
		s.log.Error("sweep: list artifact dirs", "err", err)
		return
	}
	for _, id := range ids {
		if _, err := s.uploads.Get(id); err == nil {
			continue
		}
		if err := s.uploads.RemoveArtifacts(id); err != nil {
			s.log.Error("sweep: remove orphan", "upload", id, "err", err)
		} else {
			s.log.Info("sweep: removed orphan artifacts", "upload", id)
		}
	}
}
