// Package service is the external surface of tonelab: uploads, jobs,
// results and the capabilities query. It wires the normalizer, the stores
// and the executor together and performs all synchronous validation, so
// everything below it only sees well-formed requests.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dialectatlas/tonelab/internal/analysis"
	"github.com/dialectatlas/tonelab/internal/audio"
	"github.com/dialectatlas/tonelab/internal/config"
	"github.com/dialectatlas/tonelab/internal/errs"
	"github.com/dialectatlas/tonelab/internal/job"
	"github.com/dialectatlas/tonelab/internal/store"
)

// Service ties the upload, job and result surfaces together.
type Service struct {
	cfg *config.Config
	log *slog.Logger

	db      *store.DB
	uploads *store.Uploads
	jobs    *store.Jobs
	results *store.Results

	normalizer *audio.Normalizer
	registry   *analysis.Registry
	executor   *job.Executor
	sweeper    *store.Sweeper
}

// Options configures New beyond the config file.
type Options struct {
	// Decoder is the audio decode backend. Tests inject a WAV-only fake;
	// production uses the ffmpeg decoder.
	Decoder audio.Decoder
	// InMemoryStore runs badger without disk persistence.
	InMemoryStore bool
	Logger        *slog.Logger
}

// New builds a stopped service; Start launches the workers and sweeper.
func New(cfg *config.Config, opts Options) (*Service, error) {
	if opts.Decoder == nil {
		opts.Decoder = audio.NewFFmpegDecoder()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	log := opts.Logger

	db, err := store.Open(store.Options{
		DataDir:  cfg.DataDir,
		InMemory: opts.InMemoryStore,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}

	jobs := store.NewJobs(db)
	uploads := store.NewUploads(db, jobs)
	results := store.NewResults(db)

	maxDur := cfg.Limits.MaxDurationContinuousS
	if cfg.Limits.MaxDurationSingleS > maxDur {
		maxDur = cfg.Limits.MaxDurationSingleS
	}
	normalizer := audio.NewNormalizer(opts.Decoder, cfg.Limits.MaxUploadBytes, maxDur, cfg.Analysis.SampleRate, log)

	registry := analysis.NewRegistry(analysis.SegmentationTuning{
		SyllableMinDurationS: cfg.Analysis.SyllableMinDurationS,
		SyllableMaxDurationS: cfg.Analysis.SyllableMaxDurationS,
	})

	executor := job.NewExecutor(job.ExecutorConfig{
		Jobs:       jobs,
		Results:    results,
		Source:     uploads,
		Registry:   registry,
		RefMu:      db.RefMu(),
		Workers:    cfg.Workers.Count,
		QueueDepth: cfg.Workers.QueueDepth,
		Logger:     log,
	})

	sweeper := store.NewSweeper(db, uploads, jobs, results, cfg.Retention.MaxAge, cfg.Retention.Interval, log)

	return &Service{
		cfg:        cfg,
		log:        log,
		db:         db,
		uploads:    uploads,
		jobs:       jobs,
		results:    results,
		normalizer: normalizer,
		registry:   registry,
		executor:   executor,
		sweeper:    sweeper,
	}, nil
}

// Start launches the worker pool and, when enabled, the retention sweeper.
func (s *Service) Start(ctx context.Context) {
	s.executor.Start(ctx)
	if s.cfg.Retention.Enabled {
		go s.sweeper.Run(ctx)
	}
}

// Close stops the workers and closes the store.
func (s *Service) Close() error {
	s.executor.Stop()
	return s.db.Close()
}

// Sweeper exposes the retention sweeper for manual sweeps.
func (s *Service) Sweeper() *store.Sweeper {
	return s.sweeper
}

// CreateUploadRequest carries one upload submission.
type CreateUploadRequest struct {
	Data   []byte
	Format string
	// Normalize is accepted for interface compatibility; normalization is
	// mandatory for analysis, so false only adds a warning.
	Normalize      bool
	RetainOriginal bool
}

// CreateUpload validates, normalizes and persists a recording.
func (s *Service) CreateUpload(ctx context.Context, req CreateUploadRequest) (*store.Upload, error) {
	if !formatSupported(req.Format) {
		return nil, errs.Newf(errs.UnsupportedOption, "unsupported format %q", req.Format).
			WithDetail("supported_formats", config.SupportedFormats)
	}

	norm, err := s.normalizer.Normalize(ctx, req.Data, req.Format)
	if err != nil {
		return nil, err
	}

	warnings := norm.Warnings
	if !req.Normalize {
		warnings = append(warnings, "normalization is mandatory for analysis; normalize=false ignored")
	}

	u := &store.Upload{
		ID:             uuid.NewString(),
		Format:         "wav",
		SampleRate:     norm.SampleRate,
		Channels:       1,
		DurationS:      norm.DurationS,
		SourceFormat:   norm.SourceFormat,
		SourceRate:     norm.SourceRate,
		SourceChannels: norm.SourceChannels,
		Warnings:       warnings,
		RetainOriginal: req.RetainOriginal,
		CreatedAt:      time.Now().UTC(),
	}

	var original []byte
	if req.RetainOriginal {
		original = req.Data
	}
	if err := s.uploads.Put(u, norm.WAV, original); err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}
	s.log.Info("upload created", "upload", u.ID, "format", norm.SourceFormat, "duration_s", u.DurationS)
	return u, nil
}

// GetUpload returns upload metadata.
func (s *Service) GetUpload(id string) (*store.Upload, error) {
	return s.uploads.Get(id)
}

// ReadNormalized returns the canonical WAV bytes for an upload.
func (s *Service) ReadNormalized(id string) ([]byte, error) {
	return s.uploads.ReadNormalizedWAV(id)
}

// DeleteUpload removes an upload unless a live job references it.
func (s *Service) DeleteUpload(id string) error {
	return s.uploads.Delete(id)
}

// CreateJobRequest carries one job submission.
type CreateJobRequest struct {
	UploadID string
	Mode     string
	Modules  []job.ModuleRequest
	// Global options applied to every module (e.g. time_step); a module's
	// own options win on conflict.
	Options analysis.Options
	Output  *job.OutputOptions
}

// CreateJob validates a submission, persists the job as queued and hands
// it to the executor. Validation failures never create a job record.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*job.Job, error) {
	if !analysis.ValidMode(req.Mode) {
		return nil, errs.Newf(errs.InvalidMode, "unsupported mode %q", req.Mode).
			WithDetail("supported_modes", []string{string(analysis.ModeSingle), string(analysis.ModeContinuous)})
	}
	if len(req.Modules) == 0 {
		return nil, errs.New(errs.UnsupportedOption, "at least one module must be requested")
	}
	for _, m := range req.Modules {
		if !s.registry.Has(m.Name) {
			return nil, errs.Newf(errs.UnsupportedOption, "unknown module %q", m.Name).
				WithDetail("supported_modules", s.registry.Names())
		}
	}

	u, err := s.uploads.Get(req.UploadID)
	if err != nil {
		return nil, err
	}
	if max := s.cfg.MaxDuration(req.Mode); u.DurationS > max {
		return nil, errs.Newf(errs.AudioTooLong, "upload is %.1fs, %s mode allows %.0fs", u.DurationS, req.Mode, max).
			WithDetail("duration_s", u.DurationS).
			WithDetail("max_duration_s", max)
	}

	output := job.DefaultOutputOptions()
	if req.Output != nil {
		output = *req.Output
		if output.View == "" {
			output.View = job.ViewFull
		}
		if !job.ValidView(string(output.View)) {
			return nil, errs.Newf(errs.UnsupportedOption, "unknown result view %q", output.View)
		}
	}

	j := &job.Job{
		ID:        uuid.NewString(),
		UploadID:  req.UploadID,
		Mode:      analysis.Mode(req.Mode),
		Modules:   req.Modules,
		Global:    req.Options,
		Output:    output,
		Status:    job.StatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.jobs.Put(j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := s.executor.Submit(j.ID); err != nil {
		// Keep the record queued; a resubmit can pick it up later.
		s.log.Warn("job submit deferred", "job", j.ID, "err", err)
	}
	s.log.Info("job created", "job", j.ID, "upload", j.UploadID, "mode", j.Mode, "modules", len(j.Modules))
	return j, nil
}

// JobStatus is the progress snapshot returned by status queries.
type JobStatus struct {
	JobID    string      `json:"job_id"`
	Status   job.Status  `json:"status"`
	Progress float64     `json:"progress"`
	Stage    string      `json:"stage,omitempty"`
	Error    *errs.Error `json:"error,omitempty"`
}

// GetJobStatus returns a consistent progress snapshot for a job.
func (s *Service) GetJobStatus(id string) (*JobStatus, error) {
	j, err := s.jobs.Get(id)
	if err != nil {
		return nil, err
	}
	return &JobStatus{
		JobID:    j.ID,
		Status:   j.Status,
		Progress: j.Progress,
		Stage:    j.Stage,
		Error:    j.Error,
	}, nil
}

// FetchResult returns the projection of a succeeded job's result. An
// empty view selects the job's default output view.
func (s *Service) FetchResult(jobID, view string) (any, error) {
	j, err := s.jobs.Get(jobID)
	if err != nil {
		return nil, err
	}
	if view == "" {
		view = string(j.Output.View)
	}
	if !job.ValidView(view) {
		return nil, errs.Newf(errs.UnsupportedOption, "unknown result view %q", view)
	}
	if j.Status != job.StatusSucceeded {
		return nil, errs.Newf(errs.ResultNotReady, "job %s is %s", jobID, j.Status).
			WithDetail("status", string(j.Status))
	}
	r, err := s.results.Get(jobID)
	if err != nil {
		return nil, err
	}
	return r.Project(job.View(view))
}

// CancelJob cancels a queued or running job.
func (s *Service) CancelJob(id string) error {
	return s.executor.Cancel(id)
}

// DeleteJob cancels a live job, or removes a terminal job's record along
// with its result.
func (s *Service) DeleteJob(id string) error {
	j, err := s.jobs.Get(id)
	if err != nil {
		return err
	}
	if !j.Status.Terminal() {
		return s.executor.Cancel(id)
	}
	return s.jobs.Delete(id)
}

// Capabilities describes what this deployment supports. The query has no
// side effects.
type Capabilities struct {
	SupportedFormats []string                         `json:"supported_input_formats"`
	Modes            []string                         `json:"modes"`
	Modules          map[string][]analysis.OptionSpec `json:"modules"`
	Views            []string                         `json:"views"`
	Limits           CapabilityLimits                 `json:"limits"`
}

// CapabilityLimits echoes the configured size and duration ceilings.
type CapabilityLimits struct {
	MaxUploadBytes         int64   `json:"max_upload_bytes"`
	MaxDurationSingleS     float64 `json:"max_duration_single_s"`
	MaxDurationContinuousS float64 `json:"max_duration_continuous_s"`
}

// Capabilities reports formats, modules with option schemas, modes and
// limits.
func (s *Service) Capabilities() Capabilities {
	return Capabilities{
		SupportedFormats: config.SupportedFormats,
		Modes:            []string{string(analysis.ModeSingle), string(analysis.ModeContinuous)},
		Modules:          s.registry.OptionSchemas(),
		Views:            []string{string(job.ViewFull), string(job.ViewSummary), string(job.ViewTimeseries)},
		Limits: CapabilityLimits{
			MaxUploadBytes:         s.cfg.Limits.MaxUploadBytes,
			MaxDurationSingleS:     s.cfg.Limits.MaxDurationSingleS,
			MaxDurationContinuousS: s.cfg.Limits.MaxDurationContinuousS,
		},
	}
}

func formatSupported(format string) bool {
	for _, f := range config.SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}
