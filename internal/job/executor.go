package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dialectatlas/tonelab/internal/analysis"
	"github.com/dialectatlas/tonelab/internal/audio"
	"github.com/dialectatlas/tonelab/internal/errs"
)

// Store is the persistence the executor needs for job records.
type Store interface {
	Get(id string) (*Job, error)
	Put(j *Job) error
}

// ResultSink persists one result per succeeded job, write-once.
type ResultSink interface {
	Put(jobID string, r *Result) error
}

// AudioSource loads the normalized PCM and source metadata for an upload.
type AudioSource interface {
	Normalized(ctx context.Context, uploadID string) (*audio.Buffer, SourceInfo, error)
}

// Executor runs jobs on a bounded worker pool. Submission never blocks:
// a full queue is reported as an error and the job stays queued for a
// later resubmit. Cancellation is cooperative and observed at module
// boundaries.
type Executor struct {
	jobs    Store
	results ResultSink
	source  AudioSource
	reg     *analysis.Registry
	log     *slog.Logger

	// refMu is shared with the upload store. Held while claiming a job so
	// the retention sweeper never deletes an upload between the claim and
	// the job's first status write.
	refMu *sync.Mutex

	// mu guards job record writes so a status query always observes a
	// consistent progress/stage pair.
	mu      sync.Mutex
	cancels map[string]*cancelFlag

	queue   chan string
	workers int
	wg      sync.WaitGroup
	stop    context.CancelFunc
}

type cancelFlag struct {
	mu  sync.Mutex
	set bool
}

func (c *cancelFlag) raise() {
	c.mu.Lock()
	c.set = true
	c.mu.Unlock()
}

func (c *cancelFlag) raised() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set
}

// ExecutorConfig wires an Executor.
type ExecutorConfig struct {
	Jobs       Store
	Results    ResultSink
	Source     AudioSource
	Registry   *analysis.Registry
	RefMu      *sync.Mutex
	Workers    int
	QueueDepth int
	Logger     *slog.Logger
}

// NewExecutor builds an executor; Start launches the workers.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RefMu == nil {
		cfg.RefMu = &sync.Mutex{}
	}
	return &Executor{
		jobs:    cfg.Jobs,
		results: cfg.Results,
		source:  cfg.Source,
		reg:     cfg.Registry,
		log:     cfg.Logger,
		refMu:   cfg.RefMu,
		cancels: make(map[string]*cancelFlag),
		queue:   make(chan string, cfg.QueueDepth),
		workers: cfg.Workers,
	}
}

// Start launches the worker pool. Workers exit when ctx is done and the
// queue has drained, or immediately on Stop.
func (e *Executor) Start(ctx context.Context) {
	ctx, e.stop = context.WithCancel(ctx)
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func(id int) {
			defer e.wg.Done()
			log := e.log.With("worker", id)
			for {
				select {
				case <-ctx.Done():
					return
				case jobID := <-e.queue:
					e.runJob(ctx, log, jobID)
				}
			}
		}(i)
	}
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (e *Executor) Stop() {
	if e.stop != nil {
		e.stop()
	}
	e.wg.Wait()
}

// Submit enqueues a job for execution without blocking. The job record
// must already be persisted with status queued.
func (e *Executor) Submit(jobID string) error {
	e.mu.Lock()
	e.cancels[jobID] = &cancelFlag{}
	e.mu.Unlock()

	select {
	case e.queue <- jobID:
		return nil
	default:
		e.mu.Lock()
		delete(e.cancels, jobID)
		e.mu.Unlock()
		return fmt.Errorf("job queue full (depth %d)", cap(e.queue))
	}
}

// Cancel requests cancellation. A queued job is cancelled immediately; a
// running job finishes its current module first. Terminal jobs are left
// untouched and reported as an illegal transition.
func (e *Executor) Cancel(jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	j, err := e.jobs.Get(jobID)
	if err != nil {
		return err
	}
	switch j.Status {
	case StatusQueued:
		if flag := e.cancels[jobID]; flag != nil {
			flag.raise()
		}
		if err := j.transition(StatusCancelled); err != nil {
			return err
		}
		return e.jobs.Put(j)
	case StatusRunning:
		if flag := e.cancels[jobID]; flag != nil {
			flag.raise()
			return nil
		}
		return errs.Newf(errs.JobNotFound, "job %s is running but not tracked by this executor", jobID)
	default:
		return errs.Newf(errs.AnalysisFailed, "job %s is already %s", jobID, j.Status)
	}
}

// runJob drives one job from claim to a terminal state.
func (e *Executor) runJob(ctx context.Context, log *slog.Logger, jobID string) {
	flag := e.claim(jobID)
	if flag == nil {
		return
	}
	defer func() {
		e.mu.Lock()
		delete(e.cancels, jobID)
		e.mu.Unlock()
	}()

	j, err := e.jobs.Get(jobID)
	if err != nil {
		log.Error("job vanished after claim", "job", jobID, "err", err)
		return
	}
	log = log.With("job", jobID, "upload", j.UploadID, "mode", j.Mode)
	started := time.Now()

	pcm, src, err := e.source.Normalized(ctx, j.UploadID)
	if err != nil {
		e.finishFailed(j, err)
		log.Error("audio load failed", "err", err)
		return
	}

	records, runErr := e.runModules(ctx, log, j, pcm, flag)
	switch {
	case runErr == errCancelled:
		e.finish(j, StatusCancelled)
		log.Info("job cancelled", "elapsed", time.Since(started))
	case runErr != nil:
		e.finishFailed(j, runErr)
		log.Error("job failed", "err", runErr, "elapsed", time.Since(started))
	default:
		if flag.raised() {
			e.finish(j, StatusCancelled)
			log.Info("job cancelled before finalize", "elapsed", time.Since(started))
			return
		}
		e.setStage(j, "finalize")
		result := buildResult(j, src, records)
		if err := e.results.Put(j.ID, result); err != nil {
			e.finishFailed(j, err)
			log.Error("result persist failed", "err", err)
			return
		}
		e.finish(j, StatusSucceeded)
		log.Info("job succeeded", "modules", len(j.Modules), "elapsed", time.Since(started))
	}
}

// errCancelled is an internal sentinel; it never reaches a job record.
var errCancelled = errors.New("job cancelled")

// claim transitions queued -> running under the shared reference mutex.
// Returns nil when the job was cancelled while waiting in the queue.
func (e *Executor) claim(jobID string) *cancelFlag {
	e.refMu.Lock()
	defer e.refMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	j, err := e.jobs.Get(jobID)
	if err != nil || j.Status != StatusQueued {
		return nil
	}
	if err := j.transition(StatusRunning); err != nil {
		return nil
	}
	j.StartedAt = time.Now().UTC()
	j.Stage = "loading"
	if err := e.jobs.Put(j); err != nil {
		return nil
	}
	flag := e.cancels[jobID]
	if flag == nil {
		flag = &cancelFlag{}
		e.cancels[jobID] = flag
	}
	return flag
}

// runModules executes every requested module. Modules are independent of
// each other (tone features join pitch and segments later, in finalize),
// so they run concurrently; the first failure cancels the rest and only
// its error is recorded.
func (e *Executor) runModules(ctx context.Context, log *slog.Logger, j *Job, pcm *audio.Buffer, flag *cancelFlag) (map[string]*analysis.Record, error) {
	total := len(j.Modules)
	records := make(map[string]*analysis.Record, total)

	var recMu sync.Mutex
	completed := 0 // guarded by e.mu, see completeModule

	mods := make([]analysis.Module, total)
	for i, req := range j.Modules {
		mod, err := e.reg.Get(req.Name)
		if err != nil {
			return nil, errs.Newf(errs.UnsupportedOption, "unknown module %q", req.Name)
		}
		mods[i] = mod
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(total)
	for i, req := range j.Modules {
		if flag.raised() {
			break
		}
		req := req
		mod := mods[i]
		opts := e.effectiveOptions(j, req)

		g.Go(func() error {
			start := time.Now()
			rec, err := mod.Analyze(gctx, pcm, opts, j.Mode)
			if err != nil {
				return fmt.Errorf("module %s: %w", req.Name, err)
			}
			log.Debug("module done", "module", req.Name, "elapsed", time.Since(start))

			recMu.Lock()
			records[req.Name] = rec
			recMu.Unlock()

			e.completeModule(j, req.Name, &completed, total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if flag.raised() && len(records) < total {
		return nil, errCancelled
	}
	return records, nil
}

// effectiveOptions layers the request options: global options first, then
// the module's own. voice_quality inherits the pitch range from the pitch
// request when not set explicitly, so both modules agree on voicing.
func (e *Executor) effectiveOptions(j *Job, req ModuleRequest) analysis.Options {
	opts := make(analysis.Options, len(j.Global)+len(req.Options)+2)
	for k, v := range j.Global {
		opts[k] = v
	}
	if req.Name == "voice_quality" {
		for _, other := range j.Modules {
			if other.Name != "pitch" {
				continue
			}
			for _, key := range []string{"f0_min", "f0_max"} {
				if v, ok := other.Options[key]; ok {
					opts[key] = v
				}
			}
		}
	}
	for k, v := range req.Options {
		opts[k] = v
	}
	return opts
}

// completeModule records one finished module. The counter increment, the
// progress computation and the record write all happen under one mutex:
// concurrent completions commit in increment order, so observed progress
// never decreases, and a status query never sees a stage name paired with
// another stage's progress.
func (e *Executor) completeModule(j *Job, stage string, completed *int, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	*completed++
	j.Stage = stage
	j.Progress = float64(*completed) / float64(total)
	if err := e.jobs.Put(j); err != nil {
		e.log.Error("progress update failed", "job", j.ID, "err", err)
	}
}

func (e *Executor) setStage(j *Job, stage string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j.Stage = stage
	if err := e.jobs.Put(j); err != nil {
		e.log.Error("stage update failed", "job", j.ID, "err", err)
	}
}

func (e *Executor) finish(j *Job, to Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := j.transition(to); err != nil {
		e.log.Error("terminal transition rejected", "job", j.ID, "err", err)
		return
	}
	if to == StatusSucceeded {
		j.Progress = 1
	}
	if err := e.jobs.Put(j); err != nil {
		e.log.Error("terminal update failed", "job", j.ID, "err", err)
	}
}

func (e *Executor) finishFailed(j *Job, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j.Error = errs.From(cause)
	if err := j.transition(StatusFailed); err != nil {
		e.log.Error("failed transition rejected", "job", j.ID, "err", err)
		return
	}
	if err := e.jobs.Put(j); err != nil {
		e.log.Error("failure update failed", "job", j.ID, "err", err)
	}
}
