package store

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dialectatlas/tonelab/internal/audio"
	"github.com/dialectatlas/tonelab/internal/errs"
	"github.com/dialectatlas/tonelab/internal/job"
)

// openTestDB opens an in-memory store with a temp artifact directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Options{
		InMemory: true,
		DataDir:  t.TempDir(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testWAV(t *testing.T) []byte {
	t.Helper()
	samples := make([]float64, 1600)
	for i := range samples {
		samples[i] = 0.4 * math.Sin(2*math.Pi*220*float64(i)/16000)
	}
	return audio.EncodeWAV(&audio.Buffer{Samples: samples, SampleRate: 16000})
}

func testUpload(id string) *Upload {
	return &Upload{
		ID:         id,
		Format:     "wav",
		SampleRate: 16000,
		Channels:   1,
		DurationS:  0.1,
		CreatedAt:  time.Now().UTC(),
	}
}

func testJobRecord(id, uploadID string, status job.Status) *job.Job {
	return &job.Job{
		ID:        id,
		UploadID:  uploadID,
		Modules:   []job.ModuleRequest{{Name: "basic"}},
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

func TestResultsWriteOnce(t *testing.T) {
	db := openTestDB(t)
	results := NewResults(db)

	if _, err := results.Get("j1"); !errs.Is(err, errs.ResultNotReady) {
		t.Fatalf("Get before Put: %v, want %s", err, errs.ResultNotReady)
	}

	r := &job.Result{Schema: "tonelab-analysis", Summary: map[string]any{"basic": map[string]any{}}}
	if err := results.Put("j1", r); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := results.Put("j1", r); !errs.Is(err, errs.AnalysisFailed) {
		t.Errorf("second Put: %v, want rejection", err)
	}

	got, err := results.Get("j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Schema != r.Schema {
		t.Errorf("schema = %q, want %q", got.Schema, r.Schema)
	}

	if err := results.Delete("j1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := results.Get("j1"); !errs.Is(err, errs.ResultNotReady) {
		t.Errorf("Get after Delete: %v, want %s", err, errs.ResultNotReady)
	}
	// Deleting an absent result is fine.
	if err := results.Delete("j1"); err != nil {
		t.Errorf("Delete of absent result: %v", err)
	}
}

func TestUploadsPutGetRead(t *testing.T) {
	db := openTestDB(t)
	jobs := NewJobs(db)
	uploads := NewUploads(db, jobs)
	wav := testWAV(t)

	if err := uploads.Put(testUpload("u1"), wav, nil); err != nil {
		t.Fatalf("Put: %v", err)
	}

	u, err := uploads.Get("u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.Format != "wav" || u.SampleRate != 16000 {
		t.Errorf("record = %+v", u)
	}

	data, err := uploads.ReadNormalizedWAV("u1")
	if err != nil {
		t.Fatalf("ReadNormalizedWAV: %v", err)
	}
	if !bytes.Equal(data, wav) {
		t.Error("stored WAV differs from the written bytes")
	}

	pcm, src, err := uploads.Normalized(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Normalized: %v", err)
	}
	if len(pcm.Samples) != 1600 || pcm.SampleRate != 16000 {
		t.Errorf("decoded %d samples at %d Hz", len(pcm.Samples), pcm.SampleRate)
	}
	if src.DurationS != 0.1 || src.Channels != 1 {
		t.Errorf("source info = %+v", src)
	}

	if _, err := uploads.Get("missing"); !errs.Is(err, errs.UploadNotFound) {
		t.Errorf("Get missing: %v, want %s", err, errs.UploadNotFound)
	}
}

func TestUploadsRetainOriginal(t *testing.T) {
	db := openTestDB(t)
	uploads := NewUploads(db, NewJobs(db))
	wav := testWAV(t)
	original := []byte("compressed source bytes")

	u := testUpload("keep")
	u.RetainOriginal = true
	if err := uploads.Put(u, wav, original); err != nil {
		t.Fatalf("Put: %v", err)
	}
	stored, err := os.ReadFile(filepath.Join(db.uploadDir("keep"), originalFile))
	if err != nil {
		t.Fatalf("original not written: %v", err)
	}
	if !bytes.Equal(stored, original) {
		t.Error("original bytes differ")
	}

	if err := uploads.Put(testUpload("drop"), wav, original); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(db.uploadDir("drop"), originalFile)); !os.IsNotExist(err) {
		t.Error("original written despite retain_original=false")
	}
}

func TestUploadDeleteReferenceCheck(t *testing.T) {
	db := openTestDB(t)
	jobs := NewJobs(db)
	uploads := NewUploads(db, jobs)

	if err := uploads.Put(testUpload("u1"), testWAV(t), nil); err != nil {
		t.Fatalf("Put upload: %v", err)
	}
	j := testJobRecord("j1", "u1", job.StatusQueued)
	if err := jobs.Put(j); err != nil {
		t.Fatalf("Put job: %v", err)
	}

	err := uploads.Delete("u1")
	if !errs.Is(err, errs.UploadInUse) {
		t.Fatalf("Delete with queued job: %v, want %s", err, errs.UploadInUse)
	}
	if e := errs.From(err); e == nil || e.Detail["upload_id"] != "u1" {
		t.Errorf("error detail missing upload_id: %+v", e)
	}

	j.Status = job.StatusSucceeded
	if err := jobs.Put(j); err != nil {
		t.Fatalf("update job: %v", err)
	}
	if err := uploads.Delete("u1"); err != nil {
		t.Fatalf("Delete after job finished: %v", err)
	}
	if _, err := uploads.Get("u1"); !errs.Is(err, errs.UploadNotFound) {
		t.Errorf("record survived delete: %v", err)
	}
	if _, err := os.Stat(db.uploadDir("u1")); !os.IsNotExist(err) {
		t.Error("artifact directory survived delete")
	}
}

func TestJobsByUpload(t *testing.T) {
	db := openTestDB(t)
	jobs := NewJobs(db)

	for _, id := range []string{"a", "b"} {
		if err := jobs.Put(testJobRecord(id, "u1", job.StatusQueued)); err != nil {
			t.Fatalf("Put %s: %v", id, err)
		}
	}
	if err := jobs.Put(testJobRecord("c", "u2", job.StatusQueued)); err != nil {
		t.Fatalf("Put c: %v", err)
	}

	got, err := jobs.ByUpload("u1")
	if err != nil {
		t.Fatalf("ByUpload: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d jobs for u1, want 2", len(got))
	}

	active, err := jobs.HasActive("u1")
	if err != nil || !active {
		t.Errorf("HasActive(u1) = %v, %v, want true", active, err)
	}

	// A stale index entry whose record is gone is skipped, not an error.
	if err := db.delete(keyJob("a")); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	got, err = jobs.ByUpload("u1")
	if err != nil {
		t.Fatalf("ByUpload with stale index: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("stale index not tolerated: %+v", got)
	}
}

func TestJobsDeleteRemovesResult(t *testing.T) {
	db := openTestDB(t)
	jobs := NewJobs(db)
	results := NewResults(db)

	if err := jobs.Put(testJobRecord("j1", "u1", job.StatusSucceeded)); err != nil {
		t.Fatalf("Put job: %v", err)
	}
	if err := results.Put("j1", &job.Result{Schema: "tonelab-analysis"}); err != nil {
		t.Fatalf("Put result: %v", err)
	}

	if err := jobs.Delete("j1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := jobs.Get("j1"); !errs.Is(err, errs.JobNotFound) {
		t.Errorf("job record survived: %v", err)
	}
	if _, err := results.Get("j1"); !errs.Is(err, errs.ResultNotReady) {
		t.Errorf("result survived job deletion: %v", err)
	}
	if active, _ := jobs.HasActive("u1"); active {
		t.Error("index entry survived job deletion")
	}
}
