package store

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/castlemill/convertd/internal/adapter"
	"github.com/castlemill/convertd/internal/dispatch"
	"github.com/castlemill/convertd/internal/runner"
)

// fakeRunner is a controllable execution boundary.
type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	seen    []adapter.Options
	block   chan struct{}        // when non-nil, Run waits on it
	failFor map[string]string    // source name -> error message
}

func (f *fakeRunner) Run(ctx context.Context, req dispatch.Request, opts adapter.Options, onProgress dispatch.ProgressFunc) runner.Result {
	f.mu.Lock()
	f.calls++
	f.seen = append(f.seen, opts)
	block := f.block
	msg := f.failFor[req.SourceName]
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if onProgress != nil {
		onProgress(0)
		onProgress(50)
		onProgress(100)
	}
	if msg != "" {
		return runner.Result{ErrorMessage: msg}
	}
	return runner.Result{OK: true, Bytes: []byte("converted:" + req.SourceName), MIMEType: "application/test"}
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAddPicksNonIdentityDefaultTarget(t *testing.T) {
	s := New(&fakeRunner{})
	added, skipped := s.Add([]Input{{Name: "clip.wav", Bytes: []byte("riff")}})
	if len(skipped) != 0 || len(added) != 1 {
		t.Fatalf("expected one task, got added=%d skipped=%d", len(added), len(skipped))
	}
	task := added[0]
	if task.Status != StatusPending || task.Progress != 0 {
		t.Fatalf("new task not pending: %+v", task)
	}
	if task.SourceExt != "wav" {
		t.Fatalf("source ext not normalized: %q", task.SourceExt)
	}
	if task.TargetExt == "" || task.TargetExt == "wav" {
		t.Fatalf("default target must differ from source when possible, got %q", task.TargetExt)
	}
}

func TestAddNormalizesMixedCaseExtension(t *testing.T) {
	s := New(&fakeRunner{})
	added, _ := s.Add([]Input{{Name: "photo.PNG", MIME: "application/octet-stream"}})
	if len(added) != 1 || added[0].SourceExt != "png" {
		t.Fatalf("expected png source ext, got %+v", added)
	}
}

func TestAddExcludesUnsupportedFiles(t *testing.T) {
	s := New(&fakeRunner{})
	added, skipped := s.Add([]Input{
		{Name: "notes.xyz", MIME: "application/x-unknown"},
		{Name: "doc.md"},
	})
	if len(added) != 1 || added[0].SourceName != "doc.md" {
		t.Fatalf("expected only doc.md added, got %+v", added)
	}
	if len(skipped) != 1 || skipped[0] != "notes.xyz" {
		t.Fatalf("expected notes.xyz skipped, got %v", skipped)
	}
	if len(s.Tasks()) != 1 {
		t.Fatalf("unsupported file must not create a task")
	}
}

func TestHappyPath(t *testing.T) {
	s := New(&fakeRunner{})
	added, _ := s.Add([]Input{{Name: "clip.wav", Bytes: []byte("riff")}})
	id := added[0].ID

	if n := s.Start(context.Background()); n != 1 {
		t.Fatalf("expected 1 task dispatched, got %d", n)
	}
	// Immediately after Start the task is converting or already settled.
	got, _ := s.Get(id)
	if got.Status != StatusConverting && got.Status != StatusComplete {
		t.Fatalf("unexpected status right after start: %s", got.Status)
	}

	waitFor(t, "task complete", func() bool {
		got, _ := s.Get(id)
		return got.Status == StatusComplete
	})
	got, _ = s.Get(id)
	if got.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", got.Progress)
	}
	if !strings.HasPrefix(string(got.ResultBytes), "converted:") {
		t.Fatalf("result bytes missing: %q", got.ResultBytes)
	}
	waitFor(t, "run flag cleared", func() bool { return !s.Running() })
}

func TestStartSkipsTasksWithoutTarget(t *testing.T) {
	r := &fakeRunner{}
	s := New(r)
	added, _ := s.Add([]Input{{Name: "clip.wav"}})
	id := added[0].ID
	s.SetTargetFormat(id, "")

	if n := s.Start(context.Background()); n != 0 {
		t.Fatalf("expected no dispatch, got %d", n)
	}
	got, _ := s.Get(id)
	if got.Status != StatusPending {
		t.Fatalf("task without target must stay pending, got %s", got.Status)
	}
	if r.callCount() != 0 {
		t.Fatal("runner must not be invoked")
	}
}

func TestAtMostOneRunGuard(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	s := New(r)
	s.Add([]Input{{Name: "a.wav"}, {Name: "b.wav"}})

	if n := s.Start(context.Background()); n != 2 {
		t.Fatalf("expected 2 dispatched, got %d", n)
	}
	waitFor(t, "both invocations in flight", func() bool { return r.callCount() == 2 })

	// Second start while converting: no second wave.
	if n := s.Start(context.Background()); n != 0 {
		t.Fatalf("expected guarded no-op, got %d", n)
	}
	if r.callCount() != 2 {
		t.Fatalf("second wave spawned: %d calls", r.callCount())
	}

	close(r.block)
	waitFor(t, "run settled", func() bool { return !s.Running() })
}

func TestSettingsSnapshotIsolatesInFlightRun(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	s := New(r)
	q := 30
	s.SetSettings(SettingsPatch{QualityLevel: &q})
	s.Add([]Input{{Name: "clip.wav"}})
	s.Start(context.Background())
	waitFor(t, "invocation in flight", func() bool { return r.callCount() == 1 })

	// Edit settings mid-run; the in-flight task keeps its snapshot.
	q2 := 99
	s.SetSettings(SettingsPatch{QualityLevel: &q2})
	close(r.block)
	waitFor(t, "run settled", func() bool { return !s.Running() })

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[0].QualityLevel != 30 {
		t.Fatalf("in-flight run saw edited settings: %+v", r.seen[0])
	}
}

func TestFailureIsolatedAndRetryResets(t *testing.T) {
	r := &fakeRunner{failFor: map[string]string{"bad.wav": "engine said no"}}
	s := New(r)
	added, _ := s.Add([]Input{{Name: "bad.wav"}, {Name: "good.wav"}})
	badID, goodID := added[0].ID, added[1].ID

	s.Start(context.Background())
	waitFor(t, "run settled", func() bool { return !s.Running() && r.callCount() == 2 })

	bad, _ := s.Get(badID)
	if bad.Status != StatusError || bad.ErrorMessage != "engine said no" {
		t.Fatalf("expected failed task with message, got %+v", bad)
	}
	good, _ := s.Get(goodID)
	if good.Status != StatusComplete {
		t.Fatalf("sibling task affected by failure: %+v", good)
	}

	s.Retry(badID)
	bad, _ = s.Get(badID)
	if bad.Status != StatusPending || bad.ErrorMessage != "" || bad.ResultBytes != nil {
		t.Fatalf("retry did not reset task: %+v", bad)
	}

	// Retry on a completed task is a no-op.
	s.Retry(goodID)
	good, _ = s.Get(goodID)
	if good.Status != StatusComplete {
		t.Fatalf("retry must not touch a completed task: %+v", good)
	}
}

func TestClearForcesRunFlagDown(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	s := New(r)
	s.Add([]Input{{Name: "clip.wav"}})
	s.Start(context.Background())
	waitFor(t, "running", func() bool { return s.Running() })

	s.Clear()
	if s.Running() {
		t.Fatal("clear must force the run flag down")
	}
	if len(s.Tasks()) != 0 {
		t.Fatal("clear must remove all tasks")
	}
	close(r.block)
}

func TestBoundedFanOut(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	s := New(r, WithMaxConcurrent(1))
	s.Add([]Input{{Name: "a.wav"}, {Name: "b.wav"}, {Name: "c.wav"}})

	if n := s.Start(context.Background()); n != 3 {
		t.Fatalf("expected 3 dispatched, got %d", n)
	}
	// With a cap of 1 only one invocation may be in flight at a time.
	time.Sleep(50 * time.Millisecond)
	if got := r.callCount(); got != 1 {
		t.Fatalf("expected 1 in-flight invocation under cap, got %d", got)
	}
	close(r.block)
	waitFor(t, "all settled", func() bool { return !s.Running() && r.callCount() == 3 })
}

func TestRecorderSeesSettledTasks(t *testing.T) {
	var mu sync.Mutex
	var recorded []Task
	rec := recorderFunc(func(t Task, d time.Duration) {
		mu.Lock()
		recorded = append(recorded, t)
		mu.Unlock()
	})
	s := New(&fakeRunner{}, WithRecorder(rec))
	s.Add([]Input{{Name: "clip.wav"}})
	s.Start(context.Background())
	waitFor(t, "recorded", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(recorded) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if recorded[0].Status != StatusComplete {
		t.Fatalf("recorder saw unsettled task: %+v", recorded[0])
	}
}

type recorderFunc func(Task, time.Duration)

func (f recorderFunc) RecordConversion(t Task, d time.Duration) { f(t, d) }
