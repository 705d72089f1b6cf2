// Package store is the authoritative state machine for the list of
// files-to-convert. All mutations go through its action methods; per-task
// updates are keyed by id so concurrent completions touch disjoint records.
package store

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/castlemill/convertd/internal/adapter"
	"github.com/castlemill/convertd/internal/dispatch"
	"github.com/castlemill/convertd/internal/format"
	"github.com/castlemill/convertd/internal/runner"
)

// Recorder receives a settled task for history persistence. Implementations
// must not call back into the Store.
type Recorder interface {
	RecordConversion(task Task, duration time.Duration)
}

// Store holds the task list, the global quality settings, and the
// at-most-one-run-in-flight flag.
type Store struct {
	mu       sync.Mutex
	tasks    map[uuid.UUID]*Task
	order    []uuid.UUID
	settings adapter.Options
	running  bool
	runGen   uint64

	run           runner.Runner
	recorder      Recorder
	maxConcurrent int64
	log           zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRecorder attaches a history sink for settled tasks.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

// WithMaxConcurrent caps simultaneous runner invocations during a run.
// Zero means unbounded fan-out.
func WithMaxConcurrent(n int) Option {
	return func(s *Store) { s.maxConcurrent = int64(n) }
}

// WithLogger sets the store's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithDefaultSettings overrides the initial global settings.
func WithDefaultSettings(opts adapter.Options) Option {
	return func(s *Store) { s.settings = opts }
}

// New builds a Store over the given execution boundary.
func New(run runner.Runner, opts ...Option) *Store {
	s := &Store{
		tasks:    make(map[uuid.UUID]*Task),
		settings: adapter.DefaultOptions(),
		run:      run,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Add detects each input's format and creates a pending task for it. Inputs
// whose format cannot be detected are excluded (not added in an error
// state) and reported back by name. The default target is the first
// convertible format that is not the source format itself, else the first
// convertible format, else none.
func (s *Store) Add(inputs []Input) (added []Task, skipped []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, in := range inputs {
		desc := format.Detect(in.Name, in.MIME)
		if desc == nil {
			s.log.Warn().Str("file", in.Name).Str("mime", in.MIME).Msg("unsupported format, excluded")
			skipped = append(skipped, in.Name)
			continue
		}
		ext := format.NormalizeExt(path.Ext(in.Name))
		if !desc.HasExtension(ext) {
			ext = desc.Ext()
		}
		t := &Task{
			ID:          uuid.New(),
			SourceName:  in.Name,
			SourceBytes: in.Bytes,
			SourceExt:   ext,
			SourceMIME:  in.MIME,
			TargetExt:   defaultTarget(desc),
			Status:      StatusPending,
			CreatedAt:   time.Now(),
		}
		s.tasks[t.ID] = t
		s.order = append(s.order, t.ID)
		added = append(added, *t)
	}
	return added, skipped
}

// defaultTarget picks the first convertible extension that names a different
// format than the source, falling back to the first convertible extension.
func defaultTarget(desc *format.Descriptor) string {
	for _, ext := range desc.ConvertibleTo {
		if !desc.HasExtension(ext) {
			return ext
		}
	}
	if len(desc.ConvertibleTo) > 0 {
		return desc.ConvertibleTo[0]
	}
	return ""
}

// Remove deletes one task. No-op for unknown ids.
func (s *Store) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return
	}
	delete(s.tasks, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Clear removes all tasks and force-clears the run flag.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[uuid.UUID]*Task)
	s.order = nil
	s.running = false
}

// SetTargetFormat sets a task's target extension unconditionally; the UI
// layer is responsible for only offering convertible options. No-op for
// unknown ids. An empty extension clears the target.
func (s *Store) SetTargetFormat(id uuid.UUID, ext string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return
	}
	if ext == "" {
		t.TargetExt = ""
		return
	}
	t.TargetExt = format.NormalizeExt(ext)
}

// SetSettings shallow-merges the patch into the global settings. Tasks
// already in flight are unaffected: each run works from a snapshot taken at
// start.
func (s *Store) SetSettings(p SettingsPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Mode != nil {
		s.settings.Mode = *p.Mode
	}
	if p.QualityLevel != nil {
		s.settings.QualityLevel = *p.QualityLevel
	}
	if p.BitrateKbps != nil {
		s.settings.BitrateKbps = *p.BitrateKbps
	}
	if p.SampleRateHz != nil {
		s.settings.SampleRateHz = *p.SampleRateHz
	}
}

// Settings returns the current global settings.
func (s *Store) Settings() adapter.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Retry resets a failed task to pending, clearing its error and any stale
// result, so the next run picks it up. Only error tasks are eligible.
func (s *Store) Retry(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != StatusError {
		return
	}
	t.Status = StatusPending
	t.Progress = 0
	t.ErrorMessage = ""
	t.ResultBytes = nil
	t.ResultMIME = ""
}

// Get returns a copy of one task.
func (s *Store) Get(id uuid.UUID) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Tasks returns copies of all tasks in insertion order.
func (s *Store) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		if t, ok := s.tasks[id]; ok {
			out = append(out, *t)
		}
	}
	return out
}

// Running reports whether a run is in flight.
func (s *Store) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start begins one conversion run. If a run is already in flight this is a
// no-op, as is a call with no eligible tasks (pending with a target
// selected). Eligible tasks transition to converting and are dispatched
// concurrently through the execution boundary, bounded by the configured
// cap; the run flag clears once every dispatched task has settled. Start
// itself returns immediately with the number of tasks dispatched.
func (s *Store) Start(ctx context.Context) int {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return 0
	}
	snapshot := s.settings
	var selected []*Task
	for _, id := range s.order {
		t := s.tasks[id]
		if t != nil && t.Status == StatusPending && t.TargetExt != "" {
			selected = append(selected, t)
		}
	}
	if len(selected) == 0 {
		s.mu.Unlock()
		return 0
	}
	ids := make([]uuid.UUID, len(selected))
	reqs := make([]dispatch.Request, len(selected))
	for i, t := range selected {
		t.Status = StatusConverting
		t.Progress = 0
		t.ErrorMessage = ""
		t.ResultBytes = nil
		t.ResultMIME = ""
		ids[i] = t.ID
		reqs[i] = dispatch.Request{
			SourceName:  t.SourceName,
			SourceBytes: t.SourceBytes,
			SourceExt:   t.SourceExt,
			SourceMIME:  t.SourceMIME,
			TargetExt:   t.TargetExt,
		}
	}
	s.running = true
	s.runGen++
	gen := s.runGen
	s.mu.Unlock()

	s.log.Info().Int("tasks", len(ids)).Msg("conversion run started")
	go s.runAll(ctx, gen, ids, reqs, snapshot)
	return len(ids)
}

// runAll fans out one runner invocation per selected task and clears the
// run flag once all of them have settled.
func (s *Store) runAll(ctx context.Context, gen uint64, ids []uuid.UUID, reqs []dispatch.Request, snapshot adapter.Options) {
	var sem *semaphore.Weighted
	if s.maxConcurrent > 0 {
		sem = semaphore.NewWeighted(s.maxConcurrent)
	}

	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(id uuid.UUID, req dispatch.Request) {
			defer wg.Done()
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					s.settle(id, runner.Result{ErrorMessage: err.Error()}, 0)
					return
				}
				defer sem.Release(1)
			}
			start := time.Now()
			res := s.run.Run(ctx, req, snapshot, func(p int) {
				s.setProgress(id, p)
			})
			s.settle(id, res, time.Since(start))
		}(ids[i], reqs[i])
	}
	wg.Wait()

	s.mu.Lock()
	// Clear may have reset the flag and a newer run may hold it now; only
	// the run that set it takes it down.
	if s.runGen == gen {
		s.running = false
	}
	s.mu.Unlock()
	s.log.Info().Int("tasks", len(ids)).Msg("conversion run settled")
}

// setProgress updates one converting task's progress, never decreasing it.
func (s *Store) setProgress(id uuid.UUID, p int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != StatusConverting {
		return
	}
	if p > t.Progress {
		t.Progress = p
	}
}

// settle applies one task's terminal result. A failure in one task never
// touches its siblings; a task removed mid-flight is still recorded but no
// longer updated.
func (s *Store) settle(id uuid.UUID, res runner.Result, elapsed time.Duration) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	var snapshot Task
	if ok {
		if res.OK {
			t.Status = StatusComplete
			t.Progress = 100
			t.ErrorMessage = ""
			t.ResultBytes = res.Bytes
			t.ResultMIME = res.MIMEType
		} else {
			t.Status = StatusError
			t.ErrorMessage = res.ErrorMessage
			t.ResultBytes = nil
			t.ResultMIME = ""
		}
		snapshot = *t
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	if res.OK {
		s.log.Debug().Str("task", id.String()).Str("target", snapshot.TargetExt).Msg("conversion complete")
	} else {
		s.log.Warn().Str("task", id.String()).Str("error", res.ErrorMessage).Msg("conversion failed")
	}
	if s.recorder != nil {
		s.recorder.RecordConversion(snapshot, elapsed)
	}
}
