// Package watcher feeds files dropped into watched directories to the
// conversion store and kicks off a run for them.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/castlemill/convertd/internal/store"
)

// Watcher observes drop directories recursively. A created or written file
// is picked up after a stability delay so partially-written files are not
// read mid-copy.
type Watcher struct {
	st        *store.Store
	w         *fsnotify.Watcher
	roots     []string
	stability time.Duration
	log       zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	kicking bool
}

// runPollInterval is how often the kick waiter checks whether an
// in-flight run has settled.
const runPollInterval = 100 * time.Millisecond

func New(st *store.Store, roots []string, stability time.Duration, log zerolog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		st:        st,
		w:         w,
		roots:     roots,
		stability: stability,
		log:       log,
		pending:   map[string]*time.Timer{},
	}, nil
}

// Start registers the roots and all existing subdirectories, then loops on
// events until ctx is done.
func (wr *Watcher) Start(ctx context.Context) error {
	if err := wr.registerAll(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-wr.w.Events:
			if !ok {
				return nil
			}
			wr.handleEvent(ctx, ev)
		case err, ok := <-wr.w.Errors:
			if !ok {
				return nil
			}
			wr.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (wr *Watcher) Close() error { return wr.w.Close() }

func (wr *Watcher) registerAll() error {
	for _, root := range wr.roots {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				_ = wr.w.Add(path)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (wr *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	fi, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if fi.IsDir() {
		// New subdirectory under a root: watch it too.
		_ = wr.w.Add(ev.Name)
		return
	}
	wr.schedule(ctx, ev.Name)
}

// schedule (re)arms the stability timer for a path; repeated writes keep
// pushing pickup back until the file goes quiet.
func (wr *Watcher) schedule(ctx context.Context, path string) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if t, ok := wr.pending[path]; ok {
		t.Reset(wr.stability)
		return
	}
	wr.pending[path] = time.AfterFunc(wr.stability, func() {
		wr.mu.Lock()
		delete(wr.pending, path)
		wr.mu.Unlock()
		wr.pickup(ctx, path)
	})
}

func (wr *Watcher) pickup(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		wr.log.Warn().Err(err).Str("file", path).Msg("dropped file unreadable")
		return
	}
	added, skipped := wr.st.Add([]store.Input{{Name: filepath.Base(path), Bytes: data}})
	if len(skipped) > 0 {
		wr.log.Warn().Str("file", path).Msg("dropped file has unsupported format")
	}
	if len(added) == 0 {
		return
	}
	wr.log.Info().Str("file", path).Str("target", added[0].TargetExt).Msg("picked up dropped file")
	wr.kick(ctx)
}

// kick starts a run for freshly added tasks. If a run is already in
// flight the store's guard makes Start a no-op, so a single waiter is
// armed that retries once that run settles; files dropped mid-run are
// picked up by the next run instead of sitting pending forever.
func (wr *Watcher) kick(ctx context.Context) {
	if wr.st.Start(ctx) > 0 {
		return
	}
	wr.mu.Lock()
	if wr.kicking {
		wr.mu.Unlock()
		return
	}
	wr.kicking = true
	wr.mu.Unlock()

	go func() {
		ticker := time.NewTicker(runPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				wr.mu.Lock()
				wr.kicking = false
				wr.mu.Unlock()
				return
			case <-ticker.C:
				if wr.st.Running() {
					continue
				}
				if wr.st.Start(ctx) == 0 && wr.st.Running() {
					// Lost a race with another starter; keep waiting.
					continue
				}
				wr.mu.Lock()
				wr.kicking = false
				wr.mu.Unlock()
				return
			}
		}
	}()
}
