package plugin

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Op is the kind of change observed on a plugin file.
type Op int

const (
	// OpWrite indicates the file was modified.
	OpWrite Op = iota + 1

	// OpCreate indicates a new file was created.
	OpCreate

	// OpRemove indicates the file was deleted or renamed away.
	OpRemove
)

// String returns the operation name.
func (op Op) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// pendingChange stores a change waiting out the debounce interval.
type pendingChange struct {
	op   Op
	seen time.Time
}

// Watcher reloads plugins when their files in a directory change.
type Watcher struct {
	manager  *Manager
	fsw      *fsnotify.Watcher
	dir      string
	debounce time.Duration
	logger   zerolog.Logger

	// Only touched by the loop goroutine.
	pending map[string]pendingChange

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Watch starts watching dir for plugin changes. Changes to one file within
// debounce of each other are coalesced. Loads, reloads and unloads run on the
// bus scheduler.
func (m *Manager) Watch(dir string, debounce time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		manager:  m,
		fsw:      fsw,
		dir:      abs,
		debounce: max(debounce, 0),
		logger:   m.logger.With().Str("dir", abs).Logger(),
		pending:  make(map[string]pendingChange),
		closeCh:  make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	w.logger.Info().Dur("debounce", w.debounce).Msg("watching plugins")
	return w, nil
}

// Close stops watching. Changes already handed to the scheduler still run.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closeCh)
		w.wg.Wait()
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var tick <-chan time.Time
	if w.debounce > 0 {
		ticker := time.NewTicker(w.debounce)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("plugin watcher error")

		case now := <-tick:
			w.flush(now)
		}
	}
}

// handle converts an fsnotify event and queues or applies it.
func (w *Watcher) handle(ev fsnotify.Event) {
	if !strings.EqualFold(filepath.Ext(ev.Name), Extension) {
		return
	}

	var op Op
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = OpRemove
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpWrite
	default:
		return
	}

	if w.debounce == 0 {
		w.apply(ev.Name, op)
		return
	}
	w.queue(ev.Name, op, time.Now())
}

// queue coalesces a change with any pending one for the same path:
// remove wins, create is kept over a later write, and each change restarts
// the debounce interval.
func (w *Watcher) queue(path string, op Op, now time.Time) {
	existing, exists := w.pending[path]
	if exists && op == OpWrite && existing.op == OpCreate {
		op = OpCreate
	}
	w.pending[path] = pendingChange{op: op, seen: now}
}

// flush applies changes that have been stable for the debounce interval.
func (w *Watcher) flush(now time.Time) {
	stable := now.Add(-w.debounce)
	for path, change := range w.pending {
		if change.seen.After(stable) {
			continue
		}
		delete(w.pending, path)
		w.apply(path, change.op)
	}
}

// apply hands the change to the bus scheduler.
func (w *Watcher) apply(path string, op Op) {
	err := w.manager.bus.Scheduler().Go(func() {
		w.sync(path, op)
	})
	if err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("plugin change dropped")
	}
}

// sync brings the manager in line with the file at path.
func (w *Watcher) sync(path string, op Op) {
	name, err := NameFromPath(path)
	if err != nil {
		return
	}
	_, loaded := w.manager.Get(name)

	log := w.logger.With().Str("plugin", name).Stringer("op", op).Logger()
	ctx := context.Background()

	switch {
	case op == OpRemove && loaded:
		err = w.manager.Unload(name)
	case op == OpRemove:
		return
	case loaded:
		_, err = w.manager.Reload(ctx, name)
	default:
		_, err = w.manager.Load(ctx, path)
	}

	if err != nil {
		if !errors.Is(err, ErrManagerClosed) {
			log.Error().Err(err).Msg("plugin change failed")
		}
		return
	}
	log.Debug().Msg("plugin change applied")
}
