// Package library pre-analyses audio files dropped into the music folder so
// that loading them onto a deck later hits the analysis cache.
package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"djmix/core/decoder"
	"djmix/logger"
	"djmix/model"

	"github.com/fsnotify/fsnotify"
)

// Analyzer decodes and analyses one file.
type Analyzer interface {
	Decode(ctx context.Context, req decoder.Request) (*model.Track, error)
}

// ResultFunc observes each finished analysis.
type ResultFunc func(path string, track *model.Track, err error)

// Options configure a Watcher.
type Options struct {
	SampleRate   int
	Channels     int
	Settle       time.Duration // a file must be unchanged this long before it is analysed
	Workers      int
	ScanExisting bool
}

// Watcher follows a directory and queues new audio files for analysis.
type Watcher struct {
	dir      string
	analyzer Analyzer
	opts     Options
	onResult ResultFunc

	watcher *fsnotify.Watcher
	tasks   chan string
	seen    sync.Map
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher returns a watcher on dir. Call Start to begin.
func NewWatcher(dir string, a Analyzer, opts Options) *Watcher {
	if opts.Settle <= 0 {
		opts.Settle = 500 * time.Millisecond
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Watcher{
		dir:      dir,
		analyzer: a,
		opts:     opts,
		tasks:    make(chan string, 64),
	}
}

// OnResult installs a callback invoked from the worker goroutines.
func (w *Watcher) OnResult(fn ResultFunc) { w.onResult = fn }

// Start creates the directory if needed, begins watching it and starts workers.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create music dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.watcher = fw

	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.opts.Workers; i++ {
		w.wg.Add(1)
		go w.worker(ctx, i)
	}
	w.wg.Add(1)
	go w.watch(ctx)

	if w.opts.ScanExisting {
		w.scan(ctx)
	}
	logger.Info("Library watcher started",
		logger.String("dir", w.dir),
		logger.Int("workers", w.opts.Workers))
	return nil
}

// Close stops watching and waits for in-flight analyses.
func (w *Watcher) Close() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logger.Warn("library scan failed", logger.String("dir", w.dir), logger.ErrorField(err))
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.enqueue(ctx, filepath.Join(w.dir, e.Name()))
	}
}

func (w *Watcher) enqueue(ctx context.Context, path string) {
	if !decoder.IsAudioFile(path) {
		return
	}
	if _, loaded := w.seen.LoadOrStore(path, true); loaded {
		return
	}
	select {
	case w.tasks <- path:
	case <-ctx.Done():
	}
}

// watch collects create/write events and enqueues a file once it has settled.
func (w *Watcher) watch(ctx context.Context) {
	defer w.wg.Done()

	pending := make(map[string]time.Time)
	tick := time.NewTicker(w.opts.Settle / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 && decoder.IsAudioFile(event.Name) {
				pending[event.Name] = time.Now()
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				delete(pending, event.Name)
				w.seen.Delete(event.Name)
			}

		case <-tick.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < w.opts.Settle {
					continue
				}
				delete(pending, path)
				w.enqueue(ctx, path)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("file watcher error", logger.ErrorField(err))
		}
	}
}

func (w *Watcher) worker(ctx context.Context, id int) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-w.tasks:
			w.analyse(ctx, id, path)
		}
	}
}

func (w *Watcher) analyse(ctx context.Context, id int, path string) {
	start := time.Now()
	track, err := w.analyzer.Decode(ctx, decoder.Request{
		ID:               "library:" + filepath.Base(path),
		TrackID:          filepath.Base(path),
		FilePath:         path,
		TargetSampleRate: w.opts.SampleRate,
		TargetChannels:   w.opts.Channels,
	})
	if err != nil {
		logger.Warn("library analysis failed",
			logger.Int("worker", id),
			logger.String("path", path),
			logger.ErrorField(err))
	} else {
		bpm := 0.0
		if track.BPM != nil {
			bpm = *track.BPM
		}
		logger.Info("library track analysed",
			logger.Int("worker", id),
			logger.String("path", path),
			logger.Float64("bpm", bpm),
			logger.Duration("elapsed", time.Since(start)))
		// Only the cached analysis is kept.
		track.PCM, track.Mono = nil, nil
	}
	if w.onResult != nil {
		w.onResult(path, track, err)
	}
}
