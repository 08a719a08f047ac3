package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"djmix/core/decoder"
	"djmix/model"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeAnalyzer) Decode(_ context.Context, req decoder.Request) (*model.Track, error) {
	f.mu.Lock()
	f.paths = append(f.paths, req.FilePath)
	f.mu.Unlock()
	if filepath.Ext(req.FilePath) == ".flac" {
		return nil, errors.New("corrupt")
	}
	bpm := 124.0
	return &model.Track{ID: req.TrackID, BPM: &bpm, PCM: make([]float32, 4)}, nil
}

type result struct {
	path  string
	track *model.Track
	err   error
}

func startWatcher(t *testing.T, dir string, scan bool) (*fakeAnalyzer, <-chan result) {
	t.Helper()
	fa := &fakeAnalyzer{}
	results := make(chan result, 16)
	w := NewWatcher(dir, fa, Options{
		SampleRate:   44100,
		Channels:     2,
		Settle:       40 * time.Millisecond,
		ScanExisting: scan,
	})
	w.OnResult(func(path string, track *model.Track, err error) {
		results <- result{path, track, err}
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return fa, results
}

func next(t *testing.T, results <-chan result) result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for analysis")
		return result{}
	}
}

func TestWatcherAnalysesNewAudioFiles(t *testing.T) {
	dir := t.TempDir()
	_, results := startWatcher(t, dir, false)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	track := filepath.Join(dir, "set.mp3")
	if err := os.WriteFile(track, []byte("not really audio"), 0644); err != nil {
		t.Fatal(err)
	}

	r := next(t, results)
	if r.path != track || r.err != nil {
		t.Fatalf("got %+v, want a successful result for %s", r, track)
	}
	if r.track.PCM != nil {
		t.Error("PCM should be released after analysis")
	}

	select {
	case extra := <-results:
		t.Fatalf("unexpected analysis of %s", extra.path)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherScansExistingFilesOnce(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.wav", "b.flac", "cover.jpg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	fa, results := startWatcher(t, dir, true)

	got := map[string]error{}
	for i := 0; i < 2; i++ {
		r := next(t, results)
		got[filepath.Base(r.path)] = r.err
	}
	if err, ok := got["a.wav"]; !ok || err != nil {
		t.Errorf("a.wav result = %v (present %v)", err, ok)
	}
	if err, ok := got["b.flac"]; !ok || err == nil {
		t.Errorf("b.flac should report its decode error, got %v (present %v)", err, ok)
	}

	time.Sleep(150 * time.Millisecond)
	fa.mu.Lock()
	defer fa.mu.Unlock()
	if len(fa.paths) != 2 {
		t.Errorf("analysed %v, want exactly the two audio files", fa.paths)
	}
}

func TestWatcherStartFailsOnFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	w := NewWatcher(filepath.Join(file, "music"), &fakeAnalyzer{}, Options{})
	if err := w.Start(context.Background()); err == nil {
		w.Close()
		t.Fatal("expected an error when the music dir cannot be created")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close of an unstarted watcher: %v", err)
	}
}
