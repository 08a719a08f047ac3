package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"djmix/config"
	"djmix/core/decoder"
	"djmix/core/engine"
	"djmix/core/recorder"
	"djmix/model"
)

type discard struct{}

func (discard) Broadcast(string, interface{}) {}

type fakeHistory struct {
	sessions []*model.RecordingSession
	limit    int
	offset   int
}

func (f *fakeHistory) Save(_ context.Context, s *model.RecordingSession) error {
	f.sessions = append(f.sessions, s)
	return nil
}

func (f *fakeHistory) GetByID(context.Context, string) (*model.RecordingSession, error) {
	return nil, nil
}

func (f *fakeHistory) List(_ context.Context, limit, offset int) ([]*model.RecordingSession, error) {
	f.limit, f.offset = limit, offset
	return f.sessions, nil
}

func (f *fakeHistory) Delete(context.Context, string) error { return nil }

type fixture struct {
	srv  *Server
	eng  *engine.Engine
	pool *decoder.Pool
	cfg  *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newRecordingFixture(t, nil)
}

// newRecordingFixture wires rec into the orchestrator and the engine tap when non-nil.
func newRecordingFixture(t *testing.T, rec *recorder.Worker) *fixture {
	t.Helper()
	ecfg := engine.DefaultConfig()
	ecfg.MaxFrames = 256
	var sink engine.ChunkSink
	if rec != nil {
		sink = rec
	}
	eng, err := engine.New(ecfg, sink)
	if err != nil {
		t.Fatal(err)
	}
	// The pool is never started, so submitted loads stay queued.
	pool := decoder.NewPool(decoder.New(decoder.Options{}), 1, 4)
	orch := engine.NewOrchestrator(eng, pool, rec, discard{}, engine.OrchestratorConfig{RecordingDir: t.TempDir()})
	pub := engine.NewPublisher(eng.Snapshots(), discard{}, time.Millisecond, time.Millisecond)

	cfg := &config.Config{
		MusicDir:        t.TempDir(),
		AutoFadeDefault: 4 * time.Second,
	}
	return &fixture{srv: New(cfg, orch, pub, nil), eng: eng, pool: pool, cfg: cfg}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

// tick runs one engine callback and returns the snapshot it produced.
func (f *fixture) tick(t *testing.T) engine.Snapshot {
	t.Helper()
	f.eng.Process(make([]float32, 64*2), nil, nil)
	select {
	case s := <-f.eng.Snapshots():
		return s
	default:
		t.Fatal("no snapshot emitted")
		return engine.Snapshot{}
	}
}

func TestDeckCommandsReachTheEngine(t *testing.T) {
	f := newFixture(t)

	steps := []struct {
		path string
		body string
	}{
		{"/api/decks/b/gain", `{"value":0.25}`},
		{"/api/decks/A/cue", `{"enabled":true}`},
		{"/api/decks/a/eq", `{"low":true,"high":true}`},
		{"/api/crossfader", `{"position":0.8}`},
		{"/api/talkover", `{"active":true}`},
		{"/api/mic", `{"enabled":true}`},
	}
	for _, s := range steps {
		if rec := f.do(http.MethodPost, s.path, s.body); rec.Code != http.StatusAccepted {
			t.Fatalf("%s: status %d, body %s", s.path, rec.Code, rec.Body)
		}
	}

	snap := f.tick(t)
	if snap.Decks[engine.DeckB].Gain != 0.25 {
		t.Errorf("deck B gain = %v", snap.Decks[engine.DeckB].Gain)
	}
	if !snap.Decks[engine.DeckA].Cue {
		t.Error("deck A cue not enabled")
	}
	if eq := snap.Decks[engine.DeckA].EQ; !eq.Low || eq.Mid || !eq.High {
		t.Errorf("deck A eq = %+v", eq)
	}
	if snap.Crossfader != 0.8 {
		t.Errorf("crossfader = %v", snap.Crossfader)
	}
	if !snap.Talkover || !snap.MicEnabled {
		t.Errorf("talkover %v, mic %v", snap.Talkover, snap.MicEnabled)
	}
}

func TestAutoCrossfadeUsesDefaultDuration(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(http.MethodPost, "/api/crossfader/auto", `{"target":1}`); rec.Code != http.StatusAccepted {
		t.Fatalf("status %d", rec.Code)
	}
	snap := f.tick(t)
	if !snap.AutoCrossfade {
		t.Fatal("auto crossfade not running")
	}
	// 64 frames of a 4 s fade at 44.1 kHz barely moves the fader off A.
	if snap.Crossfader <= 0 || snap.Crossfader > 0.01 {
		t.Errorf("crossfader = %v after one tick", snap.Crossfader)
	}
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown deck", "/api/decks/c/play", "", http.StatusNotFound},
		{"malformed body", "/api/decks/a/seek", `{"seconds":`, http.StatusBadRequest},
		{"missing load path", "/api/decks/a/load", `{}`, http.StatusBadRequest},
		{"recording without recorder", "/api/recording/start", "", http.StatusServiceUnavailable},
		{"terminate without recorder", "/api/recording/terminate", "", http.StatusServiceUnavailable},
		{"history not configured", "/api/recordings", "", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if strings.HasSuffix(tt.path, "/recordings") {
				method = http.MethodGet
			}
			if rec := f.do(method, tt.path, tt.body); rec.Code != tt.status {
				t.Fatalf("status %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
		})
	}
}

func TestLoadQueuesDecode(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/decks/b/load", `{"path":"set.wav","trackId":"t1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var resp LoadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.RequestID == "" {
		t.Fatalf("response %+v, %v", resp, err)
	}

	// fill the remaining queue slots, then expect back-pressure
	for i := 0; i < 3; i++ {
		f.do(http.MethodPost, "/api/decks/a/load", `{"path":"/abs/x.wav"}`)
	}
	if rec := f.do(http.MethodPost, "/api/decks/a/load", `{"path":"y.wav"}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d with a full decode queue", rec.Code)
	}
}

func TestStateEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var st map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if _, ok := st["decks"]; !ok {
		t.Errorf("state has no decks: %v", st)
	}
}

func TestLibraryListsAudioFiles(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"b.mp3", "a.wav", "readme.txt"} {
		if err := os.WriteFile(filepath.Join(f.cfg.MusicDir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	rec := f.do(http.MethodGet, "/api/library", "")
	var entries []LibraryEntry
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Name != "a.wav" || entries[1].Name != "b.mp3" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestRecordingHistory(t *testing.T) {
	f := newFixture(t)
	hist := &fakeHistory{sessions: []*model.RecordingSession{{ID: "r1", Path: "/tmp/r1.wav"}}}
	f.srv.SetHistory(hist)

	rec := f.do(http.MethodGet, "/api/recordings?limit=5&offset=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if hist.limit != 5 || hist.offset != 10 {
		t.Errorf("paging = %d/%d", hist.limit, hist.offset)
	}
	var got []model.RecordingSession
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil || len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("got %+v, %v", got, err)
	}
}

func TestRecordingStatusIdle(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/recording", "")
	var st model.RecordingStatus
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.State != model.RecordingIdle {
		t.Errorf("state = %q", st.State)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestTerminateClearsFailedRecorder(t *testing.T) {
	worker := recorder.NewWorker(recorder.NewWriter(), recorder.NewChunkPool(8, 256*2))
	worker.Run()
	defer worker.Close()
	f := newRecordingFixture(t, worker)

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	body := `{"path":"` + filepath.ToSlash(filepath.Join(blocker, "mix.wav")) + `"}`
	if rec := f.do(http.MethodPost, "/api/recording/start", body); rec.Code != http.StatusInternalServerError {
		t.Fatalf("bad start: status %d", rec.Code)
	}

	rec := f.do(http.MethodPost, "/api/recording/start", "")
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "terminate") {
		t.Fatalf("start in error state: status %d, body %s", rec.Code, rec.Body)
	}
	if rec := f.do(http.MethodPost, "/api/recording/terminate", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("terminate: status %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/recording/start", ""); rec.Code != http.StatusOK {
		t.Fatalf("start after terminate: status %d, body %s", rec.Code, rec.Body)
	}
	if rec := f.do(http.MethodPost, "/api/recording/stop", ""); rec.Code != http.StatusOK {
		t.Fatalf("stop: status %d, body %s", rec.Code, rec.Body)
	}
}
