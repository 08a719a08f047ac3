package recorder

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"djmix/model"
)

func readWAV(t *testing.T, path string) (wavHeader, []int16) {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if len(raw) < HeaderSize {
		t.Fatalf("file is %d bytes, shorter than a header", len(raw))
	}
	var h wavHeader
	if err := binary.Read(bytes.NewReader(raw[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		t.Fatalf("decode header: %v", err)
	}
	pcm := make([]int16, (len(raw)-HeaderSize)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(raw[HeaderSize+2*i:]))
	}
	return h, pcm
}

func TestHeaderLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := writeHeader(&buf, 44100, 2, 1000); err != nil {
		t.Fatalf("writeHeader: %v", err)
	}
	b := buf.Bytes()
	if len(b) != HeaderSize {
		t.Fatalf("header is %d bytes, want %d", len(b), HeaderSize)
	}

	tests := []struct {
		name   string
		offset int
		want   []byte
	}{
		{"riff", 0, []byte("RIFF")},
		{"wave", 8, []byte("WAVE")},
		{"fmt", 12, []byte("fmt ")},
		{"data", 36, []byte("data")},
	}
	for _, tt := range tests {
		if got := b[tt.offset : tt.offset+4]; !bytes.Equal(got, tt.want) {
			t.Errorf("%s tag = %q, want %q", tt.name, got, tt.want)
		}
	}

	le := binary.LittleEndian
	if got := le.Uint32(b[4:]); got != 1036 {
		t.Errorf("chunk size = %d, want 1036", got)
	}
	if got := le.Uint32(b[16:]); got != 16 {
		t.Errorf("fmt size = %d, want 16", got)
	}
	if got := le.Uint16(b[20:]); got != 1 {
		t.Errorf("audio format = %d, want 1", got)
	}
	if got := le.Uint16(b[22:]); got != 2 {
		t.Errorf("channels = %d, want 2", got)
	}
	if got := le.Uint32(b[24:]); got != 44100 {
		t.Errorf("sample rate = %d, want 44100", got)
	}
	if got := le.Uint32(b[28:]); got != 44100*4 {
		t.Errorf("byte rate = %d, want %d", got, 44100*4)
	}
	if got := le.Uint16(b[32:]); got != 4 {
		t.Errorf("block align = %d, want 4", got)
	}
	if got := le.Uint16(b[34:]); got != 16 {
		t.Errorf("bits per sample = %d, want 16", got)
	}
	if got := le.Uint32(b[40:]); got != 1000 {
		t.Errorf("data size = %d, want 1000", got)
	}
}

func TestToPCM16(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1, 32767},
		{-1, -32768},
		{2, 32767},
		{-3, -32768},
		{0.5, 16384},
		{-0.5, -16384},
		{float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		if got := ToPCM16(tt.in); got != tt.want {
			t.Errorf("ToPCM16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mix.wav")
	w := NewWriter()
	if err := w.Start(path, 48000, 2); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const frames = 1000
	in := make([]float32, frames*2)
	for i := range in {
		in[i] = float32(math.Sin(float64(i) * 0.01))
	}
	if err := w.Write(in[:600]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(in[600:]); err != nil {
		t.Fatalf("Write: %v", err)
	}

	n, err := w.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if n != frames*2*2 {
		t.Fatalf("bytes written = %d, want %d", n, frames*2*2)
	}

	h, pcm := readWAV(t, path)
	if h.DataSize != uint32(n) || h.ChunkSize != uint32(36+n) {
		t.Errorf("header sizes = %d/%d, want %d/%d", h.DataSize, h.ChunkSize, n, 36+n)
	}
	if h.SampleRate != 48000 || h.NumChannels != 2 {
		t.Errorf("format = %d Hz x %d", h.SampleRate, h.NumChannels)
	}
	if len(pcm) != len(in) {
		t.Fatalf("got %d samples, want %d", len(pcm), len(in))
	}
	const lsb = 1.0 / 32767
	for i, v := range pcm {
		back := float64(v) / 32768
		if v > 0 {
			back = float64(v) / 32767
		}
		if math.Abs(back-float64(in[i])) > lsb {
			t.Fatalf("sample %d: %v -> %d -> %v", i, in[i], v, back)
		}
	}
}

func TestWriterStateMachine(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter()

	if n, err := w.Stop(); n != 0 || err != nil {
		t.Fatalf("Stop on idle = (%d, %v), want (0, nil)", n, err)
	}
	if err := w.Write([]float32{0.1, 0.2}); err != nil {
		t.Fatalf("Write on idle: %v", err)
	}
	if st := w.Status(); st.State != model.RecordingIdle || st.BytesWritten != 0 {
		t.Fatalf("status = %+v after idle write", st)
	}

	first := filepath.Join(dir, "a.wav")
	if err := w.Start(first, 44100, 2); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(filepath.Join(dir, "b.wav"), 44100, 2); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start = %v, want ErrAlreadyRecording", err)
	}
	if st := w.Status(); st.State != model.RecordingActive || st.Path != first {
		t.Fatalf("status changed by rejected start: %+v", st)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.wav")); !os.IsNotExist(err) {
		t.Fatal("rejected start created a file")
	}

	if _, err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if n, err := w.Stop(); n != 0 || err != nil {
		t.Fatalf("second Stop = (%d, %v), want (0, nil)", n, err)
	}

	h, pcm := readWAV(t, first)
	if h.DataSize != 0 || len(pcm) != 0 {
		t.Fatalf("empty recording has data size %d", h.DataSize)
	}
}

func TestWriterErrorIsAbsorbing(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}

	w := NewWriter()
	if err := w.Start(filepath.Join(blocker, "x.wav"), 44100, 2); err == nil {
		t.Fatal("expected start to fail below a regular file")
	}
	st := w.Status()
	if st.State != model.RecordingError || st.LastError == "" {
		t.Fatalf("status = %+v, want error state", st)
	}
	if err := w.Start(filepath.Join(dir, "ok.wav"), 44100, 2); !errors.Is(err, ErrNeedsTerminate) {
		t.Fatalf("Start in error state = %v, want ErrNeedsTerminate", err)
	}
	if _, err := w.Stop(); !errors.Is(err, ErrWriterFailed) {
		t.Fatalf("Stop in error state = %v, want ErrWriterFailed", err)
	}

	w.Terminate()
	w.Terminate()
	if st := w.Status(); st.State != model.RecordingIdle {
		t.Fatalf("state after Terminate = %s", st.State)
	}
	if err := w.Start(filepath.Join(dir, "ok.wav"), 44100, 2); err != nil {
		t.Fatalf("Start after Terminate: %v", err)
	}
	w.Terminate()
}

func TestChunkPool(t *testing.T) {
	p := NewChunkPool(2, 8)
	a, b := p.Get(), p.Get()
	if a == nil || b == nil {
		t.Fatal("pool returned nil before exhaustion")
	}
	if c := p.Get(); c != nil {
		t.Fatal("exhausted pool returned a chunk")
	}
	a.Len = 5
	p.Put(a)
	if got := p.Get(); got != a || got.Len != 0 {
		t.Fatalf("recycled chunk = %p len %d", got, got.Len)
	}
}

func TestWorkerRecordsSubmittedChunks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool := NewChunkPool(8, 256)
	wk := NewWorker(NewWriter(), pool)
	statuses := make(chan model.RecordingStatus, 16)
	wk.OnStatus(func(st model.RecordingStatus) { statuses <- st })
	wk.Run()
	defer wk.Close()

	path := filepath.Join(t.TempDir(), "worker.wav")
	if err := wk.Start(ctx, path, 44100, 2); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := wk.Start(ctx, path, 44100, 2); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start = %v", err)
	}

	for i := 0; i < 4; i++ {
		c := pool.Get()
		if c == nil {
			t.Fatal("pool exhausted")
		}
		for j := range c.Samples[:100] {
			c.Samples[j] = 0.25
		}
		c.Len = 100
		if !wk.Submit(c) {
			t.Fatal("Submit refused a chunk")
		}
	}

	n, err := wk.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if n != 4*100*2 {
		t.Fatalf("bytes written = %d, want 800", n)
	}
	if pool.Available() != 8 {
		t.Fatalf("%d chunks back in pool, want 8", pool.Available())
	}

	_, pcm := readWAV(t, path)
	for i, v := range pcm {
		if v != ToPCM16(0.25) {
			t.Fatalf("sample %d = %d", i, v)
		}
	}

	var last model.RecordingStatus
	for len(statuses) > 0 {
		last = <-statuses
	}
	if last.State != model.RecordingIdle {
		t.Fatalf("last published state = %s, want idle", last.State)
	}
}

func TestWorkerSubmitDropsWhenFull(t *testing.T) {
	pool := NewChunkPool(2, 4)
	wk := NewWorker(NewWriter(), pool)
	// not running, so the queue fills up
	extra := &Chunk{Samples: make([]float32, 4)}
	wk.Submit(pool.Get())
	wk.Submit(pool.Get())
	if wk.Submit(extra) {
		t.Fatal("Submit accepted a chunk on a full queue")
	}
	if wk.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", wk.Dropped())
	}
}
