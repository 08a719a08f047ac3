package output

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

type rampSource struct {
	calls  atomic.Int64
	frames atomic.Int64
}

func (s *rampSource) Process(main, cue, mic []float32) {
	s.calls.Add(1)
	s.frames.Add(int64(len(main) / 2))
	for i := range main {
		main[i] = float32(i) / 100
	}
}

func TestReader(t *testing.T) {
	src := &rampSource{}
	r := NewReader(src, 4)

	p := make([]byte, 10*8)
	n, err := r.Read(p)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 4*8 {
		t.Fatalf("read %d bytes, want one max-sized block of 32", n)
	}
	for i := 0; i < 8; i++ {
		got := math.Float32frombits(binary.LittleEndian.Uint32(p[4*i:]))
		if got != float32(i)/100 {
			t.Fatalf("sample %d = %v", i, got)
		}
	}

	if n, _ := r.Read(make([]byte, 5)); n != 0 {
		t.Fatalf("partial frame read returned %d bytes", n)
	}
	if src.calls.Load() != 1 {
		t.Fatalf("source called %d times, want 1", src.calls.Load())
	}
}

func TestNullOutputDrivesSource(t *testing.T) {
	src := &rampSource{}
	dev := OpenNull(src, Config{SampleRate: 44100, MaxFrames: 512, DeviceFrames: 441})
	deadline := time.Now().Add(2 * time.Second)
	for src.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if src.calls.Load() < 3 {
		t.Fatalf("source called %d times in 2s", src.calls.Load())
	}
	if src.frames.Load()%441 != 0 {
		t.Fatalf("frames %d not a multiple of the device block", src.frames.Load())
	}
}
