// Package output connects the engine's Process tick to an audio device.
package output

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"djmix/logger"
)

// Source renders interleaved stereo. *engine.Engine implements it.
type Source interface {
	Process(main, cue, mic []float32)
}

// Device is an open output stream.
type Device interface {
	Close() error
}

// Config describes the stream to open.
type Config struct {
	SampleRate   int
	MaxFrames    int
	DeviceFrames int
}

// Stereo is the channel count of the master and cue buses.
const Stereo = 2

// Reader adapts a Source to io.Reader as little-endian float32 stereo, the
// layout pull-based players consume.
type Reader struct {
	src       Source
	maxFrames int
	buf       []float32
}

// NewReader returns a Reader that asks src for at most maxFrames per Read.
func NewReader(src Source, maxFrames int) *Reader {
	return &Reader{src: src, maxFrames: maxFrames, buf: make([]float32, maxFrames*Stereo)}
}

func (r *Reader) Read(p []byte) (int, error) {
	const frameBytes = 4 * Stereo
	frames := len(p) / frameBytes
	if frames > r.maxFrames {
		frames = r.maxFrames
	}
	if frames == 0 {
		return 0, nil
	}
	buf := r.buf[:frames*Stereo]
	r.src.Process(buf, nil, nil)
	for i, s := range buf {
		binary.LittleEndian.PutUint32(p[4*i:], math.Float32bits(s))
	}
	return frames * frameBytes, nil
}

// Null drives a Source in real time without any hardware, for headless servers.
type Null struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OpenNull starts calling src every DeviceFrames worth of wall-clock time.
func OpenNull(src Source, cfg Config) *Null {
	frames := cfg.DeviceFrames
	if frames <= 0 || frames > cfg.MaxFrames {
		frames = cfg.MaxFrames
	}
	period := time.Duration(float64(time.Second) * float64(frames) / float64(cfg.SampleRate))

	ctx, cancel := context.WithCancel(context.Background())
	n := &Null{cancel: cancel}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		main := make([]float32, frames*Stereo)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				src.Process(main, nil, nil)
			}
		}
	}()
	logger.Info("Null audio output started", logger.Int("frames", frames), logger.Duration("period", period))
	return n
}

// Close stops the clock.
func (n *Null) Close() error {
	n.cancel()
	n.wg.Wait()
	return nil
}
