// Package recorder writes the engine's mixed output to PCM16 WAV files.
package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"djmix/model"
)

var (
	// ErrAlreadyRecording is returned by Start when the writer is not idle.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrWriterFailed is returned by Stop once the writer has entered the error state.
	ErrWriterFailed = errors.New("recording writer failed")
	// ErrNeedsTerminate is returned by Start while the writer is in the error state.
	ErrNeedsTerminate = errors.New("recorder in error state, terminate first")
)

// Writer is a PCM16 WAV writer with an explicit lifecycle:
// idle -> preparing -> recording -> stopping -> idle. A failure moves it to
// error, which only Terminate leaves.
type Writer struct {
	mu sync.Mutex

	state      model.RecordingState
	path       string
	createdAt  time.Time
	sampleRate int
	channels   int
	dataBytes  int64
	lastErr    error

	file    *os.File
	buf     *bufio.Writer
	scratch []byte
}

// NewWriter returns an idle writer.
func NewWriter() *Writer {
	return &Writer{state: model.RecordingIdle}
}

// Start creates path and writes a placeholder header.
func (w *Writer) Start(path string, sampleRate, channels int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case model.RecordingIdle:
	case model.RecordingError:
		return ErrNeedsTerminate
	default:
		return ErrAlreadyRecording
	}
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid recording format %d Hz x %d", sampleRate, channels)
	}

	w.state = model.RecordingPreparing
	w.path = path
	w.createdAt = time.Now()
	w.sampleRate = sampleRate
	w.channels = channels
	w.dataBytes = 0
	w.lastErr = nil

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return w.fail(fmt.Errorf("failed to create recording directory: %w", err))
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return w.fail(fmt.Errorf("failed to create recording file: %w", err))
	}
	w.file = f
	w.buf = bufio.NewWriterSize(f, 64*1024)

	if err := writeHeader(w.buf, sampleRate, channels, 0); err != nil {
		return w.fail(fmt.Errorf("failed to write wav header: %w", err))
	}
	w.state = model.RecordingActive
	return nil
}

// Write appends interleaved samples. It is a no-op unless recording.
func (w *Writer) Write(samples []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != model.RecordingActive || len(samples) == 0 {
		return nil
	}
	w.scratch = encodePCM16(w.scratch[:0], samples)
	n, err := w.buf.Write(w.scratch)
	w.dataBytes += int64(n)
	if err != nil {
		return w.fail(fmt.Errorf("failed to write samples: %w", err))
	}
	return nil
}

// Stop finalizes the header and closes the file, returning the number of PCM
// bytes written. Stopping an idle writer returns (0, nil).
func (w *Writer) Stop() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case model.RecordingIdle:
		return 0, nil
	case model.RecordingError:
		return 0, fmt.Errorf("%w: %v", ErrWriterFailed, w.lastErr)
	case model.RecordingActive:
	default:
		return 0, fmt.Errorf("cannot stop while %s", w.state)
	}

	w.state = model.RecordingStopping
	if err := w.buf.Flush(); err != nil {
		return 0, w.fail(fmt.Errorf("failed to flush recording: %w", err))
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return 0, w.fail(fmt.Errorf("failed to seek recording: %w", err))
	}
	if err := writeHeader(w.file, w.sampleRate, w.channels, w.dataBytes); err != nil {
		return 0, w.fail(fmt.Errorf("failed to rewrite wav header: %w", err))
	}
	err := w.file.Close()
	w.file, w.buf = nil, nil
	if err != nil {
		return 0, w.fail(fmt.Errorf("failed to close recording: %w", err))
	}

	w.state = model.RecordingIdle
	return w.dataBytes, nil
}

// Terminate abandons whatever is in progress and returns to idle. The file is
// closed but its header is left as is.
func (w *Writer) Terminate() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closeFile()
	w.state = model.RecordingIdle
	w.lastErr = nil
}

// Status reports the current state.
func (w *Writer) Status() model.RecordingStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := model.RecordingStatus{
		State:        w.state,
		Path:         w.path,
		CreatedAt:    w.createdAt,
		BytesWritten: w.dataBytes,
	}
	if w.lastErr != nil {
		st.LastError = w.lastErr.Error()
	}
	return st
}

func (w *Writer) fail(err error) error {
	w.closeFile()
	w.state = model.RecordingError
	w.lastErr = err
	return err
}

func (w *Writer) closeFile() {
	if w.file == nil {
		return
	}
	if w.buf != nil {
		_ = w.buf.Flush()
	}
	_ = w.file.Close()
	w.file, w.buf = nil, nil
}
