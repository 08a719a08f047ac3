package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"djmix/core/decoder"
	"djmix/core/dsp"
	"djmix/core/recorder"
	"djmix/logger"
	"djmix/metrics"
	"djmix/model"
)

// ErrRecordingUnavailable is returned when no recorder is attached.
var ErrRecordingUnavailable = errors.New("recording is not available")

// RecordingArchive uploads a finished recording and returns its object key.
type RecordingArchive interface {
	Archive(ctx context.Context, path string) (string, error)
}

// RecordingStore persists recording history.
type RecordingStore interface {
	Save(ctx context.Context, s *model.RecordingSession) error
}

// DecodeErrorMessage is the collaborator view of a failed decode.
type DecodeErrorMessage struct {
	ID      string `json:"id"`
	TrackID string `json:"trackId"`
	Error   string `json:"error"`
}

// WaveformChunk is one slice of a track's waveform.
type WaveformChunk struct {
	TrackID     string    `json:"trackId"`
	ChunkIndex  int       `json:"chunkIndex"`
	TotalChunks int       `json:"totalChunks"`
	Chunk       []float32 `json:"chunk"`
}

// WaveformComplete follows the last WaveformChunk of a track.
type WaveformComplete struct {
	TrackID     string `json:"trackId"`
	TotalFrames int    `json:"totalFrames"`
}

// OrchestratorConfig holds the non-real-time settings.
type OrchestratorConfig struct {
	WaveformChunkSize int
	RecordingDir      string
	ArchiveOnStop     bool
}

// Orchestrator is the background half of the engine: it submits decodes, applies
// their results to decks, and runs recording sessions.
type Orchestrator struct {
	engine *Engine
	pool   *decoder.Pool
	rec    *recorder.Worker
	out    Broadcaster
	cfg    OrchestratorConfig

	archive RecordingArchive
	store   RecordingStore

	mu      sync.Mutex
	pending [numDecks]string
	session *model.RecordingSession
}

// NewOrchestrator wires the engine to its decoder pool and recorder. rec may be nil.
func NewOrchestrator(e *Engine, pool *decoder.Pool, rec *recorder.Worker, out Broadcaster, cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{engine: e, pool: pool, rec: rec, out: out, cfg: cfg}
	if rec != nil {
		rec.OnStatus(func(st model.RecordingStatus) {
			out.Broadcast(MsgRecording, st)
		})
	}
	return o
}

// SetArchive enables upload of finished recordings.
func (o *Orchestrator) SetArchive(a RecordingArchive) { o.archive = a }

// SetStore enables recording history.
func (o *Orchestrator) SetStore(s RecordingStore) { o.store = s }

// Engine returns the engine being orchestrated.
func (o *Orchestrator) Engine() *Engine { return o.engine }

// RequestLoad decodes path for deck d. Only the most recent request per deck is
// applied; earlier ones still in flight are discarded when they finish.
func (o *Orchestrator) RequestLoad(d DeckID, path, trackID string) (string, error) {
	if !d.Valid() {
		return "", ErrInvalidDeck
	}
	if trackID == "" {
		trackID = uuid.NewString()
	}
	req := decoder.Request{
		ID:               decoder.NewRequestID(),
		TrackID:          trackID,
		FilePath:         path,
		TargetSampleRate: o.engine.cfg.SampleRate,
		TargetChannels:   dsp.Channels,
	}

	o.mu.Lock()
	prev := o.pending[d]
	o.pending[d] = req.ID
	o.mu.Unlock()

	if _, err := o.pool.Submit(req); err != nil {
		o.mu.Lock()
		if o.pending[d] == req.ID {
			o.pending[d] = prev
		}
		o.mu.Unlock()
		return "", fmt.Errorf("failed to queue decode: %w", err)
	}
	logger.Info("Decode requested",
		logger.String("deck", d.String()),
		logger.String("requestId", req.ID),
		logger.String("trackId", trackID),
		logger.String("path", path))
	return req.ID, nil
}

// Run applies decode results until ctx is done or the pool closes.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-o.pool.Results():
			if !ok {
				return
			}
			o.handleResult(ctx, resp)
		}
	}
}

// claim removes id from the pending set and reports which deck asked for it.
func (o *Orchestrator) claim(id string) (DeckID, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, p := range o.pending {
		if p != "" && p == id {
			o.pending[i] = ""
			return DeckID(i), true
		}
	}
	return 0, false
}

func (o *Orchestrator) handleResult(ctx context.Context, resp decoder.Response) {
	d, ok := o.claim(resp.Request.ID)
	if !ok {
		logger.Debug("Discarding superseded decode result", logger.String("requestId", resp.Request.ID))
		return
	}

	if resp.Err != nil {
		o.out.Broadcast(MsgDecodeError, DecodeErrorMessage{
			ID:      resp.Err.RequestID,
			TrackID: resp.Err.TrackID,
			Error:   resp.Err.Err.Error(),
		})
		return
	}

	track := resp.Track
	if err := retry(ctx, func() error { return o.engine.Load(d, track) }); err != nil {
		logger.Error("Failed to load decoded track", logger.String("deck", d.String()), logger.ErrorField(err))
		o.out.Broadcast(MsgDecodeError, DecodeErrorMessage{ID: resp.Request.ID, TrackID: track.ID, Error: err.Error()})
		return
	}
	o.publishWaveform(track)
}

func (o *Orchestrator) publishWaveform(t *model.Track) {
	chunks := decoder.WaveformChunks(t.Waveform, o.cfg.WaveformChunkSize)
	for i, c := range chunks {
		o.out.Broadcast(MsgWaveformChunk, WaveformChunk{
			TrackID:     t.ID,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
			Chunk:       c,
		})
	}
	o.out.Broadcast(MsgWaveformComplete, WaveformComplete{TrackID: t.ID, TotalFrames: t.Frames()})
}

// StartRecording begins writing the master output to path, or to a timestamped
// file in the recording directory when path is empty.
func (o *Orchestrator) StartRecording(ctx context.Context, path string) (*model.RecordingSession, error) {
	if o.rec == nil {
		return nil, ErrRecordingUnavailable
	}
	if path == "" {
		path = filepath.Join(o.cfg.RecordingDir, fmt.Sprintf("mix-%s.wav", time.Now().Format("20060102-150405")))
	}

	sr := o.engine.cfg.SampleRate
	if err := o.rec.Start(ctx, path, sr, dsp.Channels); err != nil {
		return nil, err
	}
	if err := retry(ctx, func() error { return o.engine.SetRecording(true) }); err != nil {
		o.rec.Terminate()
		return nil, err
	}

	s := &model.RecordingSession{
		ID:         uuid.NewString(),
		Path:       path,
		SampleRate: sr,
		Channels:   dsp.Channels,
		StartedAt:  time.Now(),
	}
	o.mu.Lock()
	o.session = s
	o.mu.Unlock()
	return s, nil
}

// StopRecording finalizes the current file. With no recording in progress it
// returns (nil, nil).
func (o *Orchestrator) StopRecording(ctx context.Context) (*model.RecordingSession, error) {
	if o.rec == nil {
		return nil, ErrRecordingUnavailable
	}
	if err := retry(ctx, func() error { return o.engine.SetRecording(false) }); err != nil {
		logger.Warn("Could not disable recording tap", logger.ErrorField(err))
	}

	n, err := o.rec.Stop(ctx)
	if errors.Is(err, recorder.ErrWriterFailed) {
		// the failed file is abandoned so the next start finds an idle writer
		o.rec.Terminate()
	}

	o.mu.Lock()
	s := o.session
	o.session = nil
	o.mu.Unlock()

	if err != nil {
		return s, err
	}
	if s == nil {
		return nil, nil
	}

	s.BytesWritten = n
	s.StoppedAt = time.Now()
	if bytesPerSec := int64(s.SampleRate * s.Channels * 2); bytesPerSec > 0 {
		s.Duration = float64(n) / float64(bytesPerSec)
	}
	metrics.RecordedBytes.Add(float64(n))

	if o.cfg.ArchiveOnStop && o.archive != nil {
		key, err := o.archive.Archive(ctx, s.Path)
		if err != nil {
			logger.Warn("Recording upload failed", logger.String("path", s.Path), logger.ErrorField(err))
		} else {
			s.ObjectKey = key
		}
	}
	if o.store != nil {
		if err := o.store.Save(ctx, s); err != nil {
			logger.Warn("Failed to save recording session", logger.String("id", s.ID), logger.ErrorField(err))
		}
	}
	return s, nil
}

// TerminateRecording abandons the current recording without finalizing it and
// returns the recorder to idle, including from the error state.
func (o *Orchestrator) TerminateRecording() error {
	if o.rec == nil {
		return ErrRecordingUnavailable
	}
	if err := retry(context.Background(), func() error { return o.engine.SetRecording(false) }); err != nil {
		logger.Warn("Could not disable recording tap", logger.ErrorField(err))
	}
	o.rec.Terminate()
	o.mu.Lock()
	o.session = nil
	o.mu.Unlock()
	return nil
}

// RecordingStatus reports the recorder state.
func (o *Orchestrator) RecordingStatus() model.RecordingStatus {
	if o.rec == nil {
		return model.RecordingStatus{State: model.RecordingIdle}
	}
	return o.rec.Status()
}

// retry repeats a command post while the engine queue is full.
func retry(ctx context.Context, post func() error) error {
	const attempts = 50
	for i := 0; ; i++ {
		err := post()
		if !errors.Is(err, ErrCommandQueueFull) || i == attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Millisecond):
		}
	}
}
