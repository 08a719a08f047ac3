// Package decoder turns audio files into engine-ready tracks: interleaved PCM at
// the engine rate, a mono downmix, tempo, structure and a waveform.
package decoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"djmix/core/tempo"
	"djmix/logger"
	"djmix/metrics"
	"djmix/model"
)

// Request asks for one file to be decoded for one track.
type Request struct {
	ID               string `json:"id"`
	TrackID          string `json:"trackId"`
	FilePath         string `json:"filePath"`
	TargetSampleRate int    `json:"targetSampleRate"`
	TargetChannels   int    `json:"targetChannels"`
}

// DecodeError reports a failed request. The deck that asked keeps its track.
type DecodeError struct {
	RequestID string
	TrackID   string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (track %s): %v", e.RequestID, e.TrackID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// AnalysisCache stores tempo and structure results between runs. Load returns
// (nil, nil) on a miss.
type AnalysisCache interface {
	Load(ctx context.Context, key string) (*model.TrackAnalysis, error)
	Store(ctx context.Context, key string, a *model.TrackAnalysis) error
}

// Options configures a Decoder.
type Options struct {
	FFmpegPath        string
	WaveformPointsSec int
	Cache             AnalysisCache
}

// Decoder decodes and analyses files. It is safe for concurrent use.
type Decoder struct {
	ffmpeg         *FFmpeg
	detector       *tempo.Detector
	waveformPoints int
	cache          AnalysisCache
}

// New creates a Decoder.
func New(opts Options) *Decoder {
	points := opts.WaveformPointsSec
	if points <= 0 {
		points = 50
	}
	return &Decoder{
		ffmpeg:         NewFFmpeg(opts.FFmpegPath),
		detector:       tempo.NewDetector(),
		waveformPoints: points,
		cache:          opts.Cache,
	}
}

// Decode runs req to completion. Any failure, including a panic inside a codec,
// comes back as a *DecodeError.
func (d *Decoder) Decode(ctx context.Context, req Request) (track *model.Track, err error) {
	defer func() {
		if r := recover(); r != nil {
			track = nil
			err = &DecodeError{RequestID: req.ID, TrackID: req.TrackID, Err: fmt.Errorf("decoder panic: %v", r)}
		}
	}()

	fail := func(err error) (*model.Track, error) {
		return nil, &DecodeError{RequestID: req.ID, TrackID: req.TrackID, Err: err}
	}

	if req.TargetSampleRate <= 0 || req.TargetChannels <= 0 {
		return fail(fmt.Errorf("invalid target format %d Hz x %d", req.TargetSampleRate, req.TargetChannels))
	}

	raw, err := d.decodeRaw(ctx, req.FilePath)
	if err != nil {
		return fail(err)
	}
	pcm, mono, err := convert(raw.PCM, raw.SampleRate, raw.Channels, req.TargetSampleRate, req.TargetChannels)
	if err != nil {
		return fail(err)
	}
	raw.PCM = nil
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	md := ReadMetadata(req.FilePath)
	track = &model.Track{
		ID:         req.TrackID,
		Title:      md.Title,
		Artist:     md.Artist,
		SourcePath: req.FilePath,
		PCM:        pcm,
		Mono:       mono,
		SampleRate: req.TargetSampleRate,
		Channels:   req.TargetChannels,
		Duration:   float64(len(mono)) / float64(req.TargetSampleRate),
		Waveform:   Waveform(mono, req.TargetSampleRate, d.waveformPoints),
	}

	analysis := d.analyse(ctx, req.FilePath, mono, req.TargetSampleRate)
	track.BPM = analysis.BPM
	track.Structure = analysis.Structure
	return track, nil
}

func (d *Decoder) decodeRaw(ctx context.Context, path string) (*rawAudio, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if nativeFormat(ext) {
		raw, err := decodeNative(path)
		if err == nil {
			return raw, nil
		}
		logger.Warn("Native decode failed, falling back to ffmpeg",
			logger.String("path", path), logger.ErrorField(err))
	}
	return d.ffmpeg.Decode(ctx, path)
}

// analyse returns tempo and structure, consulting the cache first.
func (d *Decoder) analyse(ctx context.Context, path string, mono []float32, sampleRate int) *model.TrackAnalysis {
	key := ""
	if d.cache != nil {
		key = AnalysisKey(path, sampleRate)
		if key != "" {
			cached, err := d.cache.Load(ctx, key)
			if err != nil {
				logger.Warn("Analysis cache lookup failed", logger.String("path", path), logger.ErrorField(err))
			} else if cached != nil {
				metrics.AnalysisCache.WithLabelValues("hit").Inc()
				return cached
			}
			metrics.AnalysisCache.WithLabelValues("miss").Inc()
		}
	}

	a := &model.TrackAnalysis{}
	if res, ok := d.detector.Detect(mono, sampleRate); ok {
		bpm := res.BPM
		a.BPM = &bpm
		a.Structure = d.detector.AnalyzeStructure(mono, sampleRate, bpm)
	}

	if d.cache != nil && key != "" {
		if err := d.cache.Store(ctx, key, a); err != nil {
			logger.Warn("Analysis cache store failed", logger.String("path", path), logger.ErrorField(err))
		}
	}
	return a
}

// AnalysisKey identifies a file's content by path, size and modification time.
// It returns "" when the file cannot be stat'ed.
func AnalysisKey(path string, sampleRate int) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return fmt.Sprintf("%s:%d:%d:%d", abs, info.Size(), info.ModTime().UnixNano(), sampleRate)
}
