package decoder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// rawAudio is decoded interleaved PCM at the source's own rate.
type rawAudio struct {
	PCM        []float32
	SampleRate int
	Channels   int
}

const streamBlock = 4096

// nativeFormat reports whether ext is decoded in-process rather than via ffmpeg.
func nativeFormat(ext string) bool {
	switch ext {
	case ".mp3", ".wav", ".wave", ".flac", ".ogg", ".oga":
		return true
	}
	return false
}

// IsAudioFile reports whether path has an extension the decoder will try,
// natively or through ffmpeg.
func IsAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if nativeFormat(ext) {
		return true
	}
	switch ext {
	case ".m4a", ".aac", ".opus", ".aif", ".aiff", ".wma", ".alac":
		return true
	}
	return false
}

// decodeNative decodes path with the beep decoder registered for its extension.
func decodeNative(path string) (*rawAudio, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".wav", ".wave":
		streamer, format, err = wav.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	case ".ogg", ".oga":
		streamer, format, err = vorbis.Decode(f)
	default:
		f.Close()
		return nil, fmt.Errorf("no native decoder for %s", path)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	defer streamer.Close()
	defer f.Close()

	return readStreamer(streamer, format)
}

// readStreamer drains s into interleaved float32 PCM. beep always yields stereo
// pairs, so mono sources keep only the left sample.
func readStreamer(s beep.Streamer, format beep.Format) (*rawAudio, error) {
	channels := format.NumChannels
	if channels < 1 || channels > 2 {
		channels = 2
	}

	capacity := streamBlock * channels
	if l, ok := s.(beep.StreamSeeker); ok && l.Len() > 0 {
		capacity = l.Len() * channels
	}
	pcm := make([]float32, 0, capacity)

	block := make([][2]float64, streamBlock)
	for {
		n, ok := s.Stream(block)
		for _, frame := range block[:n] {
			pcm = append(pcm, float32(frame[0]))
			if channels == 2 {
				pcm = append(pcm, float32(frame[1]))
			}
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("stream error: %w", err)
	}

	return &rawAudio{PCM: pcm, SampleRate: int(format.SampleRate), Channels: channels}, nil
}
