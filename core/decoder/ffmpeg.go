package decoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpeg decodes formats beep has no decoder for by piping raw float PCM out of
// an ffmpeg subprocess.
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg returns a decoder that runs the given ffmpeg binary. ffprobe is
// expected next to it.
func NewFFmpeg(ffmpegPath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: strings.Replace(ffmpegPath, "ffmpeg", "ffprobe", 1),
	}
}

type probeStream struct {
	CodecName  string `json:"codec_name"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// probe returns the sample rate and channel count of the first audio stream.
func (f *FFmpeg) probe(ctx context.Context, inputFile string) (probeStream, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name,sample_rate,channels",
		"-of", "json",
		inputFile,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return probeStream{}, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", inputFile, err, stderr.String())
	}

	var probeData struct {
		Streams []probeStream `json:"streams"`
	}
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return probeStream{}, fmt.Errorf("failed to unmarshal ffprobe output: %w", err)
	}
	if len(probeData.Streams) == 0 {
		return probeStream{}, fmt.Errorf("no audio streams found in %s", inputFile)
	}
	return probeData.Streams[0], nil
}

// Decode converts inputFile to interleaved float32 at its native rate. Sources
// with more than two channels are folded to stereo by ffmpeg.
func (f *FFmpeg) Decode(ctx context.Context, inputFile string) (*rawAudio, error) {
	stream, err := f.probe(ctx, inputFile)
	if err != nil {
		return nil, err
	}
	rate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %q for %s", stream.SampleRate, inputFile)
	}
	channels := stream.Channels
	if channels < 1 || channels > 2 {
		channels = 2
	}

	args := []string{
		"-v", "error",
		"-i", inputFile,
		"-vn",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(rate),
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	pcm, readErr := readF32LE(stdout)
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("ffmpeg execution failed for %s: %w\nFFmpeg Error: %s", inputFile, err, stderr.String())
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read ffmpeg output: %w", readErr)
	}

	return &rawAudio{PCM: pcm, SampleRate: rate, Channels: channels}, nil
}

// readF32LE reads little-endian float32 samples until EOF. A trailing partial
// sample is discarded.
func readF32LE(r io.Reader) ([]float32, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	pcm := make([]float32, len(raw)/4)
	for i := range pcm {
		pcm[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return pcm, nil
}
