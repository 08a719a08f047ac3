//go:build portaudio

package device

import (
	"fmt"

	pa "github.com/gordonklaus/portaudio"

	"djmix/core/output"
	"djmix/logger"
)

type paDevice struct {
	stream *pa.Stream
}

// Open starts a stream on the default device. Devices with four or more outputs
// get the master on channels 1-2 and the cue bus on 3-4; a default input, when
// present, feeds the microphone.
func Open(src output.Source, cfg output.Config) (output.Device, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	out, err := pa.DefaultOutputDevice()
	if err != nil {
		pa.Terminate()
		return nil, fmt.Errorf("failed to open default output: %w", err)
	}

	channels := output.Stereo
	if out.MaxOutputChannels >= 4 {
		channels = 4
	}
	inputs := 0
	if in, err := pa.DefaultInputDevice(); err == nil && in.MaxInputChannels > 0 {
		inputs = 1
	}

	frames := cfg.DeviceFrames
	if frames <= 0 || frames > cfg.MaxFrames {
		frames = cfg.MaxFrames
	}
	main := make([]float32, cfg.MaxFrames*output.Stereo)
	cue := make([]float32, cfg.MaxFrames*output.Stereo)

	render := func(in, buf []float32) {
		n := len(buf) / channels
		if n > cfg.MaxFrames {
			n = cfg.MaxFrames
		}
		m := main[:n*output.Stereo]
		if channels == output.Stereo {
			src.Process(m, nil, in)
			copy(buf, m)
			return
		}
		c := cue[:n*output.Stereo]
		src.Process(m, c, in)
		for i := 0; i < n; i++ {
			buf[i*channels] = m[2*i]
			buf[i*channels+1] = m[2*i+1]
			buf[i*channels+2] = c[2*i]
			buf[i*channels+3] = c[2*i+1]
		}
	}

	var stream *pa.Stream
	if inputs > 0 {
		stream, err = pa.OpenDefaultStream(inputs, channels, float64(cfg.SampleRate), frames, func(in, buf []float32) {
			render(in, buf)
		})
	} else {
		stream, err = pa.OpenDefaultStream(0, channels, float64(cfg.SampleRate), frames, func(buf []float32) {
			render(nil, buf)
		})
	}
	if err != nil {
		pa.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		pa.Terminate()
		return nil, fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	logger.Info("Audio output started",
		logger.String("backend", "portaudio"),
		logger.String("device", out.Name),
		logger.Int("channels", channels),
		logger.Bool("mic", inputs > 0),
		logger.Int("sampleRate", cfg.SampleRate))
	return &paDevice{stream: stream}, nil
}

func (d *paDevice) Close() error {
	if err := d.stream.Stop(); err != nil {
		logger.Warn("Failed to stop portaudio stream", logger.ErrorField(err))
	}
	if err := d.stream.Close(); err != nil {
		return err
	}
	return pa.Terminate()
}
