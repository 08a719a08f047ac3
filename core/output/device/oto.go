//go:build !portaudio

// Package device opens hardware audio streams for the engine.
package device

import (
	"fmt"

	"github.com/hajimehoshi/oto/v2"

	"djmix/core/output"
	"djmix/logger"
)

// formatFloat32LE selects oto's 32-bit float sample format.
const formatFloat32LE = oto.FormatFloat32LE

type otoDevice struct {
	ctx    *oto.Context
	player oto.Player
}

// Open starts a stereo stream on the default device. Builds without the
// portaudio tag have no cue output or microphone.
func Open(src output.Source, cfg output.Config) (output.Device, error) {
	ctx, ready, err := oto.NewContext(cfg.SampleRate, output.Stereo, formatFloat32LE)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}
	<-ready

	player := ctx.NewPlayer(output.NewReader(src, cfg.MaxFrames))
	player.Play()
	logger.Info("Audio output started",
		logger.String("backend", "oto"),
		logger.Int("sampleRate", cfg.SampleRate))
	return &otoDevice{ctx: ctx, player: player}, nil
}

func (d *otoDevice) Close() error {
	d.player.Pause()
	return d.player.Close()
}
