package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"djmix/core/decoder"
	"djmix/core/dsp"
	"djmix/core/engine"
	"djmix/core/recorder"
	"djmix/logger"
	"djmix/model"

	"github.com/spf13/cobra"
)

var (
	recordOut     string
	recordSeconds float64
	recordFade    float64
)

var recordCmd = &cobra.Command{
	Use:   "record <fileA> [fileB]",
	Short: "Render a mix offline to a WAV file",
	Long: `Runs the engine without an output device. Deck A plays from the start;
when a second file is given, deck B starts --fade seconds before the end and
the crossfader sweeps to B over that time.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		return runRecord(ctx, args)
	},
}

func init() {
	recordCmd.Flags().StringVarP(&recordOut, "out", "o", "mix.wav", "output WAV path")
	recordCmd.Flags().Float64VarP(&recordSeconds, "seconds", "s", 60, "length of the mix in seconds")
	recordCmd.Flags().Float64Var(&recordFade, "fade", 8, "crossfade length in seconds")
	rootCmd.AddCommand(recordCmd)
}

func decodeFile(ctx context.Context, dec *decoder.Decoder, path string) (*model.Track, error) {
	return dec.Decode(ctx, decoder.Request{
		ID:               decoder.NewRequestID(),
		TrackID:          filepath.Base(path),
		FilePath:         path,
		TargetSampleRate: cfg.SampleRate,
		TargetChannels:   dsp.Channels,
	})
}

func runRecord(ctx context.Context, args []string) error {
	if recordSeconds <= 0 {
		return fmt.Errorf("--seconds must be positive")
	}
	dec, closeCache := newDecoder(cfg)
	defer closeCache()

	tracks := make([]*model.Track, len(args))
	for i, path := range args {
		t, err := decodeFile(ctx, dec, path)
		if err != nil {
			return err
		}
		tracks[i] = t
	}

	frames := cfg.DeviceFrames
	if frames <= 0 || frames > cfg.MaxFrames {
		frames = cfg.MaxFrames
	}
	chunks := recorder.NewChunkPool(cfg.RecordChunks, cfg.MaxFrames*dsp.Channels)
	rec := recorder.NewWorker(recorder.NewWriter(), chunks)
	go rec.Run()
	defer rec.Close()

	eng, err := engine.New(engineConfig(cfg), rec)
	if err != nil {
		return err
	}

	if err := rec.Start(ctx, recordOut, cfg.SampleRate, dsp.Channels); err != nil {
		return err
	}
	if err := eng.Load(engine.DeckA, tracks[0]); err != nil {
		return err
	}
	if err := eng.Play(engine.DeckA); err != nil {
		return err
	}
	if len(tracks) > 1 {
		if err := eng.Load(engine.DeckB, tracks[1]); err != nil {
			return err
		}
	}
	if err := eng.SetRecording(true); err != nil {
		return err
	}

	total := int(recordSeconds * float64(cfg.SampleRate))
	fadeAt := total - int(recordFade*float64(cfg.SampleRate))
	if fadeAt < 0 {
		fadeAt = 0
	}
	faded := len(tracks) < 2
	main := make([]float32, frames*dsp.Channels)

	for done := 0; done < total; {
		if !faded && done >= fadeAt {
			fade := time.Duration(float64(total-done) / float64(cfg.SampleRate) * float64(time.Second))
			if err := eng.Play(engine.DeckB); err != nil {
				return err
			}
			if err := eng.AutoCrossfade(1, fade); err != nil {
				return err
			}
			faded = true
		}
		// Rendering outpaces the disk; wait for a free chunk instead of dropping one.
		for chunks.Available() == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			time.Sleep(time.Millisecond)
		}
		n := frames
		if total-done < n {
			n = total - done
		}
		eng.Process(main[:n*dsp.Channels], nil, nil)
		done += n
		drainSnapshots(eng)
	}

	if err := eng.SetRecording(false); err != nil {
		return err
	}
	written, err := rec.Stop(ctx)
	if err != nil {
		return err
	}

	logger.Info("Offline mix rendered",
		logger.String("path", recordOut),
		logger.Int64("bytes", written),
		logger.Uint64("droppedChunks", eng.DroppedChunks()+rec.Dropped()))
	fmt.Printf("Wrote %s: %.2fs, %d bytes\n", recordOut, recordSeconds, written+recorder.HeaderSize)
	return nil
}

func drainSnapshots(eng *engine.Engine) {
	for {
		select {
		case <-eng.Snapshots():
		default:
			return
		}
	}
}
