package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"djmix/cache"
	"djmix/config"
	"djmix/core/decoder"
	"djmix/core/dsp"
	"djmix/core/engine"
	"djmix/core/hub"
	"djmix/core/library"
	"djmix/core/output"
	"djmix/core/output/device"
	"djmix/core/recorder"
	"djmix/db"
	"djmix/logger"
	"djmix/metrics"
	"djmix/model"
	"djmix/repository"
	"djmix/server"
	"djmix/storage"

	"github.com/spf13/cobra"
)

const decodeQueue = 16

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mixing engine and its control API",
	Long: `Starts the audio engine on the output device together with the decoder
pool, recorder, state publisher, websocket hub, HTTP control API and the
music folder watcher.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func engineConfig(c *config.Config) engine.Config {
	ec := engine.DefaultConfig()
	ec.SampleRate = c.SampleRate
	ec.MaxFrames = c.MaxFrames
	ec.LowCutoffHz = c.LowCutoffHz
	ec.HighCutoffHz = c.HighCutoffHz
	ec.TalkoverDuck = c.TalkoverDuck
	ec.PeakHoldTau = c.PeakHoldTau
	ec.CommandQueue = c.CommandQueue
	return ec
}

// newDecoder builds a decoder, with the Redis analysis cache when configured.
// The returned func releases the cache connection.
func newDecoder(c *config.Config) (*decoder.Decoder, func()) {
	opts := decoder.Options{
		FFmpegPath:        c.FFmpegPath,
		WaveformPointsSec: c.WaveformPointsSec,
	}
	closeFn := func() {}
	if c.RedisEnabled() {
		if err := cache.ConnectRedis(c); err != nil {
			logger.Warn("Analysis cache unavailable, continuing without it", logger.ErrorField(err))
		} else {
			opts.Cache = cache.NewAnalysisCache(cache.RedisClient, c.AnalysisTTL)
			closeFn = func() { cache.CloseRedis() }
			logger.Info("Analysis cache enabled", logger.String("host", c.RedisHost))
		}
	}
	return decoder.New(opts), closeFn
}

func openOutput(c *config.Config, src output.Source) output.Device {
	ocfg := output.Config{SampleRate: c.SampleRate, MaxFrames: c.MaxFrames, DeviceFrames: c.DeviceFrames}
	if c.AudioOutput == "null" {
		return output.OpenNull(src, ocfg)
	}
	dev, err := device.Open(src, ocfg)
	if err != nil {
		logger.Warn("Audio device unavailable, using null output", logger.ErrorField(err))
		return output.OpenNull(src, ocfg)
	}
	logger.Info("Audio device opened", logger.Int("sampleRate", c.SampleRate))
	return dev
}

func runServe(ctx context.Context, c *config.Config) error {
	chunks := recorder.NewChunkPool(c.RecordChunks, c.MaxFrames*dsp.Channels)
	rec := recorder.NewWorker(recorder.NewWriter(), chunks)
	rec.Run()
	defer rec.Close()

	eng, err := engine.New(engineConfig(c), rec)
	if err != nil {
		return err
	}
	if err := metrics.RegisterEngine(eng); err != nil {
		logger.Warn("Engine metrics not registered", logger.ErrorField(err))
	}

	dec, closeCache := newDecoder(c)
	defer closeCache()
	pool := decoder.NewPool(dec, c.DecodeWorkers, decodeQueue)
	pool.Start()
	defer pool.Close()

	h := hub.New()
	go h.Run()
	defer h.Stop()

	pub := engine.NewPublisher(eng.Snapshots(), h, c.LevelInterval, c.StateInterval)
	h.SetWelcome(func() (string, interface{}) { return engine.MsgState, pub.State() })

	orch := engine.NewOrchestrator(eng, pool, rec, h, engine.OrchestratorConfig{
		WaveformChunkSize: c.WaveformChunkSize,
		RecordingDir:      c.RecordingDir,
		ArchiveOnStop:     c.ArchiveOnStop,
	})
	srv := server.New(c, orch, pub, h)

	if c.MinioEnabled() {
		if archive, err := storage.Connect(ctx, c); err != nil {
			logger.Warn("Recording archive unavailable", logger.ErrorField(err))
		} else {
			orch.SetArchive(archive)
		}
	}
	if c.DBEnabled() {
		if gdb, err := db.ConnectGormDB(c); err != nil {
			logger.Warn("Recording history unavailable", logger.ErrorField(err))
		} else {
			defer db.CloseGormDB()
			repo := repository.NewGormRecordingRepository(gdb)
			orch.SetStore(repo)
			srv.SetHistory(repo)
		}
	}

	go pub.Run(ctx)
	go orch.Run(ctx)

	out := openOutput(c, eng)
	defer out.Close()

	watcher := library.NewWatcher(c.MusicDir, dec, library.Options{
		SampleRate:   c.SampleRate,
		Channels:     dsp.Channels,
		Workers:      1,
		ScanExisting: true,
	})
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("Library watcher disabled", logger.ErrorField(err))
	} else {
		defer watcher.Close()
	}

	logger.Info("djmix ready",
		logger.String("http", c.HTTPAddr),
		logger.Int("sampleRate", c.SampleRate),
		logger.Int("maxFrames", c.MaxFrames))

	err = srv.ListenAndServe(ctx)

	// A recording still running at shutdown is finalized rather than lost.
	if orch.RecordingStatus().State == model.RecordingActive {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if s, stopErr := orch.StopRecording(stopCtx); stopErr != nil {
			logger.Error("Failed to finalize recording", logger.ErrorField(stopErr))
		} else if s != nil {
			logger.Info("Recording finalized", logger.String("path", s.Path))
		}
		cancel()
	}
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
