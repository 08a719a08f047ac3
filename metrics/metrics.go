// Package metrics exposes engine and pipeline counters to Prometheus.
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DecodeJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "djmix_decode_jobs_total",
			Help: "Decode requests by outcome",
		},
		[]string{"status"},
	)
	DecodeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "djmix_decode_duration_seconds",
			Help:    "Time spent decoding and analysing a track",
			Buckets: prometheus.DefBuckets,
		},
	)
	AnalysisCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "djmix_analysis_cache_total",
			Help: "Analysis cache lookups by result",
		},
		[]string{"result"},
	)
	RecordedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "djmix_recorded_bytes_total",
			Help: "PCM bytes written to finished recordings",
		},
	)
	HubClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "djmix_ws_clients",
			Help: "Connected websocket clients",
		},
	)
)

func init() {
	prometheus.MustRegister(DecodeJobs, DecodeDuration, AnalysisCache, RecordedBytes, HubClients)
}

// EngineStats is implemented by the audio engine. All values are monotonic.
type EngineStats interface {
	Ticks() uint64
	Faults() uint64
	DroppedChunks() uint64
	DroppedSnapshots() uint64
}

var engineOnce sync.Once

// RegisterEngine exports the engine's counters. Only the first engine is exported.
func RegisterEngine(src EngineStats) error {
	var err error
	engineOnce.Do(func() {
		collectors := []prometheus.Collector{
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "djmix_engine_ticks_total",
				Help: "Audio callbacks processed",
			}, func() float64 { return float64(src.Ticks()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "djmix_engine_faults_total",
				Help: "Audio callbacks that recovered from a fault and output silence",
			}, func() float64 { return float64(src.Faults()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "djmix_recording_dropped_chunks_total",
				Help: "Recording chunks dropped because the pool or queue was exhausted",
			}, func() float64 { return float64(src.DroppedChunks()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "djmix_state_dropped_snapshots_total",
				Help: "State snapshots dropped because the publisher lagged",
			}, func() float64 { return float64(src.DroppedSnapshots()) }),
		}
		for _, c := range collectors {
			if regErr := prometheus.Register(c); regErr != nil {
				var already prometheus.AlreadyRegisteredError
				if !errors.As(regErr, &already) {
					err = regErr
				}
			}
		}
	})
	return err
}
