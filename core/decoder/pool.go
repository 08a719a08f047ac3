package decoder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"djmix/logger"
	"djmix/metrics"
	"djmix/model"
)

// ErrQueueFull is returned by Submit when the request queue is at capacity.
var ErrQueueFull = errors.New("decode queue full")

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("decode pool closed")

// Response is the outcome of one Request. Exactly one of Track and Err is set.
// Track's buffers are owned by the receiver.
type Response struct {
	Request Request
	Track   *model.Track
	Err     *DecodeError
	Elapsed time.Duration
}

// Pool runs decodes on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	decoder     *Decoder
	requests    chan Request
	results     chan Response
	workerCount int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewPool creates a pool of workers goroutines with room for queue pending
// requests. Call Start before submitting.
func NewPool(dec *Decoder, workers, queue int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 1 {
		queue = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		decoder:     dec,
		requests:    make(chan Request, queue),
		results:     make(chan Response, queue),
		workerCount: workers,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// NewRequestID returns a fresh request id.
func NewRequestID() string {
	return uuid.NewString()
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Submit enqueues req without blocking. An empty ID is filled in.
func (p *Pool) Submit(req Request) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return "", ErrPoolClosed
	}
	if req.ID == "" {
		req.ID = NewRequestID()
	}
	select {
	case p.requests <- req:
		return req.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Results delivers one Response per accepted Request. It is closed by Close.
func (p *Pool) Results() <-chan Response {
	return p.results
}

// Close cancels in-flight decodes, waits for the workers and closes Results.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.requests)
		p.mu.Unlock()

		p.cancel()
		p.wg.Wait()
		close(p.results)
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for req := range p.requests {
		start := time.Now()
		track, err := p.decoder.Decode(p.ctx, req)
		resp := Response{Request: req, Track: track, Elapsed: time.Since(start)}

		if err != nil {
			var de *DecodeError
			if !errors.As(err, &de) {
				de = &DecodeError{RequestID: req.ID, TrackID: req.TrackID, Err: err}
			}
			resp.Err = de
			resp.Track = nil
			metrics.DecodeJobs.WithLabelValues("failed").Inc()
			logger.Warn("Decode failed",
				logger.String("requestId", req.ID),
				logger.String("trackId", req.TrackID),
				logger.String("path", req.FilePath),
				logger.ErrorField(err))
		} else {
			metrics.DecodeJobs.WithLabelValues("ok").Inc()
			metrics.DecodeDuration.Observe(resp.Elapsed.Seconds())
			logger.Info("Decode finished",
				logger.String("requestId", req.ID),
				logger.String("trackId", req.TrackID),
				logger.Float64("duration", track.Duration),
				logger.Duration("elapsed", resp.Elapsed))
		}

		select {
		case p.results <- resp:
		case <-p.ctx.Done():
			return
		}
	}
}
