package recorder

import (
	"context"
	"sync"
	"sync/atomic"

	"djmix/logger"
	"djmix/model"
)

// Chunk is a pre-allocated block of interleaved samples handed from the audio
// thread to the worker. Ownership moves with the pointer.
type Chunk struct {
	Samples []float32
	Len     int // valid samples in Samples
}

// ChunkPool is a fixed free list of chunks. Get and Put never block.
type ChunkPool struct {
	free chan *Chunk
}

// NewChunkPool allocates count chunks of size samples each.
func NewChunkPool(count, size int) *ChunkPool {
	p := &ChunkPool{free: make(chan *Chunk, count)}
	for i := 0; i < count; i++ {
		p.free <- &Chunk{Samples: make([]float32, size)}
	}
	return p
}

// Get returns a free chunk or nil when the pool is exhausted.
func (p *ChunkPool) Get() *Chunk {
	select {
	case c := <-p.free:
		return c
	default:
		return nil
	}
}

// Put returns c to the pool.
func (p *ChunkPool) Put(c *Chunk) {
	if c == nil {
		return
	}
	c.Len = 0
	select {
	case p.free <- c:
	default:
	}
}

// Available reports how many chunks are free.
func (p *ChunkPool) Available() int {
	return len(p.free)
}

type controlKind int

const (
	ctrlStart controlKind = iota
	ctrlStop
	ctrlTerminate
)

type control struct {
	kind       controlKind
	path       string
	sampleRate int
	channels   int
	reply      chan Reply
}

// Reply answers start and stop requests.
type Reply struct {
	OK           bool
	BytesWritten int64
	Err          error
}

// StatusFunc receives the writer status after every transition.
type StatusFunc func(model.RecordingStatus)

// Worker owns a Writer and serves it from a single goroutine.
type Worker struct {
	writer  *Writer
	pool    *ChunkPool
	chunks  chan *Chunk
	control chan control

	mu       sync.RWMutex
	onStatus StatusFunc

	dropped atomic.Uint64
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewWorker creates a worker that writes through w and recycles chunks into pool.
func NewWorker(w *Writer, pool *ChunkPool) *Worker {
	return &Worker{
		writer:  w,
		pool:    pool,
		chunks:  make(chan *Chunk, cap(pool.free)),
		control: make(chan control, 4),
		stopCh:  make(chan struct{}),
	}
}

// Acquire takes a free chunk for the audio thread, or nil when none is left.
func (wk *Worker) Acquire() *Chunk { return wk.pool.Get() }

// OnStatus registers fn to be called after every state change.
func (wk *Worker) OnStatus(fn StatusFunc) {
	wk.mu.Lock()
	wk.onStatus = fn
	wk.mu.Unlock()
}

// Run starts the worker goroutine.
func (wk *Worker) Run() {
	wk.wg.Add(1)
	go wk.loop()
}

// Close terminates any recording and stops the goroutine.
func (wk *Worker) Close() {
	select {
	case <-wk.stopCh:
		return
	default:
	}
	close(wk.stopCh)
	wk.wg.Wait()
}

// Submit hands a filled chunk to the worker without blocking. On a full queue the
// chunk goes back to the pool and false is returned.
func (wk *Worker) Submit(c *Chunk) bool {
	select {
	case wk.chunks <- c:
		return true
	default:
		wk.pool.Put(c)
		wk.dropped.Add(1)
		return false
	}
}

// Dropped returns how many chunks were refused by Submit.
func (wk *Worker) Dropped() uint64 {
	return wk.dropped.Load()
}

// Start asks the worker to begin recording to path.
func (wk *Worker) Start(ctx context.Context, path string, sampleRate, channels int) error {
	r, err := wk.request(ctx, control{kind: ctrlStart, path: path, sampleRate: sampleRate, channels: channels})
	if err != nil {
		return err
	}
	return r.Err
}

// Stop drains queued chunks, finalizes the file and returns the bytes written.
func (wk *Worker) Stop(ctx context.Context) (int64, error) {
	r, err := wk.request(ctx, control{kind: ctrlStop})
	if err != nil {
		return 0, err
	}
	return r.BytesWritten, r.Err
}

// Terminate abandons the current recording. It does not wait for a reply.
func (wk *Worker) Terminate() {
	select {
	case wk.control <- control{kind: ctrlTerminate}:
	case <-wk.stopCh:
	}
}

// Status returns the writer status.
func (wk *Worker) Status() model.RecordingStatus {
	return wk.writer.Status()
}

func (wk *Worker) request(ctx context.Context, c control) (Reply, error) {
	c.reply = make(chan Reply, 1)
	select {
	case wk.control <- c:
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-wk.stopCh:
		return Reply{}, context.Canceled
	}
	select {
	case r := <-c.reply:
		return r, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

func (wk *Worker) loop() {
	defer wk.wg.Done()
	for {
		select {
		case c := <-wk.chunks:
			wk.write(c)
		case c := <-wk.control:
			wk.handle(c)
		case <-wk.stopCh:
			wk.drain()
			wk.writer.Terminate()
			return
		}
	}
}

func (wk *Worker) write(c *Chunk) {
	before := wk.writer.Status().State
	if err := wk.writer.Write(c.Samples[:c.Len]); err != nil {
		logger.Error("Recording write failed", logger.ErrorField(err))
	}
	wk.pool.Put(c)
	if before != model.RecordingError && wk.writer.Status().State == model.RecordingError {
		wk.notify()
	}
}

// drain writes every chunk already queued so stop never loses audio that was
// submitted before it.
func (wk *Worker) drain() {
	for {
		select {
		case c := <-wk.chunks:
			wk.write(c)
		default:
			return
		}
	}
}

func (wk *Worker) handle(c control) {
	wk.drain()

	var reply Reply
	switch c.kind {
	case ctrlStart:
		err := wk.writer.Start(c.path, c.sampleRate, c.channels)
		if err != nil {
			logger.Warn("Recording start failed", logger.String("path", c.path), logger.ErrorField(err))
		} else {
			logger.Info("Recording started", logger.String("path", c.path))
		}
		reply = Reply{OK: err == nil, Err: err}
	case ctrlStop:
		n, err := wk.writer.Stop()
		if err != nil {
			logger.Warn("Recording stop failed", logger.ErrorField(err))
		} else if n > 0 {
			logger.Info("Recording stopped", logger.Int64("bytes", n))
		}
		reply = Reply{OK: err == nil, BytesWritten: n, Err: err}
	case ctrlTerminate:
		wk.writer.Terminate()
	}

	wk.notify()
	if c.reply != nil {
		c.reply <- reply
	}
}

func (wk *Worker) notify() {
	wk.mu.RLock()
	fn := wk.onStatus
	wk.mu.RUnlock()
	if fn != nil {
		fn(wk.writer.Status())
	}
}
