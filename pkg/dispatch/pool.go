// Package dispatch runs recognition attempts on a fixed pool of workers.
//
// Every submitted task owns a one-shot completion slot keyed by its id, so
// retrieval is a map lookup and a late result never reaches another caller.
// A caller that times out keeps the slot: the task still runs to completion
// and its result can be retrieved later or discarded explicitly.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/menta2k/plate-analyzer/pkg/client"
	"github.com/menta2k/plate-analyzer/pkg/types"
)

var (
	// ErrResultTimeout is returned when a result did not arrive within the deadline
	ErrResultTimeout = errors.New("result timeout")
	// ErrUnknownTask is returned for ids that were never issued or were already retrieved
	ErrUnknownTask = errors.New("unknown task")
	// ErrQueueFull is returned when the task queue has no free slot
	ErrQueueFull = errors.New("task queue full")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("dispatcher closed")
)

// TaskID identifies one submitted task
type TaskID uint64

// Config holds pool settings
type Config struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
	Logger      *log.Logger
}

// DefaultConfig returns a pool sized to the machine
func DefaultConfig() Config {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	return Config{
		Workers:     workers,
		QueueSize:   256,
		TaskTimeout: 10 * time.Second,
	}
}

// Stats reports pool activity
type Stats struct {
	TasksExecuted int64         `json:"tasks_executed"`
	TotalTime     time.Duration `json:"total_processing_time"`
	AverageTime   time.Duration `json:"average_processing_time"`
	QueueDepth    int           `json:"queue_depth"`
	Pending       int           `json:"pending"`
	Workers       int           `json:"workers"`
}

type task struct {
	id      TaskID
	seq     int
	variant types.Variant
	config  types.RecognitionConfig
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan types.RecognitionResult
}

// Pool is a fixed set of workers draining a shared task queue
type Pool struct {
	engine  client.Engine
	config  Config
	logger  *log.Logger
	queue   chan *task
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[TaskID]*task
	closed  bool

	nextID     atomic.Uint64
	executed   atomic.Int64
	totalNanos atomic.Int64
}

// NewPool starts cfg.Workers workers calling engine
func NewPool(engine client.Engine, cfg Config) *Pool {
	defaults := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		engine:  engine,
		config:  cfg,
		logger:  logger,
		queue:   make(chan *task, cfg.QueueSize),
		baseCtx: ctx,
		stop:    cancel,
		pending: make(map[TaskID]*task),
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}
	return p
}

// Submit queues one attempt and returns its id without waiting for a worker
func (p *Pool) Submit(v types.Variant, rc types.RecognitionConfig) (TaskID, error) {
	return p.submit(v, rc, -1)
}

func (p *Pool) submit(v types.Variant, rc types.RecognitionConfig, seq int) (TaskID, error) {
	id := TaskID(p.nextID.Add(1))
	if seq < 0 {
		seq = int(id)
	}
	ctx, cancel := context.WithCancel(p.baseCtx)
	t := &task{
		id:      id,
		seq:     seq,
		variant: v,
		config:  rc,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan types.RecognitionResult, 1),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		cancel()
		return 0, ErrClosed
	}
	select {
	case p.queue <- t:
		p.pending[id] = t
		return id, nil
	default:
		cancel()
		return 0, ErrQueueFull
	}
}

// Await returns the result of task id. A zero timeout waits until ctx is
// done; a negative timeout only checks whether the result is ready.
// On ErrResultTimeout the task stays pending and can be awaited again.
// A successfully returned result is forgotten by the pool.
func (p *Pool) Await(ctx context.Context, id TaskID, timeout time.Duration) (types.RecognitionResult, error) {
	p.mu.Lock()
	t, ok := p.pending[id]
	p.mu.Unlock()
	if !ok {
		return types.RecognitionResult{}, ErrUnknownTask
	}

	if timeout < 0 {
		select {
		case r := <-t.done:
			p.forget(id)
			return r, nil
		default:
			return types.RecognitionResult{}, ErrResultTimeout
		}
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-t.done:
		p.forget(id)
		return r, nil
	case <-expired:
		return types.RecognitionResult{}, ErrResultTimeout
	case <-ctx.Done():
		return types.RecognitionResult{}, ctx.Err()
	}
}

// Discard drops the given tasks. Queued tasks are skipped by the workers,
// running ones see their context canceled and their result is dropped.
func (p *Pool) Discard(ids ...TaskID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		if t, ok := p.pending[id]; ok {
			t.cancel()
			delete(p.pending, id)
		}
	}
}

func (p *Pool) forget(id TaskID) {
	p.mu.Lock()
	if t, ok := p.pending[id]; ok {
		t.cancel()
		delete(p.pending, id)
	}
	p.mu.Unlock()
}

// Stats returns a snapshot of pool activity
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	pending := len(p.pending)
	p.mu.Unlock()

	executed := p.executed.Load()
	total := time.Duration(p.totalNanos.Load())
	var avg time.Duration
	if executed > 0 {
		avg = total / time.Duration(executed)
	}
	return Stats{
		TasksExecuted: executed,
		TotalTime:     total,
		AverageTime:   avg,
		QueueDepth:    len(p.queue),
		Pending:       pending,
		Workers:       p.config.Workers,
	}
}

// Close stops accepting tasks, cancels outstanding work and waits for the workers
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.stop()
	p.wg.Wait()
	return nil
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.queue {
		r := p.run(t)
		// done has capacity one and a single writer
		t.done <- r
	}
}

func (p *Pool) run(t *task) types.RecognitionResult {
	result := types.RecognitionResult{
		Source: SourceLabel(t.variant.Label, t.config.Mode),
		Seq:    t.seq,
	}
	if err := t.ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}

	start := time.Now()
	out, err := p.recognize(t)
	result.Latency = time.Since(start)
	p.executed.Add(1)
	p.totalNanos.Add(int64(result.Latency))

	if err != nil {
		p.logger.Printf("[DISPATCH] %s failed on %s: %v", p.engine.Name(), result.Source, err)
		result.Error = err.Error()
		return result
	}
	result.Text = out.Text
	result.Confidence = MeanConfidence(out.Confidences)
	return result
}

// recognize calls the engine, turning a panic into an error
func (p *Pool) recognize(t *task) (out types.EngineOutput, err error) {
	ctx := t.ctx
	if p.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.TaskTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return p.engine.Recognize(ctx, t.variant.Pixels, t.config)
}

// SourceLabel names one attempt after its variant and layout mode
func SourceLabel(variant string, mode int) string {
	return fmt.Sprintf("%s_psm%d", variant, mode)
}

// MeanConfidence averages per-character confidences, clamped to [0,1]
func MeanConfidence(confidences []float64) float64 {
	if len(confidences) == 0 {
		return 0
	}
	var sum float64
	for _, c := range confidences {
		sum += c
	}
	mean := sum / float64(len(confidences))
	if mean < 0 {
		return 0
	}
	if mean > 1 {
		return 1
	}
	return mean
}
