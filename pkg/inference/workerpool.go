package inference

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/evidence"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/logging"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/network"
)

const (
	// DefaultTaskTimeout bounds a single inference task.
	DefaultTaskTimeout = 30 * time.Second
	// MinTaskTimeout is the smallest accepted task timeout.
	MinTaskTimeout = 1 * time.Second
)

// ErrPoolStopped is returned by Submit after Stop has begun.
var ErrPoolStopped = errors.New("inference pool stopped")

// ValidateTaskTimeout clamps a requested timeout to the accepted range.
func ValidateTaskTimeout(timeout time.Duration) time.Duration {
	if timeout < MinTaskTimeout {
		return DefaultTaskTimeout
	}
	return timeout
}

// Task is one inference request queued on the pool.
type Task struct {
	// ID correlates the result back to the submitter.
	ID string
	// Network is the compiled network to query; networks are immutable so
	// tasks may share one.
	Network *network.CompiledNetwork
	// Evidence is the raw observation set for this request.
	Evidence evidence.Assignment
	// Query lists the nodes to compute posteriors for.
	Query []string
}

// TaskResult carries one finished task off the pool.
type TaskResult struct {
	TaskID   string
	Result   *Result
	Err      error
	TimedOut bool
	Duration time.Duration
}

// Pool runs inference tasks across a fixed set of worker goroutines.
// Inference is CPU-bound and read-only, so workers share one Executor and
// need no coordination beyond the queue.
type Pool struct {
	executor    *Executor
	logger      logging.Logger
	workers     int
	taskQueue   chan Task
	results     chan TaskResult
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskTimeout time.Duration

	// mu serializes Submit against Stop so the queue is never written
	// after it closes.
	mu      sync.RWMutex
	stopped bool

	tasksProcessed int64
	tasksActive    int64
	tasksTimedOut  int64
}

// NewPool creates a pool with the default task timeout. A non-positive
// worker count uses one worker per CPU.
func NewPool(executor *Executor, workers int, logger logging.Logger) *Pool {
	return NewPoolWithTimeout(executor, workers, DefaultTaskTimeout, logger)
}

// NewPoolWithTimeout creates a pool with a custom per-task timeout.
func NewPoolWithTimeout(executor *Executor, workers int, taskTimeout time.Duration, logger logging.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = logging.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		executor:    executor,
		logger:      logger,
		workers:     workers,
		taskQueue:   make(chan Task, workers*10),
		results:     make(chan TaskResult, workers*10),
		ctx:         ctx,
		cancel:      cancel,
		taskTimeout: ValidateTaskTimeout(taskTimeout),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}

			atomic.AddInt64(&p.tasksActive, 1)
			startTime := time.Now()
			result, err, timedOut := p.runTask(task)
			duration := time.Since(startTime)

			atomic.AddInt64(&p.tasksActive, -1)
			atomic.AddInt64(&p.tasksProcessed, 1)
			if timedOut {
				atomic.AddInt64(&p.tasksTimedOut, 1)
			}

			select {
			case p.results <- TaskResult{
				TaskID:   task.ID,
				Result:   result,
				Err:      err,
				TimedOut: timedOut,
				Duration: duration,
			}:
			case <-p.ctx.Done():
				return
			}

		case <-p.ctx.Done():
			return
		}
	}
}

// runTask executes a task with a deadline and panic recovery.
// Returns (result, error, timedOut).
func (p *Pool) runTask(task Task) (*Result, error, bool) {
	ctx, cancel := context.WithTimeout(p.ctx, p.taskTimeout)
	defer cancel()

	type taskResult struct {
		result *Result
		err    error
	}
	// Buffered so the goroutine never blocks on send after we move on.
	resultChan := make(chan taskResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("panic in inference task",
					logging.String("task_id", task.ID),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())))
				resultChan <- taskResult{nil, fmt.Errorf("task %s panicked: %v", task.ID, r)}
			}
		}()

		res, err := evidence.Resolve(task.Network, task.Evidence)
		if err != nil {
			resultChan <- taskResult{nil, err}
			return
		}
		result, err := p.executor.Infer(ctx, task.Network, res, task.Query)
		resultChan <- taskResult{result, err}
	}()

	select {
	case res := <-resultChan:
		var timeoutErr *TimeoutError
		if errors.As(res.err, &timeoutErr) {
			return nil, res.err, true
		}
		return res.result, res.err, false
	case <-p.ctx.Done():
		return nil, p.ctx.Err(), false
	}
}

// Submit queues a task, blocking until there is room or the pool stops.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.taskQueue <- task:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Results returns the results channel.
func (p *Pool) Results() <-chan TaskResult {
	return p.results
}

// Stop drains the pool: no further submissions are accepted, in-flight
// tasks run to completion, then the results channel closes.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.taskQueue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	close(p.results)
}

// PoolStats is a point-in-time snapshot of pool counters.
type PoolStats struct {
	Processed   int64
	Active      int64
	TimedOut    int64
	TaskTimeout time.Duration
	Workers     int
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Processed:   atomic.LoadInt64(&p.tasksProcessed),
		Active:      atomic.LoadInt64(&p.tasksActive),
		TimedOut:    atomic.LoadInt64(&p.tasksTimedOut),
		TaskTimeout: p.taskTimeout,
		Workers:     p.workers,
	}
}
