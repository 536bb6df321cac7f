package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"media-compressor/internal/logging"
	"media-compressor/internal/metrics"
)

// Worker is the per-goroutine context handed to hooks and tasks.
type Worker struct {
	// Name is "<pool name> <n>", n starting at 1.
	Name string
	// Log tags records with Name.
	Log *logging.Logger
	// Ctx is cancelled when the pool is torn down after its join barrier.
	Ctx context.Context
	// State holds whatever the initializer stored for this worker.
	State any
}

// TaskFunc processes one input. Returning ok=false drops the result.
type TaskFunc[I, R any] func(w *Worker, taskID string, input I) (result R, ok bool, err error)

// Options configures a pool.
type Options struct {
	// Name prefixes worker names, e.g. "IndexingWorker".
	Name string
	// MetricLabel labels pool metrics, e.g. "indexing".
	MetricLabel string
	// Workers is the number of workers; values below 1 mean 1.
	Workers int
	// QueueSize bounds the task queue; 0 means twice the worker count.
	QueueSize int
	// Stop is checked before every task. May be nil.
	Stop *StopFlag
	// Init runs once per worker before its first task. An error stops the
	// worker from taking tasks; queued tasks are drained by the others.
	Init func(w *Worker) error
	// Term runs once per worker after the queue is closed.
	Term func(w *Worker)
}

type task[I any] struct {
	id    string
	input I
}

// Pool is a one-shot bounded worker pool: Submit once, then Wait.
type Pool[I, R any] struct {
	opts   Options
	fn     TaskFunc[I, R]
	log    *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc

	queue     chan task[I]
	wg        conc.WaitGroup
	feeder    sync.WaitGroup
	submitted sync.Once

	mu       sync.Mutex
	results  []R
	fatalErr error
	ready    int
}

// New starts the pool's workers. They block on the queue until Submit.
func New[I, R any](ctx context.Context, opts Options, fn TaskFunc[I, R]) *Pool[I, R] {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = opts.Workers * 2
	}
	if opts.MetricLabel == "" {
		opts.MetricLabel = opts.Name
	}

	poolCtx, cancel := context.WithCancel(ctx)
	p := &Pool[I, R]{
		opts:   opts,
		fn:     fn,
		log:    logging.WithSource(opts.Name),
		ctx:    poolCtx,
		cancel: cancel,
		queue:  make(chan task[I], opts.QueueSize),
	}

	metrics.WorkerPoolWorkers.WithLabelValues(opts.MetricLabel).Set(float64(opts.Workers))
	for n := 1; n <= opts.Workers; n++ {
		w := &Worker{
			Name: fmt.Sprintf("%s %d", opts.Name, n),
			Ctx:  poolCtx,
		}
		w.Log = logging.WithSource(w.Name)
		p.wg.Go(func() { p.run(w) })
	}
	p.log.Debug("Started %d workers", opts.Workers)
	return p
}

// Submit enqueues all inputs with "k/total" ids and closes the queue.
// It returns immediately; a feeder goroutine respects the queue bound.
// Only the first call has an effect.
func (p *Pool[I, R]) Submit(inputs []I) {
	p.submitted.Do(func() {
		total := len(inputs)
		metrics.WorkerPoolQueueDepth.WithLabelValues(p.opts.MetricLabel).Add(float64(total))

		p.feeder.Add(1)
		go func() {
			defer p.feeder.Done()
			defer close(p.queue)
			for k, input := range inputs {
				p.queue <- task[I]{id: fmt.Sprintf("%d/%d", k+1, total), input: input}
			}
		}()
	})
}

// Wait blocks until every submitted task is acknowledged and all workers
// have exited, then cancels the pool context. It returns the collected
// results and the first fatal task error, if any.
func (p *Pool[I, R]) Wait() ([]R, error) {
	p.Submit(nil)
	p.feeder.Wait()
	p.wg.Wait()
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.log.Info("Pool tasks completed (%d results)", len(p.results))
	return p.results, p.fatalErr
}

// SubmitAndWait is Submit followed by Wait.
func (p *Pool[I, R]) SubmitAndWait(inputs []I) ([]R, error) {
	p.Submit(inputs)
	return p.Wait()
}

func (p *Pool[I, R]) run(w *Worker) {
	initialized := true
	if p.opts.Init != nil {
		if err := p.opts.Init(w); err != nil {
			w.Log.Error("Worker initialization failed: %v", err)
			initialized = false
			p.recordFatal(fmt.Errorf("%s initialization: %w", w.Name, err))
		}
	}

	w.Log.Debug("Starting task execution loop")
	for t := range p.queue {
		p.handle(w, t, initialized)
	}
	w.Log.Debug("Exited task execution loop")

	if initialized && p.opts.Term != nil {
		p.opts.Term(w)
	}
}

func (p *Pool[I, R]) handle(w *Worker, t task[I], initialized bool) {
	label := p.opts.MetricLabel
	defer metrics.WorkerPoolQueueDepth.WithLabelValues(label).Dec()

	if !initialized || p.opts.Stop.IsSet() {
		metrics.WorkerPoolTasksTotal.WithLabelValues(label, "skipped").Inc()
		return
	}

	var (
		result R
		ok     bool
		err    error
		pc     panics.Catcher
	)
	pc.Try(func() {
		result, ok, err = p.fn(w, t.id, t.input)
	})

	if rec := pc.Recovered(); rec != nil {
		w.Log.Error("Uncaught panic while executing task %s: %v\n%s", t.id, rec.Value, rec.Stack)
		metrics.WorkerPoolTasksTotal.WithLabelValues(label, "panicked").Inc()
		return
	}

	if err != nil {
		w.Log.Error("Task %s failed: %v", t.id, err)
		metrics.WorkerPoolTasksTotal.WithLabelValues(label, "failed").Inc()
		if IsFatal(err) {
			p.recordFatal(err)
		}
		return
	}

	metrics.WorkerPoolTasksTotal.WithLabelValues(label, "done").Inc()
	if ok {
		p.mu.Lock()
		p.results = append(p.results, result)
		p.mu.Unlock()
	}
}

func (p *Pool[I, R]) recordFatal(err error) {
	p.mu.Lock()
	if p.fatalErr == nil {
		p.fatalErr = err
	}
	p.mu.Unlock()

	if p.opts.Stop != nil {
		p.opts.Stop.Set()
	}
}

// fatal is implemented by errors that must abort the whole run.
type fatal interface {
	Fatal() bool
}

// IsFatal reports whether err, or any error it wraps, is marked fatal.
func IsFatal(err error) bool {
	var f fatal
	return errors.As(err, &f) && f.Fatal()
}
