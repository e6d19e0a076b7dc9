package backend

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/pctx"
	"github.com/vizierdb/vizier/src/internal/processor"
	"github.com/vizierdb/vizier/src/internal/viztrail"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	tasksInFlightMetric = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vizier",
		Subsystem: "backend",
		Name:      "tasks_in_flight",
		Help:      "Number of asynchronous tasks submitted and not yet completed",
	})
	queuedSecondsMetric = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vizier",
		Subsystem: "backend",
		Name:      "queued_seconds",
		Help:      "Time tasks spend waiting for a free worker",
		Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30, 60},
	})
	tasksCompletedMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vizier",
		Subsystem: "backend",
		Name:      "tasks_completed_total",
		Help:      "Number of asynchronous tasks completed, by outcome",
	}, []string{"outcome"})
)

const workerSemCost = 1

var _ Backend = (*Pool)(nil)

// Pool runs tasks on at most a fixed number of goroutines at a time.
type Pool struct {
	registry  *processor.Registry
	whitelist Whitelist
	sem       *semaphore.Weighted
	ctx       context.Context
	cancel    context.CancelCauseFunc
	wg        sync.WaitGroup

	mu     sync.Mutex
	tasks  map[string]context.CancelCauseFunc
	closed bool
}

// NewPool returns a pool of workers goroutines.  Tasks run in children of ctx.  Commands in
// whitelist may also be run synchronously with Execute.
func NewPool(ctx context.Context, registry *processor.Registry, workers int, whitelist Whitelist) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancelCause(pctx.Child(ctx, "pool"))
	return &Pool{
		registry:  registry,
		whitelist: whitelist,
		sem:       semaphore.NewWeighted(int64(workers)),
		ctx:       ctx,
		cancel:    cancel,
		tasks:     make(map[string]context.CancelCauseFunc),
	}
}

// CanExecute implements Backend.
func (p *Pool) CanExecute(cmd *viztrail.Command) bool {
	return p.whitelist.Allows(cmd)
}

// Execute implements Backend.  It does not take a worker slot.
func (p *Pool) Execute(ctx context.Context, task Task) processor.Result {
	return p.registry.Execute(ctx, task.Command, task.Context)
}

// ExecuteAsync implements Backend.  The task keeps the values of ctx but is canceled only by
// CancelTask or Close.
func (p *Pool) ExecuteAsync(ctx context.Context, task Task, ctl Controller) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.tasks[task.ID]; ok {
		return errors.Errorf("task %s is already running", task.ID)
	}
	taskCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	taskCtx = pctx.Child(taskCtx, "task", pctx.WithFields(zap.String("task", task.ID)))
	stop := context.AfterFunc(p.ctx, func() { cancel(context.Cause(p.ctx)) })
	p.tasks[task.ID] = cancel
	tasksInFlightMetric.Inc()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer tasksInFlightMetric.Dec()
		c := p.run(taskCtx, task)
		p.mu.Lock()
		delete(p.tasks, task.ID)
		p.mu.Unlock()
		stop()
		cancel(nil)
		ctl.TaskFinished(c)
	}()
	return nil
}

func (p *Pool) run(ctx context.Context, task Task) TaskCompletion {
	start := time.Now()
	if err := p.sem.Acquire(ctx, workerSemCost); err != nil {
		log.Debug(ctx, "task canceled while queued", zap.Error(context.Cause(ctx)))
		tasksCompletedMetric.WithLabelValues("canceled").Inc()
		return TaskCompletion{TaskID: task.ID, Canceled: true}
	}
	queuedSecondsMetric.Observe(time.Since(start).Seconds())
	defer p.sem.Release(workerSemCost)
	res := p.registry.Execute(ctx, task.Command, task.Context)
	if ctx.Err() != nil {
		tasksCompletedMetric.WithLabelValues("canceled").Inc()
		return TaskCompletion{TaskID: task.ID, Canceled: true}
	}
	switch res.(type) {
	case *processor.Success:
		tasksCompletedMetric.WithLabelValues("success").Inc()
	default:
		tasksCompletedMetric.WithLabelValues("failure").Inc()
	}
	return TaskCompletion{TaskID: task.ID, Result: res}
}

// CancelTask implements Backend.  The task's completion is still delivered, marked canceled.
func (p *Pool) CancelTask(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel, ok := p.tasks[id]
	if ok {
		cancel(ErrTaskCanceled)
	}
	return ok
}

// Close implements Backend.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel(ErrClosed)
	p.wg.Wait()
	return nil
}
