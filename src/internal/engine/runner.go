package engine

import (
	"context"
	"sync"
	"time"

	"github.com/vizierdb/vizier/src/internal/backend"
	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/pctx"
	"github.com/vizierdb/vizier/src/internal/processor"
	"github.com/vizierdb/vizier/src/internal/project"
	"github.com/vizierdb/vizier/src/internal/viztrail"
	"go.uber.org/zap"
)

type message interface {
	isMessage()
}

// kickMsg asks the runner to execute HEAD.  reply is closed once the runner is idle or waiting
// for an asynchronous task.
type kickMsg struct {
	reply chan struct{}
}

// cancelMsg cancels the active modules of HEAD.  HEAD is sent on reply.
type cancelMsg struct {
	reply chan *viztrail.Workflow
}

// waitMsg closes reply once HEAD is no longer active.
type waitMsg struct {
	reply chan struct{}
}

func (kickMsg) isMessage()   {}
func (cancelMsg) isMessage() {}
func (waitMsg) isMessage()   {}

// runner executes the HEAD workflow of one branch.  Every field below done is owned by the loop
// goroutine.
type runner struct {
	e       *Engine
	project *project.Project
	branch  *viztrail.Branch
	ctx     context.Context
	stop    context.CancelFunc
	inbox   chan message

	// Task completions queue here, since a backend may finish a task on the loop goroutine
	// itself.  completed is signaled when the queue is not empty.
	completionsMu sync.Mutex
	completions   []backend.TaskCompletion
	completed     chan struct{}

	done chan struct{}

	inflight       string
	inflightModule *viztrail.Module
	waiters        []chan struct{}
}

var _ backend.Controller = (*runner)(nil)

func newRunner(e *Engine, p *project.Project, b *viztrail.Branch) *runner {
	ctx, stop := pctx.WithCancel(pctx.Child(e.ctx, "runner", pctx.WithFields(zap.String("project", p.ID), zap.String("branch", b.ID))))
	return &runner{
		e:         e,
		project:   p,
		branch:    b,
		ctx:       ctx,
		stop:      stop,
		inbox:     make(chan message),
		completed: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

func (r *runner) send(ctx context.Context, msg message) error {
	select {
	case r.inbox <- msg:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return errors.EnsureStack(context.Cause(ctx))
	}
}

// TaskFinished implements backend.Controller.  It never blocks.  Completions that arrive after
// the runner stopped are never read.
func (r *runner) TaskFinished(c backend.TaskCompletion) {
	r.completionsMu.Lock()
	r.completions = append(r.completions, c)
	r.completionsMu.Unlock()
	select {
	case r.completed <- struct{}{}:
	default:
	}
}

func (r *runner) takeCompletions() []backend.TaskCompletion {
	r.completionsMu.Lock()
	defer r.completionsMu.Unlock()
	cs := r.completions
	r.completions = nil
	return cs
}

func (r *runner) loop() {
	defer close(r.done)
	defer func() {
		if r.inflight != "" {
			r.e.backend.CancelTask(r.inflight)
		}
	}()
	log.Debug(r.ctx, "runner started")
	for {
		select {
		case <-r.ctx.Done():
			log.Debug(r.ctx, "runner stopped", zap.Error(context.Cause(r.ctx)))
			return
		case msg := <-r.inbox:
			r.handle(msg)
		case <-r.completed:
			for _, c := range r.takeCompletions() {
				r.finish(c)
			}
			r.notifyWaiters()
		}
	}
}

func (r *runner) handle(msg message) {
	switch msg := msg.(type) {
	case kickMsg:
		r.advance()
		close(msg.reply)
	case cancelMsg:
		msg.reply <- r.cancelHead()
	case waitMsg:
		r.waiters = append(r.waiters, msg.reply)
	}
	r.notifyWaiters()
}

func (r *runner) notifyWaiters() {
	if len(r.waiters) == 0 {
		return
	}
	if wf, _ := r.branch.Head(); wf.IsActive() {
		return
	}
	for _, w := range r.waiters {
		close(w)
	}
	r.waiters = nil
}

// advance executes HEAD from its first module that is not SUCCESS until it has to wait for an
// asynchronous task, reaches a module it does not own, or the workflow is finished.
func (r *runner) advance() {
	for r.inflight == "" && r.ctx.Err() == nil {
		wf, _ := r.branch.Head()
		i := firstUnfinished(wf)
		if i < 0 {
			return
		}
		m := wf.Module(i)
		switch m.State() {
		case viztrail.Error, viztrail.Canceled:
			r.cancelAfter(wf, i)
			return
		case viztrail.Running:
			// Executed by the goroutine that appended it, or left over from an earlier process.
			return
		case viztrail.Pending:
			r.step(wf, i, m)
		}
	}
}

func firstUnfinished(wf *viztrail.Workflow) int {
	for i, m := range wf.Modules() {
		if m.State() != viztrail.Success {
			return i
		}
	}
	return -1
}

// step reuses or executes the PENDING module m at position i of wf.
func (r *runner) step(wf *viztrail.Workflow, i int, m *viztrail.Module) {
	ctx := r.ctx
	state := wf.DatabaseState(i)
	prov := m.Provenance()
	if prov.IsKnown() && !prov.RequiresExec(state) {
		if m.Reuse(time.Now()) {
			log.Debug(ctx, "reusing module", viztrail.ModuleField(m), zap.Int("position", i))
			modulesFinishedMetric.WithLabelValues(m.State().String(), "reused").Inc()
			r.e.persistModule(ctx, r.project, m)
		}
		return
	}
	if !m.SetRunning(time.Now()) {
		return
	}
	r.e.persistModule(ctx, r.project, m)
	task := backend.Task{
		ID:      m.ID,
		Command: m.Command,
		Context: processor.NewTaskContext(r.project.ID, m.ID, r.project.Datastore, r.project.Filestore, state, prov.Resources),
	}
	if r.e.backend.CanExecute(m.Command) {
		res := r.e.backend.Execute(ctx, task)
		if complete(m, res, "sync") {
			r.e.persistModule(ctx, r.project, m)
		}
		return
	}
	if err := r.e.backend.ExecuteAsync(ctx, task, r); err != nil {
		log.Error(ctx, "could not submit task", viztrail.ModuleField(m), zap.Error(err))
		if complete(m, processor.Fail(viztrail.Outputs{}, err), "async") {
			r.e.persistModule(ctx, r.project, m)
		}
		return
	}
	log.Debug(ctx, "submitted task", viztrail.ModuleField(m), zap.Int("position", i))
	r.inflight = m.ID
	r.inflightModule = m
}

// cancelAfter cancels every active module after position i.
func (r *runner) cancelAfter(wf *viztrail.Workflow, i int) {
	now := time.Now()
	for _, m := range wf.Modules()[i+1:] {
		if m.SetCanceled(now) {
			modulesFinishedMetric.WithLabelValues(viztrail.Canceled.String(), "halted").Inc()
			r.e.persistModule(r.ctx, r.project, m)
		}
	}
}

func (r *runner) finish(c backend.TaskCompletion) {
	if c.TaskID != r.inflight {
		log.Debug(r.ctx, "discarding completion of a task that is no longer awaited", zap.String("task", c.TaskID), zap.Bool("canceled", c.Canceled))
		return
	}
	m := r.inflightModule
	r.inflight, r.inflightModule = "", nil
	var res processor.Result
	if !c.Canceled {
		res = c.Result
	}
	if complete(m, res, "async") {
		r.e.persistModule(r.ctx, r.project, m)
	}
	r.advance()
}

func (r *runner) cancelHead() *viztrail.Workflow {
	wf, _ := r.branch.Head()
	now := time.Now()
	var canceled int
	for _, m := range wf.Modules() {
		if m.SetCanceled(now) {
			canceled++
			modulesFinishedMetric.WithLabelValues(viztrail.Canceled.String(), "canceled").Inc()
			r.e.persistModule(r.ctx, r.project, m)
		}
	}
	if r.inflight != "" {
		r.e.backend.CancelTask(r.inflight)
		r.inflight, r.inflightModule = "", nil
	}
	if canceled > 0 {
		log.Info(r.ctx, "canceled workflow", viztrail.WorkflowField(wf), zap.Int("modules", canceled))
	}
	return wf
}
