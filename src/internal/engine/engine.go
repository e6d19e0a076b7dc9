// Package engine applies edits to the branches of vizier projects and executes the resulting
// workflows.
//
// Every edit reads the branch HEAD, builds the next workflow version and publishes it with a
// compare-and-swap on the HEAD version; an edit that lost the race returns nil without error.
// Modules are then executed in order by a runner goroutine owned by the branch.  Commands the
// backend can execute synchronously run on the goroutine that appended them or on the runner;
// the rest are submitted to the backend, which reports back with a TaskCompletion.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vizierdb/vizier/src/internal/backend"
	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/packages"
	"github.com/vizierdb/vizier/src/internal/pctx"
	"github.com/vizierdb/vizier/src/internal/processor"
	"github.com/vizierdb/vizier/src/internal/project"
	"github.com/vizierdb/vizier/src/internal/viztrail"
	"go.uber.org/zap"
)

var (
	modulesFinishedMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vizier",
		Subsystem: "engine",
		Name:      "modules_finished_total",
		Help:      "Number of modules that reached a terminal state, by state and how they got there",
	}, []string{"state", "mode"})
	editsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vizier",
		Subsystem: "engine",
		Name:      "edits_total",
		Help:      "Number of branch edits, by action and outcome",
	}, []string{"action", "outcome"})
)

// ErrClosed is returned by a closed engine.
var ErrClosed = errors.New("engine is closed")

type runnerKey struct {
	project, branch string
}

// Engine edits and executes the workflows of every project in a registry.
type Engine struct {
	projects   *project.Registry
	packages   *packages.Index
	processors *processor.Registry
	backend    backend.Backend

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	runners map[runnerKey]*runner
	closed  bool
}

// New returns an engine.  The engine owns be and closes it in Close; projects stays open.
func New(ctx context.Context, projects *project.Registry, index *packages.Index, processors *processor.Registry, be backend.Backend) *Engine {
	ctx, cancel := pctx.WithCancel(pctx.Child(ctx, "engine"))
	return &Engine{
		projects:   projects,
		packages:   index,
		processors: processors,
		backend:    be,
		ctx:        ctx,
		cancel:     cancel,
		runners:    make(map[runnerKey]*runner),
	}
}

// Projects returns the registry the engine works on.
func (e *Engine) Projects() *project.Registry {
	return e.projects
}

// Packages returns the package index commands are validated against.
func (e *Engine) Packages() *packages.Index {
	return e.packages
}

func (e *Engine) lookup(projectID, branchID string) (*project.Project, *viztrail.Branch, error) {
	p, err := e.projects.Get(projectID)
	if err != nil {
		return nil, nil, err
	}
	if branchID == "" {
		return p, p.Viztrail.DefaultBranch(), nil
	}
	b, err := p.Viztrail.GetBranch(branchID)
	if err != nil {
		return nil, nil, err
	}
	return p, b, nil
}

// runner returns the runner of a branch, starting it if needed.
func (e *Engine) runner(p *project.Project, b *viztrail.Branch) (*runner, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	key := runnerKey{project: p.ID, branch: b.ID}
	if r, ok := e.runners[key]; ok {
		return r, nil
	}
	r := newRunner(e, p, b)
	e.runners[key] = r
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		r.loop()
	}()
	return r, nil
}

// stopRunners stops the runners of the matching branches and waits for them to exit.  An empty
// branch matches every branch of the project.
func (e *Engine) stopRunners(projectID, branchID string) {
	e.mu.Lock()
	var stopped []*runner
	for key, r := range e.runners {
		if key.project == projectID && (branchID == "" || key.branch == branchID) {
			delete(e.runners, key)
			stopped = append(stopped, r)
		}
	}
	e.mu.Unlock()
	for _, r := range stopped {
		r.stop()
		<-r.done
	}
}

// prepare validates cmd and returns its external form.  A command that is malformed or that no
// processor can run is rejected before anything is published.
func (e *Engine) prepare(cmd *viztrail.Command) (string, error) {
	if cmd == nil {
		return "", &viztrail.InvalidArgumentError{Reason: "missing command"}
	}
	if err := e.packages.Validate(cmd); err != nil {
		return "", err
	}
	if _, ok := e.processors.Get(cmd.PackageID); !ok {
		return "", &viztrail.InvalidArgumentError{Reason: "no processor for package " + cmd.PackageID}
	}
	return e.packages.ExternalForm(cmd), nil
}

func (e *Engine) persistWorkflow(ctx context.Context, p *project.Project, b *viztrail.Branch, seq int, wf *viztrail.Workflow) error {
	if err := e.projects.Store().WriteWorkflow(ctx, p.ID, b.ID, seq, wf); err != nil {
		return errors.Wrapf(err, "persist workflow %s of branch %s", wf.ID(), b.ID)
	}
	return nil
}

func (e *Engine) persistModule(ctx context.Context, p *project.Project, m *viztrail.Module) {
	if err := e.projects.Store().WriteModule(ctx, p.ID, m); err != nil {
		log.Error(ctx, "could not persist module", viztrail.ModuleField(m), zap.Error(err))
	}
}

// complete records the result of a module execution.  It reports false if the module had
// already reached a terminal state, in which case res is discarded.
func complete(m *viztrail.Module, res processor.Result, mode string) bool {
	now := time.Now()
	var ok bool
	switch res := res.(type) {
	case *processor.Success:
		ok = m.SetSuccess(now, res.Outputs, res.Provenance)
	case *processor.Failure:
		ok = m.SetError(now, res.Outputs)
	default:
		ok = m.SetCanceled(now)
	}
	if ok {
		modulesFinishedMetric.WithLabelValues(m.State().String(), mode).Inc()
	}
	return ok
}

// GetBranch returns a branch.  An empty branch identifier selects the default branch.
func (e *Engine) GetBranch(projectID, branchID string) (*viztrail.Branch, error) {
	_, b, err := e.lookup(projectID, branchID)
	return b, err
}

// GetWorkflow returns a workflow version of a branch.  An empty workflow identifier selects
// HEAD, which is nil for a branch without workflows.
func (e *Engine) GetWorkflow(projectID, branchID, workflowID string) (*viztrail.Workflow, error) {
	_, b, err := e.lookup(projectID, branchID)
	if err != nil {
		return nil, err
	}
	wf, ok := b.GetWorkflow(workflowID)
	if !ok && workflowID != "" {
		return nil, &viztrail.NotFoundError{Kind: "workflow", ID: workflowID}
	}
	return wf, nil
}

// GetHistory returns every workflow version of a branch, oldest first.
func (e *Engine) GetHistory(projectID, branchID string) ([]*viztrail.Workflow, error) {
	_, b, err := e.lookup(projectID, branchID)
	if err != nil {
		return nil, err
	}
	return b.History(), nil
}

// CreateBranch creates and persists a branch of a project.
func (e *Engine) CreateBranch(ctx context.Context, projectID string, opts viztrail.BranchOptions) (_ *viztrail.Branch, retErr error) {
	p, err := e.projects.Get(projectID)
	if err != nil {
		return nil, err
	}
	defer log.Span(ctx, "CreateBranch", zap.String("project", projectID), zap.String("source", opts.SourceBranch))(log.Errorp(&retErr))
	b, err := p.Viztrail.CreateBranch(opts)
	if err != nil {
		return nil, err
	}
	if err := e.projects.Store().WriteBranch(ctx, p.ID, b); err != nil {
		return nil, errors.Wrapf(err, "persist branch %s", b.ID)
	}
	return b, nil
}

// DeleteBranch cancels any execution on a branch and deletes it.  The default branch cannot be
// deleted.
func (e *Engine) DeleteBranch(ctx context.Context, projectID, branchID string) (retErr error) {
	p, err := e.projects.Get(projectID)
	if err != nil {
		return err
	}
	defer log.Span(ctx, "DeleteBranch", zap.String("project", projectID), zap.String("branch", branchID))(log.Errorp(&retErr))
	if err := p.Viztrail.DeleteBranch(branchID); err != nil {
		return err
	}
	e.stopRunners(p.ID, branchID)
	if err := e.projects.Store().DeleteBranch(ctx, p.ID, branchID); err != nil {
		return errors.Wrapf(err, "delete branch %s", branchID)
	}
	return nil
}

// DeleteProject stops every execution in a project and deletes it.
func (e *Engine) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := e.projects.Get(projectID); err != nil {
		return err
	}
	e.stopRunners(projectID, "")
	return e.projects.Delete(ctx, projectID)
}

// CancelExec cancels every PENDING and RUNNING module of the branch HEAD and returns HEAD.
// Canceling a branch with nothing to cancel changes nothing.
func (e *Engine) CancelExec(ctx context.Context, projectID, branchID string) (*viztrail.Workflow, error) {
	p, b, err := e.lookup(projectID, branchID)
	if err != nil {
		return nil, err
	}
	r, err := e.runner(p, b)
	if err != nil {
		return nil, err
	}
	reply := make(chan *viztrail.Workflow, 1)
	if err := r.send(ctx, cancelMsg{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case wf := <-reply:
		return wf, nil
	case <-r.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, errors.EnsureStack(context.Cause(ctx))
	}
}

// Wait blocks until the branch HEAD has no PENDING or RUNNING module.  A module left RUNNING by
// an earlier process only finishes when it is canceled.
func (e *Engine) Wait(ctx context.Context, projectID, branchID string) (*viztrail.Workflow, error) {
	p, b, err := e.lookup(projectID, branchID)
	if err != nil {
		return nil, err
	}
	r, err := e.runner(p, b)
	if err != nil {
		return nil, err
	}
	reply := make(chan struct{})
	if err := r.send(ctx, waitMsg{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case <-reply:
		wf, _ := b.Head()
		return wf, nil
	case <-r.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, errors.EnsureStack(context.Cause(ctx))
	}
}

// kick asks the branch runner to execute HEAD and waits until it has dispatched the first
// module it could not finish on its own goroutine.
func (e *Engine) kick(ctx context.Context, p *project.Project, b *viztrail.Branch) error {
	r, err := e.runner(p, b)
	if err != nil {
		return err
	}
	reply := make(chan struct{})
	if err := r.send(ctx, kickMsg{reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return errors.EnsureStack(context.Cause(ctx))
	}
}

// Close stops every runner and then closes the backend.  Modules that are still RUNNING stay
// RUNNING in the store.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.runners = nil
	e.mu.Unlock()
	e.cancel()
	e.wg.Wait()
	return errors.EnsureStack(e.backend.Close())
}
