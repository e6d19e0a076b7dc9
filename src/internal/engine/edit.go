package engine

import (
	"context"
	"time"

	"github.com/vizierdb/vizier/src/internal/backend"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/processor"
	"github.com/vizierdb/vizier/src/internal/project"
	"github.com/vizierdb/vizier/src/internal/viztrail"
	"go.uber.org/zap"
)

// publish makes wf the new HEAD of b if HEAD is still at version and persists it.  It reports
// false if another edit was published first.
func (e *Engine) publish(ctx context.Context, p *project.Project, b *viztrail.Branch, version int, wf *viztrail.Workflow) (bool, error) {
	action := string(wf.Descriptor.Action)
	if _, ok := b.Publish(version, wf); !ok {
		editsMetric.WithLabelValues(action, "stale").Inc()
		log.Info(ctx, "HEAD moved before edit could be published", zap.String("branch", b.ID), zap.Int("version", version))
		return false, nil
	}
	editsMetric.WithLabelValues(action, "published").Inc()
	log.Debug(ctx, "published workflow", viztrail.WorkflowField(wf))
	if err := e.persistWorkflow(ctx, p, b, version, wf); err != nil {
		return true, err
	}
	return true, nil
}

// AppendWorkflowModule appends a module for cmd to the branch HEAD.  If the backend can execute
// cmd synchronously and HEAD is neither active nor failed, the module is executed before
// returning; otherwise it is left to the branch runner.  A module appended after a failed module
// is CANCELED.  The result is nil if HEAD changed during the call.
func (e *Engine) AppendWorkflowModule(ctx context.Context, projectID, branchID string, cmd *viztrail.Command) (_ *viztrail.Module, retErr error) {
	p, b, err := e.lookup(projectID, branchID)
	if err != nil {
		return nil, err
	}
	ef, err := e.prepare(cmd)
	if err != nil {
		return nil, err
	}
	ctx, end := log.SpanContext(ctx, "AppendWorkflowModule", zap.String("project", p.ID), zap.String("branch", b.ID), zap.String("command", cmd.Name()))
	defer end(log.Errorp(&retErr))

	head, version := b.Head()
	var m *viztrail.Module
	inline := false
	switch {
	case head.HasError():
		m = viztrail.NewModule(cmd, ef, viztrail.Canceled)
	case !head.IsActive() && e.backend.CanExecute(cmd):
		m = viztrail.NewModule(cmd, ef, viztrail.Pending)
		m.SetRunning(time.Now())
		inline = true
	default:
		m = viztrail.NewModule(cmd, ef, viztrail.Pending)
	}
	modules := append(head.Modules(), m)
	wf := viztrail.NewWorkflow(viztrail.ActionAppend, cmd, modules)
	ok, err := e.publish(ctx, p, b, version, wf)
	if !ok {
		return nil, err
	}
	if inline {
		tctx := processor.NewTaskContext(p.ID, m.ID, p.Datastore, p.Filestore, wf.DatabaseState(len(modules)-1), nil)
		res := e.backend.Execute(ctx, backend.Task{ID: m.ID, Command: cmd, Context: tctx})
		if complete(m, res, "sync") {
			e.persistModule(ctx, p, m)
		}
	}
	if kerr := e.kick(ctx, p, b); kerr != nil && err == nil {
		err = kerr
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// InsertWorkflowModule inserts a module for cmd before the module beforeModuleID of the branch
// HEAD.  The inserted module and every module after it are executed again, except that modules
// whose inputs turn out unchanged are reused.  It returns the modules from the inserted one
// onwards, or nil if the module is not in HEAD or HEAD changed during the call.
func (e *Engine) InsertWorkflowModule(ctx context.Context, projectID, branchID, beforeModuleID string, cmd *viztrail.Command) ([]*viztrail.Module, error) {
	return e.editAt(ctx, projectID, branchID, beforeModuleID, cmd, viztrail.ActionInsert, func(modules []*viztrail.Module, i int, ef string) []*viztrail.Module {
		next := append([]*viztrail.Module(nil), modules[:i]...)
		next = append(next, viztrail.NewModule(cmd, ef, viztrail.Pending))
		return append(next, rerun(modules[i:])...)
	})
}

// ReplaceWorkflowModule replaces the module moduleID of the branch HEAD with a module for cmd
// and executes it and the modules after it, with the same reuse rule as InsertWorkflowModule.
// It returns the modules from the replacement onwards, or nil if the module is not in HEAD or
// HEAD changed during the call.
func (e *Engine) ReplaceWorkflowModule(ctx context.Context, projectID, branchID, moduleID string, cmd *viztrail.Command) ([]*viztrail.Module, error) {
	return e.editAt(ctx, projectID, branchID, moduleID, cmd, viztrail.ActionReplace, func(modules []*viztrail.Module, i int, ef string) []*viztrail.Module {
		next := append([]*viztrail.Module(nil), modules[:i]...)
		next = append(next, modules[i].Replacement(cmd, ef))
		return append(next, rerun(modules[i+1:])...)
	})
}

// DeleteWorkflowModule removes the module moduleID from the branch HEAD.  Modules after it that
// read nothing the deleted module changed are kept as they are; the first one that did, and
// every one after it, is executed again.  It returns the modules from the deleted position
// onwards, which is empty when the last module was deleted, or nil if the module is not in HEAD
// or HEAD changed during the call.
func (e *Engine) DeleteWorkflowModule(ctx context.Context, projectID, branchID, moduleID string) ([]*viztrail.Module, error) {
	return e.editAt(ctx, projectID, branchID, moduleID, nil, viztrail.ActionDelete, func(modules []*viztrail.Module, i int, _ string) []*viztrail.Module {
		next := append([]*viztrail.Module(nil), modules[:i]...)
		state := viztrail.ComputeDatabaseState(next, nil)
		rest := modules[i+1:]
		for len(rest) > 0 {
			m := rest[0]
			if m.State() != viztrail.Success || m.Provenance().RequiresExec(state) {
				break
			}
			m.Provenance().Apply(state)
			next = append(next, m)
			rest = rest[1:]
		}
		return append(next, rerun(rest)...)
	})
}

// editAt applies an edit at the position of moduleID in HEAD.  cmd is nil for a delete.
func (e *Engine) editAt(ctx context.Context, projectID, branchID, moduleID string, cmd *viztrail.Command, action viztrail.Action, edit func(modules []*viztrail.Module, i int, ef string) []*viztrail.Module) (_ []*viztrail.Module, retErr error) {
	p, b, err := e.lookup(projectID, branchID)
	if err != nil {
		return nil, err
	}
	var ef string
	if cmd != nil {
		if ef, err = e.prepare(cmd); err != nil {
			return nil, err
		}
	}
	ctx, end := log.SpanContext(ctx, "editWorkflow", zap.String("project", p.ID), zap.String("branch", b.ID), zap.String("action", string(action)), zap.String("module", moduleID))
	defer end(log.Errorp(&retErr))

	head, version := b.Head()
	i := head.ModuleIndex(moduleID)
	if i < 0 {
		editsMetric.WithLabelValues(string(action), "not_found").Inc()
		log.Info(ctx, "module is not in HEAD", zap.String("module", moduleID))
		return nil, nil
	}
	if head.IsActive() {
		return nil, viztrail.ErrWorkflowActive
	}
	modules := edit(head.Modules(), i, ef)
	wf := viztrail.NewWorkflow(action, cmd, modules)
	ok, err := e.publish(ctx, p, b, version, wf)
	if !ok {
		return nil, err
	}
	if kerr := e.kick(ctx, p, b); kerr != nil && err == nil {
		err = kerr
	}
	if err != nil {
		return nil, err
	}
	affected := wf.Modules()[i:]
	if affected == nil {
		affected = []*viztrail.Module{}
	}
	return affected, nil
}

// rerun returns PENDING copies of modules that remember their previous run.
func rerun(modules []*viztrail.Module) []*viztrail.Module {
	result := make([]*viztrail.Module, len(modules))
	for i, m := range modules {
		result[i] = m.Rerun()
	}
	return result
}
