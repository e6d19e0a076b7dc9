package vizierdb

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/viztrail"
	"go.uber.org/zap"
)

const (
	listViztrails  = `SELECT id FROM vizier.viztrails ORDER BY id`
	selectViztrail = `SELECT id, properties, default_branch, created_at FROM vizier.viztrails WHERE id = $1`
	insertViztrail = `
		INSERT INTO vizier.viztrails (id, properties, default_branch, created_at)
		VALUES ($1, $2, $3, $4)`
	updateViztrail = `UPDATE vizier.viztrails SET properties = $2, default_branch = $3 WHERE id = $1`
	deleteViztrail = `DELETE FROM vizier.viztrails WHERE id = $1`

	selectBranches = `
		SELECT viztrail_id, id, properties, source_branch, workflow_id, module_id, forked_at, created_at
		FROM vizier.branches WHERE viztrail_id = $1 ORDER BY created_at, id`
	upsertBranch = `
		INSERT INTO vizier.branches (viztrail_id, id, properties, source_branch, workflow_id, module_id, forked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (viztrail_id, id) DO UPDATE SET properties = EXCLUDED.properties`
	deleteBranch = `DELETE FROM vizier.branches WHERE viztrail_id = $1 AND id = $2`

	selectWorkflows = `
		SELECT branch_id, seq, id, action, package_id, command_id, created_at
		FROM vizier.workflows WHERE viztrail_id = $1 ORDER BY branch_id, seq`
	upsertWorkflow = `
		INSERT INTO vizier.workflows (viztrail_id, branch_id, seq, id, action, package_id, command_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (viztrail_id, branch_id, seq) DO UPDATE SET
			id = EXCLUDED.id, action = EXCLUDED.action, package_id = EXCLUDED.package_id,
			command_id = EXCLUDED.command_id, created_at = EXCLUDED.created_at`

	selectWorkflowModules = `
		SELECT viztrail_id, branch_id, seq, position, module_id
		FROM vizier.workflow_modules WHERE viztrail_id = $1 ORDER BY branch_id, seq, position`
	deleteWorkflowModules = `DELETE FROM vizier.workflow_modules WHERE viztrail_id = $1 AND branch_id = $2 AND seq = $3`
	insertWorkflowModules = `
		INSERT INTO vizier.workflow_modules (viztrail_id, branch_id, seq, position, module_id)
		VALUES (:viztrail_id, :branch_id, :seq, :position, :module_id)`

	selectModules = `
		SELECT viztrail_id, id, command, external_form, state, revision, outputs, provenance, created_at, started_at, finished_at
		FROM vizier.modules WHERE viztrail_id = $1`
	upsertModule = `
		INSERT INTO vizier.modules (viztrail_id, id, command, external_form, state, revision, outputs, provenance, created_at, started_at, finished_at)
		VALUES (:viztrail_id, :id, :command, :external_form, :state, :revision, :outputs, :provenance, :created_at, :started_at, :finished_at)
		ON CONFLICT (viztrail_id, id) DO UPDATE SET
			state = EXCLUDED.state, revision = EXCLUDED.revision, outputs = EXCLUDED.outputs, provenance = EXCLUDED.provenance,
			started_at = EXCLUDED.started_at, finished_at = EXCLUDED.finished_at
		WHERE vizier.modules.revision <= EXCLUDED.revision`
)

var _ viztrail.Store = (*Store)(nil)

// Store is a viztrail.Store on a postgres database.
type Store struct {
	db *sqlx.DB
}

// New returns a store on db.  The schema must already exist; see Setup.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// ListViztrails implements viztrail.Store.
func (s *Store) ListViztrails(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, listViztrails); err != nil {
		return nil, errors.Wrap(err, "list viztrails")
	}
	return ids, nil
}

// LoadViztrail implements viztrail.Store.
func (s *Store) LoadViztrail(ctx context.Context, id string) (*viztrail.Viztrail, error) {
	var result *viztrail.Viztrail
	if err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		result, err = loadViztrail(ctx, tx, id)
		return err
	}); err != nil {
		return nil, err
	}
	return result, nil
}

func loadViztrail(ctx context.Context, tx *sqlx.Tx, id string) (*viztrail.Viztrail, error) {
	var vrow viztrailRow
	if err := tx.GetContext(ctx, &vrow, selectViztrail, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &viztrail.NotFoundError{Kind: "viztrail", ID: id}
		}
		return nil, errors.Wrapf(err, "get viztrail %s", id)
	}
	vr, err := vrow.record()
	if err != nil {
		return nil, err
	}
	var branchRows []branchRow
	if err := tx.SelectContext(ctx, &branchRows, selectBranches, id); err != nil {
		return nil, errors.Wrapf(err, "list branches of viztrail %s", id)
	}
	var workflowRows []workflowRow
	if err := tx.SelectContext(ctx, &workflowRows, selectWorkflows, id); err != nil {
		return nil, errors.Wrapf(err, "list workflows of viztrail %s", id)
	}
	var positionRows []workflowModuleRow
	if err := tx.SelectContext(ctx, &positionRows, selectWorkflowModules, id); err != nil {
		return nil, errors.Wrapf(err, "list workflow modules of viztrail %s", id)
	}
	var moduleRows []moduleRow
	if err := tx.SelectContext(ctx, &moduleRows, selectModules, id); err != nil {
		return nil, errors.Wrapf(err, "list modules of viztrail %s", id)
	}

	type workflowKey struct {
		branch string
		seq    int
	}
	moduleIDs := make(map[workflowKey][]string)
	for _, r := range positionRows {
		k := workflowKey{r.BranchID, r.Seq}
		moduleIDs[k] = append(moduleIDs[k], r.ModuleID)
	}
	workflows := make(map[string][]viztrail.WorkflowRecord)
	for _, r := range workflowRows {
		workflows[r.BranchID] = append(workflows[r.BranchID], viztrail.WorkflowRecord{
			WorkflowDescriptor: viztrail.WorkflowDescriptor{
				ID:        r.ID,
				Action:    viztrail.Action(r.Action),
				PackageID: r.PackageID,
				CommandID: r.CommandID,
				CreatedAt: r.CreatedAt.UTC(),
			},
			Modules: moduleIDs[workflowKey{r.BranchID, r.Seq}],
		})
	}
	var branches []viztrail.BranchHistory
	for _, r := range branchRows {
		br, err := r.record()
		if err != nil {
			return nil, err
		}
		branches = append(branches, viztrail.BranchHistory{Branch: br, Workflows: workflows[r.ID]})
	}
	modules := make(map[string]viztrail.ModuleRecord, len(moduleRows))
	for _, r := range moduleRows {
		mr, err := r.record()
		if err != nil {
			return nil, err
		}
		modules[mr.ID] = mr
	}
	vt, err := viztrail.Rebuild(vr, branches, modules)
	if err != nil {
		return nil, err
	}
	log.Debug(ctx, "loaded viztrail", zap.String("viztrail", id), zap.Int("branches", len(branches)), zap.Int("modules", len(modules)))
	return vt, nil
}

// CreateViztrail implements viztrail.Store.  Creating a viztrail that already exists fails with
// an error for which IsUniqueViolation is true.
func (s *Store) CreateViztrail(ctx context.Context, vt *viztrail.Viztrail) error {
	r := vt.Record()
	props, err := json.Marshal(r.Properties)
	if err != nil {
		return errors.EnsureStack(err)
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, insertViztrail, r.ID, props, r.DefaultBranch, r.CreatedAt); err != nil {
			return errors.Wrapf(err, "insert viztrail %s", r.ID)
		}
		for _, b := range vt.Branches() {
			if err := writeBranch(ctx, tx, vt.ID, b); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteViztrail implements viztrail.Store.
func (s *Store) DeleteViztrail(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, deleteViztrail, id)
	return errors.Wrapf(err, "delete viztrail %s", id)
}

// WriteViztrail implements viztrail.Store.
func (s *Store) WriteViztrail(ctx context.Context, vt *viztrail.Viztrail) error {
	r := vt.Record()
	props, err := json.Marshal(r.Properties)
	if err != nil {
		return errors.EnsureStack(err)
	}
	res, err := s.db.ExecContext(ctx, updateViztrail, r.ID, props, r.DefaultBranch)
	if err != nil {
		return errors.Wrapf(err, "update viztrail %s", r.ID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &viztrail.NotFoundError{Kind: "viztrail", ID: r.ID}
	}
	return nil
}

// WriteBranch implements viztrail.Store.
func (s *Store) WriteBranch(ctx context.Context, vtID string, b *viztrail.Branch) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return writeBranch(ctx, tx, vtID, b)
	})
}

func writeBranch(ctx context.Context, tx *sqlx.Tx, vtID string, b *viztrail.Branch) error {
	r := b.Record()
	props, err := json.Marshal(r.Properties)
	if err != nil {
		return errors.EnsureStack(err)
	}
	p := r.Provenance
	if _, err := tx.ExecContext(ctx, upsertBranch, vtID, r.ID, props, p.SourceBranch, p.WorkflowID, p.ModuleID, p.CreatedAt, r.CreatedAt); err != nil {
		return errors.Wrapf(err, "write branch %s", r.ID)
	}
	for seq, wf := range b.History() {
		if err := writeWorkflow(ctx, tx, vtID, b.ID, seq, wf); err != nil {
			return err
		}
	}
	return nil
}

// DeleteBranch implements viztrail.Store.
func (s *Store) DeleteBranch(ctx context.Context, vtID, branchID string) error {
	_, err := s.db.ExecContext(ctx, deleteBranch, vtID, branchID)
	return errors.Wrapf(err, "delete branch %s", branchID)
}

// WriteWorkflow implements viztrail.Store.
func (s *Store) WriteWorkflow(ctx context.Context, vtID, branchID string, seq int, wf *viztrail.Workflow) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return writeWorkflow(ctx, tx, vtID, branchID, seq, wf)
	})
}

func writeWorkflow(ctx context.Context, tx *sqlx.Tx, vtID, branchID string, seq int, wf *viztrail.Workflow) error {
	modules := wf.Modules()
	for _, m := range modules {
		if err := writeModule(ctx, tx, vtID, m); err != nil {
			return err
		}
	}
	d := wf.Descriptor
	if _, err := tx.ExecContext(ctx, upsertWorkflow, vtID, branchID, seq, d.ID, string(d.Action), d.PackageID, d.CommandID, d.CreatedAt); err != nil {
		return errors.Wrapf(err, "write workflow %s", d.ID)
	}
	if _, err := tx.ExecContext(ctx, deleteWorkflowModules, vtID, branchID, seq); err != nil {
		return errors.Wrapf(err, "clear modules of workflow %s", d.ID)
	}
	if len(modules) == 0 {
		return nil
	}
	rows := make([]workflowModuleRow, len(modules))
	for i, m := range modules {
		rows[i] = workflowModuleRow{ViztrailID: vtID, BranchID: branchID, Seq: seq, Position: i, ModuleID: m.ID}
	}
	if _, err := tx.NamedExecContext(ctx, insertWorkflowModules, rows); err != nil {
		return errors.Wrapf(err, "write modules of workflow %s", d.ID)
	}
	return nil
}

// WriteModule implements viztrail.Store.
func (s *Store) WriteModule(ctx context.Context, vtID string, m *viztrail.Module) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return writeModule(ctx, tx, vtID, m)
	})
}

func writeModule(ctx context.Context, tx *sqlx.Tx, vtID string, m *viztrail.Module) error {
	row, err := newModuleRow(vtID, m.Record())
	if err != nil {
		return err
	}
	if _, err := tx.NamedExecContext(ctx, upsertModule, row); err != nil {
		return errors.Wrapf(err, "write module %s", m.ID)
	}
	return nil
}

// Close implements viztrail.Store.
func (s *Store) Close() error {
	return errors.EnsureStack(s.db.Close())
}
