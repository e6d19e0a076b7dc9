package vizierdb

import (
	"encoding/json"
	"time"

	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/viztrail"
)

type viztrailRow struct {
	ID            string    `db:"id"`
	Properties    []byte    `db:"properties"`
	DefaultBranch string    `db:"default_branch"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r viztrailRow) record() (viztrail.ViztrailRecord, error) {
	result := viztrail.ViztrailRecord{ID: r.ID, DefaultBranch: r.DefaultBranch, CreatedAt: r.CreatedAt.UTC()}
	if err := json.Unmarshal(r.Properties, &result.Properties); err != nil {
		return result, errors.Wrapf(err, "decode properties of viztrail %s", r.ID)
	}
	return result, nil
}

type branchRow struct {
	ViztrailID   string    `db:"viztrail_id"`
	ID           string    `db:"id"`
	Properties   []byte    `db:"properties"`
	SourceBranch string    `db:"source_branch"`
	WorkflowID   string    `db:"workflow_id"`
	ModuleID     string    `db:"module_id"`
	ForkedAt     time.Time `db:"forked_at"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r branchRow) record() (viztrail.BranchRecord, error) {
	result := viztrail.BranchRecord{
		ID: r.ID,
		Provenance: viztrail.BranchProvenance{
			SourceBranch: r.SourceBranch,
			WorkflowID:   r.WorkflowID,
			ModuleID:     r.ModuleID,
			CreatedAt:    r.ForkedAt.UTC(),
		},
		CreatedAt: r.CreatedAt.UTC(),
	}
	if err := json.Unmarshal(r.Properties, &result.Properties); err != nil {
		return result, errors.Wrapf(err, "decode properties of branch %s", r.ID)
	}
	return result, nil
}

type workflowRow struct {
	BranchID  string    `db:"branch_id"`
	Seq       int       `db:"seq"`
	ID        string    `db:"id"`
	Action    string    `db:"action"`
	PackageID string    `db:"package_id"`
	CommandID string    `db:"command_id"`
	CreatedAt time.Time `db:"created_at"`
}

type workflowModuleRow struct {
	ViztrailID string `db:"viztrail_id"`
	BranchID   string `db:"branch_id"`
	Seq        int    `db:"seq"`
	Position   int    `db:"position"`
	ModuleID   string `db:"module_id"`
}

type moduleRow struct {
	ViztrailID   string     `db:"viztrail_id"`
	ID           string     `db:"id"`
	Command      []byte     `db:"command"`
	ExternalForm string     `db:"external_form"`
	State        string     `db:"state"`
	Revision     int64      `db:"revision"`
	Outputs      []byte     `db:"outputs"`
	Provenance   []byte     `db:"provenance"`
	CreatedAt    time.Time  `db:"created_at"`
	StartedAt    *time.Time `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
}

func newModuleRow(vtID string, m viztrail.ModuleRecord) (moduleRow, error) {
	state, err := m.State.MarshalText()
	if err != nil {
		return moduleRow{}, err
	}
	row := moduleRow{
		ViztrailID:   vtID,
		ID:           m.ID,
		ExternalForm: m.ExternalForm,
		State:        string(state),
		Revision:     int64(m.Revision),
		CreatedAt:    m.Timestamp.CreatedAt,
		StartedAt:    m.Timestamp.StartedAt,
		FinishedAt:   m.Timestamp.FinishedAt,
	}
	if row.Command, err = json.Marshal(m.Command); err != nil {
		return row, errors.Wrapf(err, "encode command of module %s", m.ID)
	}
	if row.Outputs, err = json.Marshal(m.Outputs); err != nil {
		return row, errors.Wrapf(err, "encode outputs of module %s", m.ID)
	}
	if row.Provenance, err = json.Marshal(m.Provenance); err != nil {
		return row, errors.Wrapf(err, "encode provenance of module %s", m.ID)
	}
	return row, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (r moduleRow) record() (viztrail.ModuleRecord, error) {
	result := viztrail.ModuleRecord{
		ID:           r.ID,
		ExternalForm: r.ExternalForm,
		Revision:     uint64(r.Revision),
		Timestamp: viztrail.Timestamp{
			CreatedAt:  r.CreatedAt.UTC(),
			StartedAt:  utc(r.StartedAt),
			FinishedAt: utc(r.FinishedAt),
		},
	}
	if err := result.State.UnmarshalText([]byte(r.State)); err != nil {
		return result, err
	}
	if err := json.Unmarshal(r.Command, &result.Command); err != nil {
		return result, errors.Wrapf(err, "decode command of module %s", r.ID)
	}
	if err := json.Unmarshal(r.Outputs, &result.Outputs); err != nil {
		return result, errors.Wrapf(err, "decode outputs of module %s", r.ID)
	}
	if err := json.Unmarshal(r.Provenance, &result.Provenance); err != nil {
		return result, errors.Wrapf(err, "decode provenance of module %s", r.ID)
	}
	return result, nil
}
