package vizierdb

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/require"
	"github.com/vizierdb/vizier/src/internal/viztrail"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	s := New(sqlx.NewDb(mockDB, "pgx"))
	t.Cleanup(func() {
		mock.ExpectClose()
		require.NoError(t, s.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})
	return s, mock
}

func TestCreateViztrail(t *testing.T) {
	ctx := log.Test(t)
	s, mock := newMockStore(t)
	vt, err := viztrail.New(map[string]string{viztrail.PropertyName: "project"})
	require.NoError(t, err)
	b := vt.DefaultBranch()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO vizier.viztrails").
		WithArgs(vt.ID, sqlmock.AnyArg(), b.ID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO vizier.branches").
		WithArgs(vt.ID, b.ID, sqlmock.AnyArg(), "", "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, s.CreateViztrail(ctx, vt))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO vizier.viztrails").
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
	mock.ExpectRollback()
	err = s.CreateViztrail(ctx, vt)
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err))
}

func TestWriteWorkflow(t *testing.T) {
	ctx := log.Test(t)
	s, mock := newMockStore(t)
	m := viztrail.NewModule(viztrail.NewCommand("vizual", "emptyDataset", viztrail.Record{"name": viztrail.String("d")}), "CREATE EMPTY DATASET d", viztrail.Pending)
	wf := viztrail.NewWorkflow(viztrail.ActionAppend, m.Command, []*viztrail.Module{m})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO vizier.modules").
		WithArgs("vt", m.ID, sqlmock.AnyArg(), m.ExternalForm, "PENDING", int64(0), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO vizier.workflows").
		WithArgs("vt", "b", 3, wf.ID(), "apd", "vizual", "emptyDataset", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM vizier.workflow_modules").
		WithArgs("vt", "b", 3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO vizier.workflow_modules").
		WithArgs("vt", "b", 3, 0, m.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, s.WriteWorkflow(ctx, "vt", "b", 3, wf))
}

func TestWriteEmptyWorkflow(t *testing.T) {
	ctx := log.Test(t)
	s, mock := newMockStore(t)
	wf := viztrail.NewWorkflow(viztrail.ActionCreate, nil, nil)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO vizier.workflows").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM vizier.workflow_modules").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	require.NoError(t, s.WriteWorkflow(ctx, "vt", "b", 0, wf))
}

func TestWriteModuleOnlyMovesForward(t *testing.T) {
	ctx := log.Test(t)
	s, mock := newMockStore(t)
	m := viztrail.NewModule(viztrail.NewCommand("p", "c", nil), "p.c()", viztrail.Pending)
	require.True(t, m.SetRunning(time.Now()))
	require.True(t, m.SetSuccess(time.Now(), viztrail.Outputs{}, viztrail.Provenance{}))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO vizier.modules .+ WHERE vizier.modules.revision <= EXCLUDED.revision`).
		WithArgs("vt", m.ID, sqlmock.AnyArg(), m.ExternalForm, "SUCCESS", int64(2), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, s.WriteModule(ctx, "vt", m))

	// A row that already holds a newer revision is left alone.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO vizier.modules").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	require.NoError(t, s.WriteModule(ctx, "vt", m))
}

func TestRetrySerializationFailure(t *testing.T) {
	ctx := log.Test(t)
	s, mock := newMockStore(t)
	m := viztrail.NewModule(viztrail.NewCommand("p", "c", nil), "p.c()", viztrail.Pending)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO vizier.modules").
		WillReturnError(&pgconn.PgError{Code: pgerrcode.SerializationFailure})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO vizier.modules").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, s.WriteModule(ctx, "vt", m))
}

func TestWriteViztrailNotFound(t *testing.T) {
	ctx := log.Test(t)
	s, mock := newMockStore(t)
	vt, err := viztrail.New(map[string]string{viztrail.PropertyName: "project"})
	require.NoError(t, err)

	mock.ExpectExec("UPDATE vizier.viztrails").WillReturnResult(sqlmock.NewResult(0, 0))
	err = s.WriteViztrail(ctx, vt)
	require.True(t, viztrail.IsNotFound(err))
}

func TestLoadViztrail(t *testing.T) {
	ctx := log.Test(t)
	s, mock := newMockStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	finished := now.Add(time.Second)
	cmd := []byte(`{"packageId":"vizual","commandId":"emptyDataset","arguments":{"name":"d"}}`)
	prov := []byte(`{"read":{},"write":{"d":{"id":"snap1","columns":[],"rowCount":0}}}`)
	outputs := []byte(`{"stdout":[],"stderr":[]}`)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM vizier.viztrails").WithArgs("vt").
		WillReturnRows(sqlmock.NewRows([]string{"id", "properties", "default_branch", "created_at"}).
			AddRow("vt", []byte(`{"name":"project"}`), "main", now))
	mock.ExpectQuery("SELECT (.+) FROM vizier.branches").WithArgs("vt").
		WillReturnRows(sqlmock.NewRows([]string{"viztrail_id", "id", "properties", "source_branch", "workflow_id", "module_id", "forked_at", "created_at"}).
			AddRow("vt", "main", []byte(`{"name":"Default"}`), "", "", "", now, now))
	mock.ExpectQuery("SELECT (.+) FROM vizier.workflows").WithArgs("vt").
		WillReturnRows(sqlmock.NewRows([]string{"branch_id", "seq", "id", "action", "package_id", "command_id", "created_at"}).
			AddRow("main", 0, "wf0", "apd", "vizual", "emptyDataset", now).
			AddRow("main", 1, "wf1", "apd", "vizual", "emptyDataset", now))
	mock.ExpectQuery("SELECT (.+) FROM vizier.workflow_modules").WithArgs("vt").
		WillReturnRows(sqlmock.NewRows([]string{"viztrail_id", "branch_id", "seq", "position", "module_id"}).
			AddRow("vt", "main", 0, 0, "m0").
			AddRow("vt", "main", 1, 0, "m0").
			AddRow("vt", "main", 1, 1, "m1"))
	mock.ExpectQuery("SELECT (.+) FROM vizier.modules").WithArgs("vt").
		WillReturnRows(sqlmock.NewRows([]string{"viztrail_id", "id", "command", "external_form", "state", "revision", "outputs", "provenance", "created_at", "started_at", "finished_at"}).
			AddRow("vt", "m0", cmd, "CREATE EMPTY DATASET d", "SUCCESS", 2, outputs, prov, now, now, finished).
			AddRow("vt", "m1", cmd, "CREATE EMPTY DATASET d", "RUNNING", 1, outputs, []byte(`{"read":null,"write":null}`), now, now, nil))
	mock.ExpectCommit()

	vt, err := s.LoadViztrail(ctx, "vt")
	require.NoError(t, err)
	require.Equal(t, "project", vt.Name())
	b := vt.DefaultBranch()
	require.Equal(t, "main", b.ID)
	hist := b.History()
	require.Len(t, hist, 2)
	require.Same(t, hist[0].Module(0), hist[1].Module(0))
	head, version := b.Head()
	require.Equal(t, 2, version)
	require.Equal(t, "wf1", head.ID())
	require.Equal(t, viztrail.Success, head.Module(0).State())
	require.Equal(t, viztrail.Running, head.Module(1).State())
	require.Equal(t, "snap1", head.DatabaseState(1)["d"].ID)
	require.Equal(t, finished, *head.Module(0).Timestamp().FinishedAt)
	require.Nil(t, head.Module(1).Timestamp().FinishedAt)
	require.Equal(t, uint64(2), head.Module(0).Revision())
	require.Equal(t, uint64(1), head.Module(1).Revision())
}

func TestLoadMissingViztrail(t *testing.T) {
	ctx := log.Test(t)
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM vizier.viztrails").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "properties", "default_branch", "created_at"}))
	mock.ExpectRollback()
	_, err := s.LoadViztrail(ctx, "missing")
	require.True(t, viztrail.IsNotFound(err))
}

func TestListViztrails(t *testing.T) {
	ctx := log.Test(t)
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id FROM vizier.viztrails").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))
	ids, err := s.ListViztrails(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)
}
