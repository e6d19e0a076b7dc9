package cmds

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/vizierdb/vizier/src/internal/log"
	"github.com/vizierdb/vizier/src/internal/require"
	"github.com/vizierdb/vizier/src/internal/serviceenv"
	"github.com/vizierdb/vizier/src/internal/viztrail"
	"github.com/vizierdb/vizier/src/server/vizier/pretty"
)

type cli struct {
	t      *testing.T
	ctx    context.Context
	config *serviceenv.Configuration
}

func newCLI(t *testing.T) *cli {
	return &cli{
		t:      t,
		ctx:    log.Test(t),
		config: serviceenv.ConfigFromOptions(serviceenv.WithStorageURL("file://"+t.TempDir()), serviceenv.WithWorkers(2)),
	}
}

// run executes one vizierctl invocation against a freshly opened environment, like a separate
// process would.
func (c *cli) run(args ...string) string {
	c.t.Helper()
	root := &cobra.Command{Use: "vizierctl"}
	root.AddCommand(Cmds(c.ctx, func(ctx context.Context) (serviceenv.ServiceEnv, error) {
		return serviceenv.InitServiceEnv(ctx, c.config)
	})...)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(c.t, root.Execute())
	return out.String()
}

func (c *cli) workflow(ref string) *pretty.WorkflowInfo {
	c.t.Helper()
	var info pretty.WorkflowInfo
	require.NoError(c.t, json.Unmarshal([]byte(c.run("workflow", "get", ref, "--raw")), &info))
	return &info
}

func TestProjectWorkflow(t *testing.T) {
	c := newCLI(t)
	id := strings.TrimSpace(c.run("project", "create", "people", "-p", "owner=ana"))
	require.NotEmpty(t, id)
	require.Contains(t, c.run("project", "list"), "people")

	out := c.run("module", "append", "people", "vizual.emptyDataset", "--arg", "name=people")
	require.Contains(t, out, "SUCCESS")
	c.run("module", "append", "people", "vizual.insertColumn", "--args", `{"dataset": "people", "name": "age"}`)

	script := filepath.Join(t.TempDir(), "cell.star")
	require.NoError(t, os.WriteFile(script, []byte(`print(vizierdb.get_dataset("people")["columns"])`), 0o644))
	c.run("module", "append", id, "script.starlark", "--arg-file", "source="+script)

	info := c.workflow("people")
	require.Equal(t, viztrail.Success, info.State)
	require.Len(t, info.Modules, 3)
	require.Equal(t, `["age"]`, info.Modules[2].Outputs.Stdout[0].Value)

	// Deleting the column reruns the script.
	c.run("module", "delete", "people", info.Modules[1].ID)
	info = c.workflow("people")
	require.Len(t, info.Modules, 2)
	require.Equal(t, `[]`, info.Modules[1].Outputs.Stdout[0].Value)

	detail := c.run("workflow", "get", "people")
	require.Contains(t, detail, "Datasets: people")

	var history []*pretty.WorkflowInfo
	require.NoError(t, json.Unmarshal([]byte(c.run("branch", "history", "people", "--raw")), &history))
	require.Len(t, history, 4)
	require.Equal(t, viztrail.ActionDelete, history[3].Action)
	require.Contains(t, c.run("branch", "history", "people", "--no-pager"), "delete")
}

func TestBranchCommands(t *testing.T) {
	c := newCLI(t)
	c.run("project", "create", "p")
	c.run("module", "append", "p", "markdown.code", "--arg", "source=# title")
	fork := strings.TrimSpace(c.run("branch", "create", "p@Default", "experiment"))
	require.NotEmpty(t, fork)
	empty := strings.TrimSpace(c.run("branch", "create", "p", "scratch"))
	require.NotEmpty(t, empty)

	branches := c.run("branch", "list", "p")
	require.Contains(t, branches, "experiment")
	require.Contains(t, branches, "scratch")

	c.run("module", "append", "p@experiment", "markdown.code", "--arg", "source=more")
	require.Len(t, c.workflow("p@experiment").Modules, 2)
	require.Len(t, c.workflow("p").Modules, 1)
	require.Empty(t, c.workflow("p@scratch").Modules)

	c.run("branch", "delete", "p@"+fork)
	require.NotContains(t, c.run("branch", "list", "p"), "experiment")
}

func TestFileCommands(t *testing.T) {
	c := newCLI(t)
	c.run("project", "create", "files")
	path := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,age\nana,31\nbo,42\n"), 0o644))
	fileID := strings.TrimSpace(c.run("file", "upload", "files", path))
	require.Contains(t, c.run("file", "list", "files"), "people.csv")

	c.run("module", "append", "files", "vizual.load", "--arg", "name=people", "--arg", "file="+fileID)
	info := c.workflow("files")
	require.Equal(t, viztrail.Success, info.State)
	require.Contains(t, c.run("packages"), "vizual.load")

	c.run("project", "delete", "files")
	require.NotContains(t, c.run("project", "list"), "files")
}

func TestParseCommand(t *testing.T) {
	cmd, err := parseCommand("query.filter", `{"dataset": "d"}`, []string{"expression=select(.age > 3)", "limit=3"}, nil)
	require.NoError(t, err)
	require.Equal(t, "query", cmd.PackageID)
	require.Equal(t, "filter", cmd.CommandID)
	require.Equal(t, viztrail.String("d"), cmd.Arguments["dataset"])
	require.Equal(t, viztrail.String("select(.age > 3)"), cmd.Arguments["expression"])
	require.Equal(t, viztrail.Int(3), cmd.Arguments["limit"])

	_, err = parseCommand("nodot", "", nil, nil)
	require.Error(t, err)
	_, err = parseCommand("a.b", "[1]", nil, nil)
	require.Error(t, err)
}
