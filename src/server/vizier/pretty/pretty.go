// Package pretty renders projects, branches and workflows for vizierctl.
package pretty

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/vizierdb/vizier/src/internal/filestore"
	"github.com/vizierdb/vizier/src/internal/project"
	"github.com/vizierdb/vizier/src/internal/viztrail"
)

const (
	// ProjectHeader is the header for projects.
	ProjectHeader = "ID\tNAME\tBRANCHES\tCREATED\t\n"
	// BranchHeader is the header for branches.
	BranchHeader = "ID\tNAME\tHEAD\tSTATE\tSOURCE\t\n"
	// WorkflowHeader is the header for workflow versions.
	WorkflowHeader = "VERSION\tID\tACTION\tCOMMAND\tMODULES\tSTATE\tCREATED\t\n"
	// ModuleHeader is the header for the modules of a workflow.
	ModuleHeader = "#\tID\tSTATE\tCOMMAND\t\n"
)

// WorkflowInfo is the serialized form of a workflow for --raw output.
type WorkflowInfo struct {
	viztrail.WorkflowDescriptor
	State   viztrail.State           `json:"state"`
	Modules []viztrail.ModuleRecord `json:"modules"`
}

// NewWorkflowInfo returns the serialized form of wf.  A nil workflow has no modules.
func NewWorkflowInfo(wf *viztrail.Workflow) *WorkflowInfo {
	if wf == nil {
		return &WorkflowInfo{State: viztrail.Success, Modules: []viztrail.ModuleRecord{}}
	}
	info := &WorkflowInfo{WorkflowDescriptor: wf.Descriptor, State: wf.State(), Modules: []viztrail.ModuleRecord{}}
	for _, m := range wf.Modules() {
		info.Modules = append(info.Modules, m.Record())
	}
	return info
}

// BranchInfo is the serialized form of a branch for --raw output.
type BranchInfo struct {
	viztrail.BranchRecord
	Head string `json:"head,omitempty"`
}

// NewBranchInfo returns the serialized form of b.
func NewBranchInfo(b *viztrail.Branch) *BranchInfo {
	info := &BranchInfo{BranchRecord: b.Record()}
	if head, _ := b.Head(); head != nil {
		info.Head = head.ID()
	}
	return info
}

// PrintProjectInfo prints a project row.
func PrintProjectInfo(w io.Writer, p *project.Project) {
	fmt.Fprintf(w, "%s\t", p.ID)
	fmt.Fprintf(w, "%s\t", p.Viztrail.Name())
	fmt.Fprintf(w, "%d\t", len(p.Viztrail.Branches()))
	fmt.Fprintf(w, "%s\t\n", p.Viztrail.CreatedAt.Format(time.RFC3339))
}

// PrintBranchInfo prints a branch row.
func PrintBranchInfo(w io.Writer, b *viztrail.Branch) {
	head, _ := b.Head()
	fmt.Fprintf(w, "%s\t", b.ID)
	fmt.Fprintf(w, "%s\t", b.Name())
	if head == nil {
		fmt.Fprintf(w, "-\t-\t")
	} else {
		fmt.Fprintf(w, "%s\t%s\t", head.ID(), head.State())
	}
	if b.Provenance.IsFork() {
		fmt.Fprintf(w, "%s@%s\t\n", b.Provenance.SourceBranch, b.Provenance.WorkflowID)
	} else {
		fmt.Fprintf(w, "-\t\n")
	}
}

// PrintWorkflowVersion prints one row of a branch history.
func PrintWorkflowVersion(w io.Writer, version int, wf *viztrail.Workflow) {
	d := wf.Descriptor
	command := "-"
	if d.PackageID != "" {
		command = d.PackageID + "." + d.CommandID
	}
	fmt.Fprintf(w, "%d\t", version)
	fmt.Fprintf(w, "%s\t", d.ID)
	fmt.Fprintf(w, "%s\t", actionName(d.Action))
	fmt.Fprintf(w, "%s\t", command)
	fmt.Fprintf(w, "%d\t", wf.Len())
	fmt.Fprintf(w, "%s\t", wf.State())
	fmt.Fprintf(w, "%s\t\n", d.CreatedAt.Format(time.RFC3339))
}

func actionName(a viztrail.Action) string {
	switch a {
	case viztrail.ActionAppend:
		return "append"
	case viztrail.ActionCreate:
		return "create"
	case viztrail.ActionDelete:
		return "delete"
	case viztrail.ActionInsert:
		return "insert"
	case viztrail.ActionReplace:
		return "replace"
	}
	return string(a)
}

// PrintDetailedWorkflow prints a workflow's modules with their outputs.
func PrintDetailedWorkflow(w io.Writer, wf *viztrail.Workflow) error {
	if wf == nil {
		_, err := fmt.Fprintln(w, "(empty branch)")
		return err
	}
	fmt.Fprintf(w, "Workflow: %s (%s)\n", wf.ID(), wf.State())
	tw := tabwriter.NewWriter(w, 10, 1, 3, ' ', 0)
	fmt.Fprint(tw, ModuleHeader)
	for i, m := range wf.Modules() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", i, m.ID, m.State(), firstLine(m.ExternalForm))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for i, m := range wf.Modules() {
		out := m.Outputs()
		if len(out.Stdout) == 0 && len(out.Stderr) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n[%d] %s\n", i, m.ID)
		for _, o := range out.Stdout {
			fmt.Fprintf(w, "  %s\n", indent(o.Value))
		}
		for _, o := range out.Stderr {
			fmt.Fprintf(w, "  error: %s\n", indent(o.Value))
		}
	}
	state := wf.DatabaseState(wf.Len())
	if names := state.Names(); len(names) > 0 {
		fmt.Fprintf(w, "\nDatasets: %s\n", strings.Join(names, ", "))
	}
	return nil
}

// PrintFileHandle prints an uploaded file.
func PrintFileHandle(w io.Writer, h *filestore.FileHandle) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%d\t\n", h.ID, h.Name, h.Format, h.Size)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func indent(s string) string {
	return strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n  ")
}
