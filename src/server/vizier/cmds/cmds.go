package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/vizierdb/vizier/src/internal/cmdutil"
	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/pager"
	"github.com/vizierdb/vizier/src/internal/project"
	"github.com/vizierdb/vizier/src/internal/serde"
	"github.com/vizierdb/vizier/src/internal/serviceenv"
	"github.com/vizierdb/vizier/src/internal/viztrail"
	"github.com/vizierdb/vizier/src/server/vizier/pretty"
)

// EnvFunc opens the service environment a command runs against.  The command closes it when
// done.
type EnvFunc func(ctx context.Context) (serviceenv.ServiceEnv, error)

func withEnv(ctx context.Context, openEnv EnvFunc, f func(env serviceenv.ServiceEnv) error) (retErr error) {
	env, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer errors.Close(&retErr, env, "close service environment")
	return f(env)
}

// resolveProject finds a project by identifier, or else by name.
func resolveProject(env serviceenv.ServiceEnv, ref string) (*project.Project, error) {
	projects := env.Engine().Projects()
	if p, err := projects.Get(ref); err == nil {
		return p, nil
	}
	var found *project.Project
	for _, p := range projects.List() {
		if p.Viztrail.Name() != ref {
			continue
		}
		if found != nil {
			return nil, errors.Errorf("project name %q is ambiguous, use the project id", ref)
		}
		found = p
	}
	if found == nil {
		return nil, &viztrail.NotFoundError{Kind: "project", ID: ref}
	}
	return found, nil
}

// resolveBranchRef parses "project[@branch]" where either part may be an identifier or a name.
// An empty branch is the default branch.
func resolveBranchRef(env serviceenv.ServiceEnv, ref string) (string, string, error) {
	projectRef, branchRef, err := cmdutil.ParseBranchRef(ref)
	if err != nil {
		return "", "", err
	}
	p, err := resolveProject(env, projectRef)
	if err != nil {
		return "", "", err
	}
	if branchRef == "" {
		return p.ID, "", nil
	}
	if _, err := p.Viztrail.GetBranch(branchRef); err == nil {
		return p.ID, branchRef, nil
	}
	for _, b := range p.Viztrail.Branches() {
		if b.Name() == branchRef {
			return p.ID, b.ID, nil
		}
	}
	return "", "", &viztrail.NotFoundError{Kind: "branch", ID: branchRef}
}

// parseCommand builds a command from "package.command" and the argument flags.  Each --arg
// value is parsed as JSON and taken as a string if that fails; --arg-file reads a string
// argument from a file.
func parseCommand(name, argsJSON string, args, argFiles []string) (*viztrail.Command, error) {
	pkg, id, ok := strings.Cut(name, ".")
	if !ok || pkg == "" || id == "" {
		return nil, errors.Errorf("invalid command %q, expected package.command", name)
	}
	record := viztrail.Record{}
	if argsJSON != "" {
		v, err := viztrail.DecodeValue([]byte(argsJSON))
		if err != nil {
			return nil, err
		}
		r, ok := v.(viztrail.Record)
		if !ok {
			return nil, errors.Errorf("--args must be a JSON object")
		}
		record = r
	}
	kvs, err := cmdutil.KeyValues(args)
	if err != nil {
		return nil, err
	}
	for k, raw := range kvs {
		v, err := viztrail.DecodeValue([]byte(raw))
		if err != nil {
			v = viztrail.String(raw)
		}
		record[k] = v
	}
	files, err := cmdutil.KeyValues(argFiles)
	if err != nil {
		return nil, err
	}
	for k, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.EnsureStack(err)
		}
		record[k] = viztrail.String(string(data))
	}
	return viztrail.NewCommand(pkg, id, record), nil
}

type outputOptions struct {
	raw    bool
	output string
}

func (o *outputOptions) flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("", pflag.ExitOnError)
	fs.BoolVar(&o.raw, "raw", false, "Disable pretty printing; serialize data structures to an encoding such as json or yaml")
	fs.StringVarP(&o.output, "output", "o", "", "Output format when --raw is set: \"json\" or \"yaml\" (default \"json\")")
	return fs
}

// encode writes v with the --output encoder when --raw is set.  It reports whether it did.
func (o *outputOptions) encode(w io.Writer, v interface{}) (bool, error) {
	if !o.raw {
		if o.output != "" {
			return false, errors.New("cannot set --output (-o) without --raw")
		}
		return false, nil
	}
	e, err := serde.GetEncoder(o.output, w)
	if err != nil {
		return true, err
	}
	return true, errors.EnsureStack(e.Encode(v))
}

func printWorkflow(w io.Writer, out *outputOptions, wf *viztrail.Workflow) error {
	if ok, err := out.encode(w, pretty.NewWorkflowInfo(wf)); ok || err != nil {
		return err
	}
	return pretty.PrintDetailedWorkflow(w, wf)
}

func printModules(w io.Writer, out *outputOptions, modules []*viztrail.Module) error {
	if modules == nil {
		return errors.New("the workflow changed concurrently or the module does not exist; nothing was modified")
	}
	records := make([]viztrail.ModuleRecord, len(modules))
	for i, m := range modules {
		records[i] = m.Record()
	}
	if ok, err := out.encode(w, records); ok || err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 10, 1, 3, ' ', 0)
	fmt.Fprint(tw, "ID\tSTATE\tCOMMAND\t\n")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", r.ID, r.State, r.ExternalForm)
	}
	return errors.EnsureStack(tw.Flush())
}

func waitFor(ctx context.Context, env serviceenv.ServiceEnv, projectID, branchID string, timeout time.Duration) (*viztrail.Workflow, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	wf, err := env.Engine().Wait(ctx, projectID, branchID)
	if err != nil {
		return nil, errors.Wrap(err, "wait for workflow")
	}
	return wf, nil
}

// Cmds returns the vizierctl commands.
func Cmds(ctx context.Context, openEnv EnvFunc) []*cobra.Command {
	var commands []*cobra.Command
	out := &outputOptions{}

	var timeout time.Duration
	timeoutFlags := pflag.NewFlagSet("", pflag.ExitOnError)
	timeoutFlags.DurationVar(&timeout, "timeout", 0, "How long to wait for the workflow to finish (0 waits forever)")

	noPager := false
	noPagerFlags := pflag.NewFlagSet("", pflag.ContinueOnError)
	noPagerFlags.BoolVar(&noPager, "no-pager", false, "Don't pipe output into a pager (i.e. less).")

	// Projects.
	projectDocs := &cobra.Command{
		Use:   "project",
		Short: "Docs for projects.",
		Long: `A project is a viztrail with its own datasets and files.

Every project starts with one empty branch named Default.`,
	}

	var projectProps cmdutil.RepeatedStringArg
	createProject := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new project.",
		Run: cmdutil.RunFixedArgs(1, func(cmd *cobra.Command, args []string) error {
			props, err := cmdutil.KeyValues(projectProps)
			if err != nil {
				return err
			}
			props[viztrail.PropertyName] = args[0]
			return withEnv(ctx, openEnv, func(env serviceenv.ServiceEnv) error {
				p, err := env.Engine().Projects().Create(ctx, props)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), p.ID)
				return nil
			})
		}),
	}
	createProject.Flags().VarP(&projectProps, "property", "p", "Set a project property (key=value); may be repeated")
	projectDocs.AddCommand(createProject)

	listProject := &cobra.Command{
		Use:   "list",
		Short: "Return all projects.",
		Run: cmdutil.RunFixedArgs(0, func(cmd *cobra.Command, args []string) error {
			return withEnv(ctx, openEnv, func(env serviceenv.ServiceEnv) error {
				projects := env.Engine().Projects().List()
				if out.raw {
					records := make([]viztrail.ViztrailRecord, len(projects))
					for i, p := range projects {
						records[i] = p.Viztrail.Record()
					}
					_, err := out.encode(cmd.OutOrStdout(), records)
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 10, 1, 3, ' ', 0)
				fmt.Fprint(tw, pretty.ProjectHeader)
				for _, p := range projects {
					pretty.PrintProjectInfo(tw, p)
				}
				return errors.EnsureStack(tw.Flush())
			})
		}),
	}
	listProject.Flags().AddFlagSet(out.flags())
	projectDocs.AddCommand(listProject)

	deleteProject := &cobra.Command{
		Use:   "delete <project>",
		Short: "Delete a project with its branches, datasets and files.",
		Run: cmdutil.RunFixedArgs(1, func(cmd *cobra.Command, args []string) error {
			return withEnv(ctx, openEnv, func(env serviceenv.ServiceEnv) error {
				p, err := resolveProject(env, args[0])
				if err != nil {
					return err
				}
				return env.Engine().DeleteProject(ctx, p.ID)
			})
		}),
	}
	projectDocs.AddCommand(deleteProject)
	commands = append(commands, projectDocs)

	// Branches.
	branchDocs := &cobra.Command{
		Use:   "branch",
		Short: "Docs for branches.",
		Long: `A branch is the version history of a workflow.

Branches are referenced as project@branch; the branch part may be omitted for the
default branch.`,
	}

	var fromWorkflow, fromModule string
	createBranch := &cobra.Command{
		Use:   "create <project[@source-branch]> <name>",
		Short: "Create a branch, forking the source branch if one is given.",
		Run: cmdutil.RunFixedArgs(2, func(cmd *cobra.Command, args []string) error {
			return withEnv(ctx, openEnv, func(env serviceenv.ServiceEnv) error {
				opts := viztrail.BranchOptions{
					Properties: map[string]string{viztrail.PropertyName: args[1]},
					WorkflowID: fromWorkflow,
					ModuleID:   fromModule,
				}
				projectID, sourceID, err := resolveBranchRef(env, args[0])
				if err != nil {
					return err
				}
				if strings.Contains(args[0], "@") {
					opts.SourceBranch = sourceID
				}
				b, err := env.Engine().CreateBranch(ctx, projectID, opts)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), b.ID)
				return nil
			})
		}),
	}
	createBranch.Flags().StringVar(&fromWorkflow, "workflow", "", "Fork this workflow version of the source branch instead of its HEAD")
	createBranch.Flags().StringVar(&fromModule, "module", "", "Copy the source workflow only up to and including this module")
	branchDocs.AddCommand(createBranch)

	listBranch := &cobra.Command{
		Use:   "list <project>",
		Short: "Return the branches of a project.",
		Run: cmdutil.RunFixedArgs(1, func(cmd *cobra.Command, args []string) error {
			return withEnv(ctx, openEnv, func(env serviceenv.ServiceEnv) error {
				p, err := resolveProject(env, args[0])
				if err != nil {
					return err
				}
				branches := p.Viztrail.Branches()
				if out.raw {
					infos := make([]*pretty.BranchInfo, len(branches))
					for i, b := range branches {
						infos[i] = pretty.NewBranchInfo(b)
					}
					_, err := out.encode(cmd.OutOrStdout(), infos)
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 10, 1, 3, ' ', 0)
				fmt.Fprint(tw, pretty.BranchHeader)
				for _, b := range branches {
					pretty.PrintBranchInfo(tw, b)
				}
				return errors.EnsureStack(tw.Flush())
			})
		}),
	}
	listBranch.Flags().AddFlagSet(out.flags())
	branchDocs.AddCommand(listBranch)

	deleteBranch := &cobra.Command{
		Use:   "delete <project@branch>",
		Short: "Delete a branch.  The default branch cannot be deleted.",
		Run: cmdutil.RunFixedArgs(1, func(cmd *cobra.Command, args []string) error {
			return withEnv(ctx, openEnv, func(env serviceenv.ServiceEnv) error {
				projectID, branchID, err := resolveBranchRef(env, args[0])
				if err != nil {
					return err
				}
				if branchID == "" {
					return viztrail.ErrDefaultBranch
				}
				return env.Engine().DeleteBranch(ctx, projectID, branchID)
			})
		}),
	}
	branchDocs.AddCommand(deleteBranch)

	branchHistory := &cobra.Command{
		Use:   "history <project[@branch]>",
		Short: "Return every workflow version of a branch, oldest first.",
		Run: cmdutil.RunFixedArgs(1, func(cmd *cobra.Command, args []string) error {
			return withEnv(ctx, openEnv, func(env serviceenv.ServiceEnv) error {
				projectID, branchID, err := resolveBranchRef(env, args[0])
				if err != nil {
					return err
				}
				history, err := env.Engine().GetHistory(projectID, branchID)
				if err != nil {
					return err
				}
				if out.raw {
					infos := make([]*pretty.WorkflowInfo, len(history))
					for i, wf := range history {
						infos[i] = pretty.NewWorkflowInfo(wf)
					}
					_, err := out.encode(cmd.OutOrStdout(), infos)
					return err
				}
				return pager.Page(noPager, cmd.OutOrStdout(), cmd.ErrOrStderr(), func(w io.Writer) error {
					tw := tabwriter.NewWriter(w, 10, 1, 3, ' ', 0)
					fmt.Fprint(tw, pretty.WorkflowHeader)
					for i, wf := range history {
						pretty.PrintWorkflowVersion(tw, i+1, wf)
					}
					return errors.EnsureStack(tw.Flush())
				})
			})
		}),
	}
	branchHistory.Flags().AddFlagSet(out.flags())
	branchHistory.Flags().AddFlagSet(noPagerFlags)
	branchDocs.AddCommand(branchHistory)
	commands = append(commands, branchDocs)

	// Workflows.
	workflowDocs := &cobra.Command{
		Use:   "workflow",
		Short: "Docs for workflows.",
		Long: `A workflow is one version of a branch: a sequence of modules and their results.

The HEAD workflow of a branch is the latest version.`,
	}

	var workflowID string
	getWorkflow := &cobra.Command{
		Use:   "get <project[@branch]>",
		Short: "Return a workflow with its modules and their outputs.",
		Run: cmdutil.RunFixedArgs(1, func(cmd *cobra.Command, args []string) error {
			return withEnv(ctx, openEnv, func(env serviceenv.ServiceEnv) error {
				projectID, branchID, err := resolveBranchRef(env, args[0])
				if err != nil {
					return err
				}
				wf, err := env.Engine().GetWorkflow(projectID, branchID, workflowID)
				if err != nil {
					return err
				}
				return printWorkflow(cmd.OutOrStdout(), out, wf)
			})
		}),
	}
	getWorkflow.Flags().StringVar(&workflowID, "workflow", "", "Return this workflow version instead of HEAD")
	getWorkflow.Flags().AddFlagSet(out.flags())
	workflowDocs.AddCommand(getWorkflow)

	cancelWorkflow := &cobra.Command{
		Use:   "cancel <project[@branch]>",
		Short: "Cancel every module of the HEAD workflow that has not finished.",
		Long: `Cancel every module of the HEAD workflow that has not finished.

Modules that were running when a previous process stopped stay RUNNING until they
are canceled.`,
		Run: cmdutil.RunFixedArgs(1, func(cmd *cobra.Command, args []string) error {
			return withEnv(ctx, openEnv, func(env serviceenv.ServiceEnv) error {
				projectID, branchID, err := resolveBranchRef(env, args[0])
				if err != nil {
					return err
				}
				wf, err := env.Engine().CancelExec(ctx, projectID, branchID)
				if err != nil {
					return err
				}
				return printWorkflow(cmd.OutOrStdout(), out, wf)
			})
		}),
	}
	cancelWorkflow.Flags().AddFlagSet(out.flags())
	workflowDocs.AddCommand(cancelWorkflow)

	waitWorkflow := &cobra.Command{
		Use:   "wait <project[@branch]>",
		Short: "Block until the HEAD workflow has finished.",
		Run: cmdutil.RunFixedArgs(1, func(cmd *cobra.Command, args []string) error {
			return withEnv(ctx, openEnv, func(env serviceenv.ServiceEnv) error {
				projectID, branchID, err := resolveBranchRef(env, args[0])
				if err != nil {
					return err
				}
				wf, err := waitFor(ctx, env, projectID, branchID, timeout)
				if err != nil {
					return err
				}
				return printWorkflow(cmd.OutOrStdout(), out, wf)
			})
		}),
	}
	waitWorkflow.Flags().AddFlagSet(out.flags())
	waitWorkflow.Flags().AddFlagSet(timeoutFlags)
	workflowDocs.AddCommand(waitWorkflow)
	commands = append(commands, workflowDocs)

	// Modules.
	moduleDocs := &cobra.Command{
		Use:   "module",
		Short: "Docs for modules.",
		Long: `A module is one step of a workflow: a package command and its result.

Commands are named package.command.  Arguments are given with --arg key=value,
where the value is parsed as JSON and taken as a string otherwise, with
--arg-file key=path to read a string from a file, or all at once with --args.

Every edit publishes a new HEAD workflow and then waits for it to finish.`,
	}

	var argsJSON string
	var cmdArgs, cmdArgFiles cmdutil.RepeatedStringArg
	commandFlags := pflag.NewFlagSet("", pflag.ExitOnError)
	commandFlags.StringVar(&argsJSON, "args", "", "Command arguments as a JSON object")
	commandFlags.VarP(&cmdArgs, "arg", "a", "Set a command argument (key=value); may be repeated")
	commandFlags.Var(&cmdArgFiles, "arg-file", "Set a string command argument from a file (key=path); may be repeated")

	// edit runs one edit and waits for the resulting workflow.
	edit := func(cmd *cobra.Command, ref string, apply func(env serviceenv.ServiceEnv, projectID, branchID string) ([]*viztrail.Module, error)) error {
		return withEnv(ctx, openEnv, func(env serviceenv.ServiceEnv) error {
			projectID, branchID, err := resolveBranchRef(env, ref)
			if err != nil {
				return err
			}
			modules, err := apply(env, projectID, branchID)
			if err != nil {
				return err
			}
			if _, err := waitFor(ctx, env, projectID, branchID, timeout); err != nil {
				return err
			}
			return printModules(cmd.OutOrStdout(), out, modules)
		})
	}

	appendModule := &cobra.Command{
		Use:   "append <project[@branch]> <package.command>",
		Short: "Append a module to the HEAD workflow.",
		Run: cmdutil.RunFixedArgs(2, func(cmd *cobra.Command, args []string) error {
			c, err := parseCommand(args[1], argsJSON, cmdArgs, cmdArgFiles)
			if err != nil {
				return err
			}
			return edit(cmd, args[0], func(env serviceenv.ServiceEnv, projectID, branchID string) ([]*viztrail.Module, error) {
				m, err := env.Engine().AppendWorkflowModule(ctx, projectID, branchID, c)
				if err != nil || m == nil {
					return nil, err
				}
				return []*viztrail.Module{m}, nil
			})
		}),
	}

	insertModule := &cobra.Command{
		Use:   "insert <project[@branch]> <before-module> <package.command>",
		Short: "Insert a module before another module.",
		Run: cmdutil.RunFixedArgs(3, func(cmd *cobra.Command, args []string) error {
			c, err := parseCommand(args[2], argsJSON, cmdArgs, cmdArgFiles)
			if err != nil {
				return err
			}
			return edit(cmd, args[0], func(env serviceenv.ServiceEnv, projectID, branchID string) ([]*viztrail.Module, error) {
				return env.Engine().InsertWorkflowModule(ctx, projectID, branchID, args[1], c)
			})
		}),
	}

	replaceModule := &cobra.Command{
		Use:   "replace <project[@branch]> <module> <package.command>",
		Short: "Replace the command of a module.",
		Run: cmdutil.RunFixedArgs(3, func(cmd *cobra.Command, args []string) error {
			c, err := parseCommand(args[2], argsJSON, cmdArgs, cmdArgFiles)
			if err != nil {
				return err
			}
			return edit(cmd, args[0], func(env serviceenv.ServiceEnv, projectID, branchID string) ([]*viztrail.Module, error) {
				return env.Engine().ReplaceWorkflowModule(ctx, projectID, branchID, args[1], c)
			})
		}),
	}

	deleteModule := &cobra.Command{
		Use:   "delete <project[@branch]> <module>",
		Short: "Delete a module.",
		Run: cmdutil.RunFixedArgs(2, func(cmd *cobra.Command, args []string) error {
			return edit(cmd, args[0], func(env serviceenv.ServiceEnv, projectID, branchID string) ([]*viztrail.Module, error) {
				return env.Engine().DeleteWorkflowModule(ctx, projectID, branchID, args[1])
			})
		}),
	}

	for _, c := range []*cobra.Command{appendModule, insertModule, replaceModule} {
		c.Flags().AddFlagSet(commandFlags)
	}
	for _, c := range []*cobra.Command{appendModule, insertModule, replaceModule, deleteModule} {
		c.Flags().AddFlagSet(timeoutFlags)
		c.Flags().AddFlagSet(out.flags())
		moduleDocs.AddCommand(c)
	}
	commands = append(commands, moduleDocs)

	// Files.
	fileDocs := &cobra.Command{
		Use:   "file",
		Short: "Docs for files.",
		Long:  "Files are uploaded into a project's filestore and loaded into datasets with vizual.load.",
	}

	uploadFile := &cobra.Command{
		Use:   "upload <project> <path>",
		Short: "Upload a local file and print its file id.",
		Run: cmdutil.RunFixedArgs(2, func(cmd *cobra.Command, args []string) error {
			return withEnv(ctx, openEnv, func(env serviceenv.ServiceEnv) error {
				p, err := resolveProject(env, args[0])
				if err != nil {
					return err
				}
				h, err := p.Filestore.UploadFile(ctx, args[1])
				if err != nil {
					return err
				}
				if ok, err := out.encode(cmd.OutOrStdout(), h); ok || err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), h.ID)
				return nil
			})
		}),
	}
	uploadFile.Flags().AddFlagSet(out.flags())
	fileDocs.AddCommand(uploadFile)

	listFile := &cobra.Command{
		Use:   "list <project>",
		Short: "Return the files of a project.",
		Run: cmdutil.RunFixedArgs(1, func(cmd *cobra.Command, args []string) error {
			return withEnv(ctx, openEnv, func(env serviceenv.ServiceEnv) error {
				p, err := resolveProject(env, args[0])
				if err != nil {
					return err
				}
				files, err := p.Filestore.List(ctx)
				if err != nil {
					return err
				}
				if ok, err := out.encode(cmd.OutOrStdout(), files); ok || err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 10, 1, 3, ' ', 0)
				fmt.Fprint(tw, "ID\tNAME\tFORMAT\tSIZE\t\n")
				for _, h := range files {
					pretty.PrintFileHandle(tw, h)
				}
				return errors.EnsureStack(tw.Flush())
			})
		}),
	}
	listFile.Flags().AddFlagSet(out.flags())
	fileDocs.AddCommand(listFile)
	commands = append(commands, fileDocs)

	// Packages.
	listPackages := &cobra.Command{
		Use:   "packages",
		Short: "Return the available package commands.",
		Run: cmdutil.RunFixedArgs(0, func(cmd *cobra.Command, args []string) error {
			return withEnv(ctx, openEnv, func(env serviceenv.ServiceEnv) error {
				index := env.Engine().Packages()
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 10, 1, 3, ' ', 0)
				fmt.Fprint(tw, "COMMAND\tNAME\tPARAMETERS\t\n")
				for _, pkg := range index.Packages() {
					d, err := index.Package(pkg)
					if err != nil {
						return err
					}
					for _, c := range d.Commands {
						params := make([]string, len(c.Parameters))
						for i, p := range c.Parameters {
							params[i] = p.ID + ":" + p.Datatype
						}
						fmt.Fprintf(tw, "%s.%s\t%s\t%s\t\n", d.ID, c.ID, c.Name, strings.Join(params, ", "))
					}
				}
				return errors.EnsureStack(tw.Flush())
			})
		}),
	}
	commands = append(commands, listPackages)

	return commands
}
