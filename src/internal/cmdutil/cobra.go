package cmdutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vizierdb/vizier/src/internal/errors"
)

// PrintErrorStacks should be set to true if you want to print out a stack for errors that are
// returned by the run commands.
var PrintErrorStacks bool

// RunFixedArgs wraps a function in a function that checks its exact argument count.
func RunFixedArgs(numArgs int, run func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		if len(args) != numArgs {
			fmt.Printf("expected %d arguments, got %d\n\n", numArgs, len(args))
			cmd.Usage() //nolint:errcheck
			return
		}
		if err := run(cmd, args); err != nil {
			ErrorAndExit("%v", err)
		}
	}
}

// RunBoundedArgs wraps a function in a function that checks its argument count is within a range.
func RunBoundedArgs(min, max int, run func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		if len(args) < min || len(args) > max {
			fmt.Printf("expected %d to %d arguments, got %d\n\n", min, max, len(args))
			cmd.Usage() //nolint:errcheck
			return
		}
		if err := run(cmd, args); err != nil {
			ErrorAndExit("%v", err)
		}
	}
}

// ErrorAndExit errors with the given format and args, and then exits.
func ErrorAndExit(format string, args ...interface{}) {
	if errString := strings.TrimSpace(fmt.Sprintf(format, args...)); errString != "" {
		fmt.Fprintf(os.Stderr, "%s\n", errString)
	}
	if len(args) > 0 && PrintErrorStacks {
		if err, ok := args[0].(error); ok {
			fmt.Fprintf(os.Stderr, "%+v\n", err)
		}
	}
	os.Exit(1)
}

// ParseBranchRef parses "project" or "project@branch".  An empty branch means the project's
// default branch.
func ParseBranchRef(arg string) (project, branch string, err error) {
	project, branch, _ = strings.Cut(arg, "@")
	if project == "" {
		return "", "", errors.Errorf("invalid reference %q: missing project", arg)
	}
	return project, branch, nil
}

// RepeatedStringArg is a flag value that collects every occurrence of the flag.
type RepeatedStringArg []string

func (r *RepeatedStringArg) String() string {
	return "[" + strings.Join(*r, ", ") + "]"
}

// Set adds a string to r.
func (r *RepeatedStringArg) Set(s string) error {
	*r = append(*r, s)
	return nil
}

// Type returns the string representation of the type of r.
func (r *RepeatedStringArg) Type() string {
	return "[]string"
}

// KeyValues parses repeated key=value flag values into a map.
func KeyValues(args []string) (map[string]string, error) {
	result := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, errors.Errorf("invalid key=value pair %q", a)
		}
		result[k] = v
	}
	return result, nil
}
