// Package pager pipes CLI output through the user's pager.
package pager

import (
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/vizierdb/vizier/src/internal/errors"
	"golang.org/x/sync/errgroup"
)

var defaultPager = []string{"less", "-RFX"}

// Page runs run with its output piped to the pager named by $PAGER (less by default).  If noop is
// true run writes to out directly.
func Page(noop bool, out, errOut io.Writer, run func(w io.Writer) error) error {
	if noop {
		return run(out)
	}
	var eg errgroup.Group
	r, w := io.Pipe()
	eg.Go(func() error {
		return errors.EnsureStack(w.CloseWithError(run(w)))
	})
	eg.Go(func() error {
		pager := strings.Fields(os.Getenv("PAGER"))
		if len(pager) == 0 {
			pager = defaultPager
		}
		cmd := exec.Command(pager[0], pager[1:]...)
		cmd.Stdin = r
		cmd.Stdout = out
		cmd.Stderr = errOut
		err := cmd.Run()
		// Drain whatever the pager did not read so the writer never blocks.
		_, _ = io.Copy(io.Discard, r)
		return errors.EnsureStack(err)
	})
	return errors.EnsureStack(eg.Wait())
}
