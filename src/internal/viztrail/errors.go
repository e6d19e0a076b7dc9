package viztrail

import (
	"fmt"

	"github.com/vizierdb/vizier/src/internal/errors"
)

var (
	// ErrWorkflowActive is returned for edits that cannot be applied while modules are still
	// pending or running.
	ErrWorkflowActive = errors.New("workflow has pending or running modules")
	// ErrDefaultBranch is returned when deleting a project's default branch.
	ErrDefaultBranch = errors.New("cannot delete the default branch")
)

// NotFoundError is returned for unknown viztrail, branch, workflow and module identifiers.
type NotFoundError struct {
	Kind, ID string
}

func (err *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found (id=%s)", err.Kind, err.ID)
}

// InvalidArgumentError is returned for malformed requests.
type InvalidArgumentError struct {
	Reason string
}

func (err *InvalidArgumentError) Error() string {
	return "invalid argument: " + err.Reason
}

// IsNotFound reports whether err is a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
