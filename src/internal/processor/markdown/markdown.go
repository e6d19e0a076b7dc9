// Package markdown renders markdown cells.
package markdown

import (
	"context"

	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/processor"
	"github.com/vizierdb/vizier/src/internal/viztrail"
)

// PackageID is the identifier markdown commands are declared under.
const PackageID = "markdown"

// Processor renders markdown cells.  Cells touch no datasets.
type Processor struct{}

var _ processor.Processor = (*Processor)(nil)

// New returns a markdown processor.
func New() *Processor {
	return &Processor{}
}

// Compute implements processor.Processor.
func (p *Processor) Compute(ctx context.Context, commandID string, args viztrail.Record, tc *processor.TaskContext) (processor.Result, error) {
	if commandID != "code" {
		return nil, errors.Errorf("unknown markdown command %q", commandID)
	}
	source, err := args.String("source")
	if err != nil {
		return nil, err
	}
	tc.Output(viztrail.MarkdownOutput(source))
	return tc.Success(), nil
}
