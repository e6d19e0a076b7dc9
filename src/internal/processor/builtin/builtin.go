// Package builtin assembles the processors bundled with vizier.
package builtin

import (
	"github.com/vizierdb/vizier/src/internal/processor"
	"github.com/vizierdb/vizier/src/internal/processor/markdown"
	"github.com/vizierdb/vizier/src/internal/processor/plot"
	"github.com/vizierdb/vizier/src/internal/processor/query"
	"github.com/vizierdb/vizier/src/internal/processor/script"
	"github.com/vizierdb/vizier/src/internal/processor/vizual"
)

// Registry returns a registry holding every bundled processor.
func Registry() *processor.Registry {
	r := processor.NewRegistry()
	r.Register(vizual.PackageID, vizual.New())
	r.Register(script.PackageID, script.New())
	r.Register(query.PackageID, query.New())
	r.Register(markdown.PackageID, markdown.New())
	r.Register(plot.PackageID, plot.New())
	return r
}
